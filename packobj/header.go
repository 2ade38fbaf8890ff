package packobj

import "fmt"

// DecodeHeader decodes a pack object header from the start of b: the
// first byte's top bit is a continuation flag, bits 6..4 are the
// object type, bits 3..0 are the low 4 bits of the size; subsequent
// continuation bytes contribute 7 bits each, least-significant first.
// It returns the type, the decoded size, and the number of bytes
// consumed from b.
func DecodeHeader(b []byte) (Type, uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, 0, fmt.Errorf("packobj: empty header")
	}

	first := b[0]
	t := Type((first >> 4) & 0x7)
	size := uint64(first & 0x0f)
	shift := uint(4)
	consumed := 1

	for first&0x80 != 0 {
		if consumed >= len(b) {
			return 0, 0, 0, fmt.Errorf("packobj: truncated header")
		}
		next := b[consumed]
		size |= uint64(next&0x7f) << shift
		shift += 7
		consumed++
		first = next
	}

	return t, size, consumed, nil
}

// EncodeHeader encodes t and size using the canonical MSB-continuation
// scheme used by DecodeHeader.
func EncodeHeader(t Type, size uint64) []byte {
	first := byte(t&0x7) << 4
	first |= byte(size & 0x0f)
	size >>= 4

	if size == 0 {
		return []byte{first}
	}

	out := []byte{first | 0x80}
	for size != 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// DecodeOfsDeltaOffset decodes the OFS_DELTA backward-offset varint
// from the start of b. This is NOT the same encoding as the
// delta-payload varint (DecodeDeltaVarint): each continuation step
// applies a "+1" bias before shifting, matching git's pack-format
// negative-offset encoding.
func DecodeOfsDeltaOffset(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("packobj: empty ofs-delta offset")
	}

	first := b[0]
	x := uint64(first & 0x7f)
	consumed := 1

	for first&0x80 != 0 {
		if consumed >= len(b) {
			return 0, 0, fmt.Errorf("packobj: truncated ofs-delta offset")
		}
		next := b[consumed]
		x = ((x + 1) << 7) + uint64(next&0x7f)
		consumed++
		first = next
	}

	return x, consumed, nil
}

// EncodeOfsDeltaOffset encodes x using the OFS_DELTA varint scheme.
// It is the exact inverse of DecodeOfsDeltaOffset.
func EncodeOfsDeltaOffset(x uint64) []byte {
	// Collect base-128 digits from least to most significant, undoing
	// the "+1 then shift" bias applied during decode.
	var digits []byte
	digits = append(digits, byte(x&0x7f))
	x >>= 7
	for x != 0 {
		x--
		digits = append(digits, byte(x&0x7f)|0x80)
		x >>= 7
	}

	// digits is least-significant-first; the wire order is
	// most-significant-first with the continuation bit set on every
	// byte but the last.
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[len(digits)-1-i] = d
	}
	for i := 0; i < len(out)-1; i++ {
		out[i] |= 0x80
	}
	out[len(out)-1] &^= 0x80
	return out
}

// DecodeDeltaVarint decodes the little-endian 7-bit varint used
// inside delta payloads (distinct from the OFS_DELTA offset varint
// above): value = sum of (b_i & 0x7f) << 7*i, reading bytes until one
// has its MSB clear.
func DecodeDeltaVarint(b []byte) (uint64, int, error) {
	var x uint64
	var shift uint
	for i, c := range b {
		x |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return x, i + 1, nil
		}
		shift += 7
		if shift > 63 {
			return 0, 0, fmt.Errorf("packobj: delta varint overflow")
		}
	}
	return 0, 0, fmt.Errorf("packobj: truncated delta varint")
}

// EncodeDeltaVarint encodes x using the little-endian 7-bit scheme
// used by DecodeDeltaVarint.
func EncodeDeltaVarint(x uint64) []byte {
	if x == 0 {
		return []byte{0}
	}
	var out []byte
	for x != 0 {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
