// Package packobj decodes and encodes the pieces of a git pack object
// stream that do not depend on delta reconstruction: the object type
// tag, the variable-length object header, the two varint flavors used
// by the pack format, and SHA-1 object identity.
package packobj

import (
	"crypto/sha1" //nolint:gosec // git object identity is defined in terms of SHA-1.
	"fmt"
)

// Type is a pack object type tag, encoded on the wire as 3 bits.
type Type uint8

const (
	TypeInvalid  Type = 0
	TypeCommit   Type = 1
	TypeTree     Type = 2
	TypeBlob     Type = 3
	TypeTag      Type = 4
	TypeReserved Type = 5
	TypeOfsDelta Type = 6
	TypeRefDelta Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	case TypeOfsDelta:
		return "ofs-delta"
	case TypeRefDelta:
		return "ref-delta"
	default:
		return fmt.Sprintf("packobj.Type(%d)", uint8(t))
	}
}

// IsDelta reports whether t is one of the two delta kinds.
func (t Type) IsDelta() bool {
	return t == TypeOfsDelta || t == TypeRefDelta
}

// Retained reports whether objects of this type are ones the archiver
// keeps (commit, tree) as opposed to discarding (blob, tag).
func (t Type) Retained() bool {
	return t == TypeCommit || t == TypeTree
}

// typeName is the literal used in the "<typename> <len>\0" identity
// header; only the four base object types have one.
func (t Type) typeName() (string, bool) {
	switch t {
	case TypeCommit:
		return "commit", true
	case TypeTree:
		return "tree", true
	case TypeBlob:
		return "blob", true
	case TypeTag:
		return "tag", true
	default:
		return "", false
	}
}

// ID is the 20-byte SHA-1 object id, kept internally in its
// 40-character lowercase hex form.
type ID string

// Zero is the empty/unset id.
const Zero ID = ""

// Identity computes the SHA-1 object id of payload framed as
// "<typename> <len>\0<payload>", per git's object hashing scheme.
func Identity(t Type, payload []byte) (ID, error) {
	name, ok := t.typeName()
	if !ok {
		return Zero, fmt.Errorf("packobj: type %s has no identity header", t)
	}
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "%s %d\x00", name, len(payload))
	h.Write(payload)
	return ID(fmt.Sprintf("%x", h.Sum(nil))), nil
}
