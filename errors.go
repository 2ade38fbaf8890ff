package gitalarm

import "errors"

var (
	// ErrBadMagic is returned when an on-disk archive's first four
	// bytes (after gunzip) do not match archive.Magic.
	ErrBadMagic = errors.New("gitalarm: archive has an invalid magic header")

	// ErrNoRefs is returned when a repository's advertisement
	// contained no refs to want.
	ErrNoRefs = errors.New("gitalarm: repository advertised no refs")

	// ErrStopped is returned by AcquireAll when a stop was requested
	// (via internal/signalctl) before every repository in the list
	// could be processed, and wraps the cause when AcquireAll stops
	// the run at the first repository-level failure.
	ErrStopped = errors.New("gitalarm: acquisition stopped before completing the repository list")
)
