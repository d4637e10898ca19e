package rayply

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic indicates the file does not begin with the "ply" magic line.
	ErrBadMagic = errors.New("missing ply magic")

	// ErrASCIIFormat indicates an ascii-format PLY, which this codec does
	// not support.
	ErrASCIIFormat = errors.New("ascii format not supported")

	// ErrBigEndianFormat indicates a binary_big_endian PLY.
	ErrBigEndianFormat = errors.New("binary_big_endian format not supported")

	// ErrNoFormat indicates the header ended without a format line.
	ErrNoFormat = errors.New("missing format line")

	// ErrUnknownPropertyType indicates a scalar property whose type name is
	// not in the registry. Skipping such a property would shift every
	// subsequent field offset, so it is a hard parse error.
	ErrUnknownPropertyType = errors.New("unknown property type")

	// ErrNonSeekableOutput indicates the destination cannot seek backward,
	// so the deferred vertex-count patch is impossible. The stream remains
	// structurally valid but declares a count of zero.
	ErrNonSeekableOutput = errors.New("output does not support seeking: vertex count not patched")

	// ErrIndexOutOfRange indicates a random-access read past the declared
	// record count.
	ErrIndexOutOfRange = errors.New("record index out of range")
)

// HeaderError reports a malformed or unsupported header, naming the file
// and the violated expectation.
type HeaderError struct {
	Path   string
	Detail string
	Err    error
}

func (e *HeaderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("rayply: %s: %s: %v", e.Path, e.Detail, e.Err)
	}
	return fmt.Sprintf("rayply: %s: %v", e.Path, e.Err)
}

func (e *HeaderError) Unwrap() error { return e.Err }

func headerErr(path, detail string, err error) *HeaderError {
	return &HeaderError{Path: path, Detail: detail, Err: err}
}
