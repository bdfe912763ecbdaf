package wire

import "errors"

var (
	// ErrShortBuffer indicates a buffer ended before a field could be read.
	ErrShortBuffer = errors.New("short buffer")

	// ErrTrailingBytes indicates bytes were left after the last field.
	ErrTrailingBytes = errors.New("trailing bytes after message")

	// ErrUnknownCode indicates no factory is registered for a message code.
	ErrUnknownCode = errors.New("unknown message code")

	// ErrInvalidField indicates a field value cannot be represented on the wire.
	ErrInvalidField = errors.New("invalid field value")
)
