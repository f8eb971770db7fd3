package krpc

import "errors"

// Decode and encode failures are reported as wrapped sentinels so callers
// can classify them with errors.Is and decide whether to drop the datagram
// or answer with a protocol error.
var (
	// ErrMalformedEncoding means the bytes are not a well-formed bencoded
	// dictionary at the top level.
	ErrMalformedEncoding = errors.New("krpc: malformed encoding")

	// ErrMalformedPayload means the type-specific payload has the wrong
	// overall structure, e.g. an error value that is not [code, message].
	ErrMalformedPayload = errors.New("krpc: malformed payload")

	// ErrMissingField means a required key is absent.
	ErrMissingField = errors.New("krpc: missing field")

	// ErrUnknownType means the y key is not one of q, r, e.
	ErrUnknownType = errors.New("krpc: unknown message type")

	// ErrUnknownMethod means a query names a method this codec does not know.
	ErrUnknownMethod = errors.New("krpc: unknown method")

	// ErrWrongFieldType means a field has the wrong structural kind.
	ErrWrongFieldType = errors.New("krpc: wrong field type")

	// ErrInvalidFieldLength means a fixed-width field violates its exact
	// length contract.
	ErrInvalidFieldLength = errors.New("krpc: invalid field length")

	// ErrInvalidIdentifierLength means a node identifier is not exactly
	// 20 bytes.
	ErrInvalidIdentifierLength = errors.New("krpc: invalid identifier length")

	// ErrTruncatedCompactData means a compact contact blob is not an exact
	// multiple of the per-contact width.
	ErrTruncatedCompactData = errors.New("krpc: truncated compact data")

	// ErrMessageTooLarge means the raw input exceeds the configured bound.
	ErrMessageTooLarge = errors.New("krpc: message too large")
)
