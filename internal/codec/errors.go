package codec

import "errors"

// Codec errors.
var (
	// ErrUnknownCodec is returned when a codec name is not registered.
	ErrUnknownCodec = errors.New("codec: unknown codec")

	// ErrInvalidCodec is returned when a codec option is neither a name nor a function.
	ErrInvalidCodec = errors.New("codec: option must be a codec name or function")

	// ErrEncode is returned when a value cannot be encoded.
	ErrEncode = errors.New("codec: encode failed")

	// ErrDecode is returned when a payload cannot be decoded.
	ErrDecode = errors.New("codec: decode failed")
)
