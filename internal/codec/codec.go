package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Built-in codec names.
const (
	JSON   = "json"
	Text   = "text"
	Base64 = "base64"
	Binary = "binary"

	// Default is used when neither the call nor the connection names a codec.
	Default = Text
)

// EncodeFunc turns an outbound message into payload bytes.
type EncodeFunc func(v any) ([]byte, error)

// DecodeFunc turns inbound payload bytes into the value handed to listeners.
type DecodeFunc func(data []byte) (any, error)

type builtin struct {
	encode EncodeFunc
	decode DecodeFunc
}

var builtins = map[string]builtin{
	JSON:   {encode: encodeJSON, decode: decodeJSON},
	Text:   {encode: encodeText, decode: decodeText},
	Base64: {encode: encodeBase64, decode: decodeBase64},
	Binary: {encode: encodeBinary, decode: decodeBinary},
}

// Names returns the registered built-in codec names.
func Names() []string {
	return []string{JSON, Text, Base64, Binary}
}

// Config holds encoder and decoder options. Each field is nil (unset), a
// codec name, or a transform function.
type Config struct {
	Encoder any
	Decoder any
}

// Merge returns c with unset fields filled from fallback.
func (c Config) Merge(fallback Config) Config {
	if c.Encoder == nil {
		c.Encoder = fallback.Encoder
	}
	if c.Decoder == nil {
		c.Decoder = fallback.Decoder
	}
	return c
}

// ResolveEncoder resolves an encoder option. A nil option selects Default.
func ResolveEncoder(opt any) (EncodeFunc, error) {
	switch v := opt.(type) {
	case nil:
		return builtins[Default].encode, nil
	case string:
		b, ok := builtins[v]
		if !ok {
			return nil, fmt.Errorf("%w: encoder %q", ErrUnknownCodec, v)
		}
		return b.encode, nil
	case EncodeFunc:
		if v == nil {
			return nil, fmt.Errorf("%w: nil encoder function", ErrInvalidCodec)
		}
		return v, nil
	case func(any) ([]byte, error):
		if v == nil {
			return nil, fmt.Errorf("%w: nil encoder function", ErrInvalidCodec)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: encoder of type %T", ErrInvalidCodec, opt)
	}
}

// ResolveDecoder resolves a decoder option. A nil option selects Default.
func ResolveDecoder(opt any) (DecodeFunc, error) {
	switch v := opt.(type) {
	case nil:
		return builtins[Default].decode, nil
	case string:
		b, ok := builtins[v]
		if !ok {
			return nil, fmt.Errorf("%w: decoder %q", ErrUnknownCodec, v)
		}
		return b.decode, nil
	case DecodeFunc:
		if v == nil {
			return nil, fmt.Errorf("%w: nil decoder function", ErrInvalidCodec)
		}
		return v, nil
	case func([]byte) (any, error):
		if v == nil {
			return nil, fmt.Errorf("%w: nil decoder function", ErrInvalidCodec)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: decoder of type %T", ErrInvalidCodec, opt)
	}
}

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrEncode, err)
	}
	return data, nil
}

func decodeJSON(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: json: payload is not valid UTF-8", ErrDecode)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrDecode, err)
	}
	return v, nil
}

func encodeText(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case error:
		return []byte(t.Error()), nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}

func decodeText(data []byte) (any, error) {
	return string(data), nil
}

func encodeBase64(v any) ([]byte, error) {
	raw, err := rawBytes(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func decodeBase64(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: base64: payload is not valid UTF-8", ErrDecode)
	}
	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrDecode, err)
	}
	return raw, nil
}

func encodeBinary(v any) ([]byte, error) {
	return rawBytes(v)
}

func decodeBinary(data []byte) (any, error) {
	return data, nil
}

func rawBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("%w: expected []byte or string, got %T", ErrEncode, v)
	}
}
