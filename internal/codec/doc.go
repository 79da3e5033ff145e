// Package codec provides payload encode/decode transforms.
//
// Four built-in codecs are registered by name:
//   - json:   structured data <-> UTF-8 JSON text
//   - text:   any value -> string form; bytes -> string
//   - base64: raw bytes <-> base64 text
//   - binary: raw bytes pass through unchanged
//
// A codec option is either one of those names or a caller-supplied
// function (EncodeFunc / DecodeFunc). Options are merged call-level over
// connection-level over the package default (text/text) and resolved
// before any network I/O happens.
//
//	enc, err := codec.ResolveEncoder("json")
//	data, err := enc(map[string]any{"on": true})
package codec
