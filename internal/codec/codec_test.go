package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		codec string
		value any
		want  any
	}{
		{"json object", JSON, map[string]any{"a": 1}, map[string]any{"a": float64(1)}},
		{"json array", JSON, []any{"x", true}, []any{"x", true}},
		{"text", Text, "hello", "hello"},
		{"text empty", Text, "", ""},
		{"binary", Binary, []byte{0x00, 0xff, 0x10, 0x80}, []byte{0x00, 0xff, 0x10, 0x80}},
		{"base64", Base64, []byte{0xde, 0xad, 0xbe, 0xef, 0x00}, []byte{0xde, 0xad, 0xbe, 0xef, 0x00}},
		{"base64 empty", Base64, []byte{}, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := ResolveEncoder(tt.codec)
			if err != nil {
				t.Fatalf("ResolveEncoder(%q) error = %v", tt.codec, err)
			}
			dec, err := ResolveDecoder(tt.codec)
			if err != nil {
				t.Fatalf("ResolveDecoder(%q) error = %v", tt.codec, err)
			}

			data, err := enc(tt.value)
			if err != nil {
				t.Fatalf("encode error = %v", err)
			}
			got, err := dec(data)
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}

			if b, ok := tt.want.([]byte); ok {
				gotBytes, isBytes := got.([]byte)
				if !isBytes || !bytes.Equal(gotBytes, b) {
					t.Errorf("round trip = %v, want %v", got, tt.want)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("round trip = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEncodeText_Stringifies(t *testing.T) {
	enc, _ := ResolveEncoder(Text)

	tests := []struct {
		in   any
		want string
	}{
		{42, "42"},
		{true, "true"},
		{[]byte("raw"), "raw"},
		{errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		got, err := enc(tt.in)
		if err != nil {
			t.Fatalf("encode(%v) error = %v", tt.in, err)
		}
		if string(got) != tt.want {
			t.Errorf("encode(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	dec, _ := ResolveDecoder(JSON)

	for _, payload := range [][]byte{[]byte("{not json"), {0xff, 0xfe}} {
		if _, err := dec(payload); !errors.Is(err, ErrDecode) {
			t.Errorf("decode(%q) error = %v, want ErrDecode", payload, err)
		}
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	dec, _ := ResolveDecoder(Base64)
	if _, err := dec([]byte("%%%")); !errors.Is(err, ErrDecode) {
		t.Errorf("decode() error = %v, want ErrDecode", err)
	}
}

func TestEncodeBinary_RejectsStructuredValues(t *testing.T) {
	enc, _ := ResolveEncoder(Binary)
	if _, err := enc(map[string]int{"a": 1}); !errors.Is(err, ErrEncode) {
		t.Errorf("encode() error = %v, want ErrEncode", err)
	}
}

func TestResolve_Errors(t *testing.T) {
	if _, err := ResolveEncoder("bogus"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("ResolveEncoder(bogus) error = %v, want ErrUnknownCodec", err)
	}
	if _, err := ResolveDecoder("bogus"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("ResolveDecoder(bogus) error = %v, want ErrUnknownCodec", err)
	}
	if _, err := ResolveEncoder(time.Now()); !errors.Is(err, ErrInvalidCodec) {
		t.Errorf("ResolveEncoder(time.Time) error = %v, want ErrInvalidCodec", err)
	}
	if _, err := ResolveDecoder(12); !errors.Is(err, ErrInvalidCodec) {
		t.Errorf("ResolveDecoder(int) error = %v, want ErrInvalidCodec", err)
	}
	var nilEnc EncodeFunc
	if _, err := ResolveEncoder(nilEnc); !errors.Is(err, ErrInvalidCodec) {
		t.Errorf("ResolveEncoder(nil func) error = %v, want ErrInvalidCodec", err)
	}
}

func TestResolve_Functions(t *testing.T) {
	enc, err := ResolveEncoder(func(v any) ([]byte, error) { return []byte("custom"), nil })
	if err != nil {
		t.Fatalf("ResolveEncoder(func) error = %v", err)
	}
	if out, _ := enc(nil); string(out) != "custom" {
		t.Errorf("custom encoder = %q, want %q", out, "custom")
	}

	dec, err := ResolveDecoder(DecodeFunc(func(b []byte) (any, error) { return len(b), nil }))
	if err != nil {
		t.Fatalf("ResolveDecoder(DecodeFunc) error = %v", err)
	}
	if out, _ := dec([]byte("abc")); out != 3 {
		t.Errorf("custom decoder = %v, want 3", out)
	}
}

func TestResolve_NilUsesDefault(t *testing.T) {
	dec, err := ResolveDecoder(nil)
	if err != nil {
		t.Fatalf("ResolveDecoder(nil) error = %v", err)
	}
	if out, _ := dec([]byte("hi")); out != "hi" {
		t.Errorf("default decoder = %v, want text decode", out)
	}
}

func TestConfig_Merge(t *testing.T) {
	call := Config{Encoder: JSON}
	conn := Config{Encoder: Binary, Decoder: Base64}

	got := call.Merge(conn)
	if got.Encoder != JSON {
		t.Errorf("Encoder = %v, want call-level %q", got.Encoder, JSON)
	}
	if got.Decoder != Base64 {
		t.Errorf("Decoder = %v, want connection-level %q", got.Decoder, Base64)
	}

	empty := Config{}.Merge(Config{})
	if empty.Encoder != nil || empty.Decoder != nil {
		t.Errorf("Merge of empty configs = %+v, want unset fields", empty)
	}
}
