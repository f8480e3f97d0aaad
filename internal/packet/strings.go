package packet

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pyr33x/goqtt/pkg/er"
)

// EncodeString encodes a UTF-8 string with its 2-byte length prefix.
func EncodeString(s string) []byte {
	out := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(out, uint16(len(s)))
	copy(out[2:], s)
	return out
}

// DecodeString decodes a 2-byte-length-prefixed UTF-8 string, returning the
// string, bytes consumed, and any error.
func DecodeString(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, &er.Err{Context: "DecodeString", Message: er.ErrShortBuffer}
	}

	length := int(binary.BigEndian.Uint16(b[:2]))
	if len(b) < 2+length {
		return "", 0, &er.Err{Context: "DecodeString", Message: er.ErrRemainingLenMissmatch}
	}

	s := string(b[2 : 2+length])
	if !utf8.ValidString(s) {
		return "", 0, &er.Err{Context: "DecodeString", Message: er.ErrInvalidUTF8String}
	}

	return s, 2 + length, nil
}

// EncodeBinary encodes a 2-byte-length-prefixed opaque byte string (used by
// v5 Correlation Data and Authentication Data properties).
func EncodeBinary(data []byte) []byte {
	out := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(out, uint16(len(data)))
	copy(out[2:], data)
	return out
}

// DecodeBinary decodes a 2-byte-length-prefixed opaque byte string.
func DecodeBinary(b []byte) ([]byte, int, error) {
	if len(b) < 2 {
		return nil, 0, &er.Err{Context: "DecodeBinary", Message: er.ErrShortBuffer}
	}

	length := int(binary.BigEndian.Uint16(b[:2]))
	if len(b) < 2+length {
		return nil, 0, &er.Err{Context: "DecodeBinary", Message: er.ErrRemainingLenMissmatch}
	}

	out := make([]byte, length)
	copy(out, b[2:2+length])
	return out, 2 + length, nil
}
