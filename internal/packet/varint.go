package packet

import "github.com/pyr33x/goqtt/pkg/er"

// EncodeVarInt encodes the MQTT Variable Byte Integer used for both the
// fixed header's Remaining Length and v5 property lengths.
func EncodeVarInt(length int) []byte {
	if length < 0 {
		return []byte{0}
	}

	var encoded []byte
	for {
		b := byte(length % 128)
		length /= 128
		if length > 0 {
			b |= 0x80
		}
		encoded = append(encoded, b)
		if length == 0 {
			break
		}
		if len(encoded) >= 4 {
			break
		}
	}
	return encoded
}

// DecodeVarInt decodes a Variable Byte Integer from data, returning the
// value, the number of bytes consumed, and any error.
func DecodeVarInt(data []byte) (int, int, error) {
	var length, multiplier, offset int
	multiplier = 1

	for {
		if offset >= len(data) {
			return 0, 0, &er.Err{Context: "DecodeVarInt", Message: er.ErrShortBuffer}
		}
		if offset >= 4 {
			return 0, 0, &er.Err{Context: "DecodeVarInt", Message: er.ErrRemainingLengthExceeded}
		}

		b := data[offset]
		length += int(b&0x7F) * multiplier

		if length > MaxPayloadSize {
			return 0, 0, &er.Err{Context: "DecodeVarInt", Message: er.ErrRemainingLengthExceeded}
		}

		multiplier *= 128
		offset++

		if b&0x80 == 0 {
			break
		}
	}

	return length, offset, nil
}
