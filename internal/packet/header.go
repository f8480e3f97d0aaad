package packet

import "github.com/pyr33x/goqtt/pkg/er"

// FixedHeader is the first 2-5 bytes present on every control packet.
type FixedHeader struct {
	Type            PacketType
	Flags           byte
	RemainingLength int
}

// DecodeFixedHeader parses the fixed header from the start of raw, returning
// the header and the number of bytes it occupies.
func DecodeFixedHeader(raw []byte) (FixedHeader, int, error) {
	if len(raw) < 2 {
		return FixedHeader{}, 0, &er.Err{Context: "DecodeFixedHeader", Message: er.ErrShortBuffer}
	}

	remLen, offset, err := DecodeVarInt(raw[1:])
	if err != nil {
		return FixedHeader{}, 0, err
	}

	return FixedHeader{
		Type:            PacketType(raw[0] & 0xF0),
		Flags:           raw[0] & 0x0F,
		RemainingLength: remLen,
	}, 1 + offset, nil
}

// Encode serializes the fixed header.
func (h FixedHeader) Encode() []byte {
	out := []byte{byte(h.Type) | h.Flags}
	return append(out, EncodeVarInt(h.RemainingLength)...)
}
