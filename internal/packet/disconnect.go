package packet

import "github.com/pyr33x/goqtt/pkg/er"

// DISCONNECT reason codes (v5 only; v3.1.1 has no reason code).
const (
	ReasonDisconnectWithWillMessage = 0x04
)

type DisconnectPacket struct {
	ReasonCode byte
	Properties *Properties // v5 only
}

func (dp *DisconnectPacket) Type() PacketType { return DISCONNECT }

func (dp *DisconnectPacket) parse(header FixedHeader, body []byte, version ProtocolVersion) error {
	if header.Flags != 0x00 {
		return &er.Err{Context: "Disconnect, Fixed Header", Message: er.ErrInvalidDisconnectPacket}
	}
	if version != MQTT5 || len(body) == 0 {
		return nil
	}

	dp.ReasonCode = body[0]
	if len(body) > 1 {
		props, _, err := DecodeProperties(body[1:])
		if err != nil {
			return err
		}
		dp.Properties = props
	}
	return nil
}

func (dp *DisconnectPacket) Encode() []byte {
	var body []byte
	if dp.ReasonCode != 0 || dp.Properties != nil {
		body = append(body, dp.ReasonCode)
		if dp.Properties != nil {
			body = append(body, EncodeProperties(dp.Properties)...)
		}
	}
	header := FixedHeader{Type: DISCONNECT, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}
