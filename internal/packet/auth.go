package packet

import "github.com/pyr33x/goqtt/pkg/er"

// AUTH reason codes (MQTT-v5.0 §3.15.2.1).
const (
	ReasonContinueAuthentication = 0x18
	ReasonReAuthenticate         = 0x19
)

// AuthPacket supports v5 enhanced/re-authentication exchanges. It has no
// v3.1.1 representation; Decode only reaches this type under a v5 session.
type AuthPacket struct {
	ReasonCode byte
	Properties *Properties
}

func (p *AuthPacket) Type() PacketType { return AUTH }

func (p *AuthPacket) parse(header FixedHeader, body []byte, version ProtocolVersion) error {
	if version != MQTT5 {
		return &er.Err{Context: "Auth", Message: er.ErrInvalidAuthPacket}
	}
	if header.Flags != 0x00 {
		return &er.Err{Context: "Auth, Fixed Header", Message: er.ErrInvalidAuthPacket}
	}
	if len(body) == 0 {
		p.ReasonCode = ReasonSuccess
		return nil
	}

	p.ReasonCode = body[0]
	if len(body) > 1 {
		props, _, err := DecodeProperties(body[1:])
		if err != nil {
			return err
		}
		p.Properties = props
	}
	return nil
}

func (p *AuthPacket) Encode() []byte {
	body := []byte{p.ReasonCode}
	if p.Properties != nil {
		body = append(body, EncodeProperties(p.Properties)...)
	}
	header := FixedHeader{Type: AUTH, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}
