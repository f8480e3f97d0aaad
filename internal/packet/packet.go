package packet

import "github.com/pyr33x/goqtt/pkg/er"

// Packet is implemented by every decoded control packet body.
type Packet interface {
	Type() PacketType
	Encode() []byte
}

// Decode parses a complete raw control packet (fixed header included) into
// its concrete Packet type. version controls which packets know how to
// expect v5 properties; CONNECT is always decoded regardless of version
// since the protocol level itself lives inside the packet.
func Decode(raw []byte, version ProtocolVersion) (Packet, error) {
	header, offset, err := DecodeFixedHeader(raw)
	if err != nil {
		return nil, err
	}

	if len(raw) != offset+header.RemainingLength {
		return nil, &er.Err{Context: "Decode", Message: er.ErrInvalidPacketLength}
	}
	body := raw[offset:]

	switch header.Type {
	case CONNECT:
		p := &ConnectPacket{}
		return p, p.Parse(raw)
	case PUBLISH:
		p := &PublishPacket{}
		return p, p.parse(header, body, version)
	case PUBACK:
		p := &PubackPacket{}
		return p, p.parse(header, body, version)
	case PUBREC:
		p := &PubrecPacket{}
		return p, p.parse(header, body, version)
	case PUBREL:
		p := &PubrelPacket{}
		return p, p.parse(header, body, version)
	case PUBCOMP:
		p := &PubcompPacket{}
		return p, p.parse(header, body, version)
	case SUBSCRIBE:
		p := &SubscribePacket{}
		return p, p.parse(header, body, version)
	case UNSUBSCRIBE:
		p := &UnsubscribePacket{}
		return p, p.parse(header, body, version)
	case PINGREQ:
		p := &PingreqPacket{}
		return p, p.Parse(raw)
	case DISCONNECT:
		p := &DisconnectPacket{}
		return p, p.parse(header, body, version)
	case AUTH:
		p := &AuthPacket{}
		return p, p.parse(header, body, version)
	default:
		return nil, &er.Err{Context: "Decode", Message: er.ErrInvalidPacketType}
	}
}
