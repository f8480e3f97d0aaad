package packet

import (
	"encoding/binary"

	"github.com/pyr33x/goqtt/pkg/er"
)

// ackBody is shared by the four QoS acknowledgment packet types: a packet
// identifier, and — v5 only, and only when there's something to say —
// a reason code plus properties.
type ackBody struct {
	PacketID   uint16
	ReasonCode byte
	Properties *Properties
}

func parseAckBody(header FixedHeader, body []byte, version ProtocolVersion, context string) (ackBody, error) {
	var a ackBody
	if len(body) < 2 {
		return a, &er.Err{Context: context, Message: er.ErrInvalidAckPacket}
	}
	a.PacketID = binary.BigEndian.Uint16(body[0:2])
	if a.PacketID == 0 {
		return a, &er.Err{Context: context, Message: er.ErrInvalidPacketID}
	}

	if version == MQTT5 && len(body) > 2 {
		a.ReasonCode = body[2]
		if len(body) > 3 {
			props, _, err := DecodeProperties(body[3:])
			if err != nil {
				return a, err
			}
			a.Properties = props
		}
	}
	return a, nil
}

func encodeAckBody(packetType PacketType, a ackBody, version ProtocolVersion) []byte {
	idBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(idBytes, a.PacketID)

	body := idBytes
	if version == MQTT5 && (a.ReasonCode != 0 || a.Properties != nil) {
		body = append(body, a.ReasonCode)
		if a.Properties != nil {
			body = append(body, EncodeProperties(a.Properties)...)
		}
	}

	header := FixedHeader{Type: packetType, RemainingLength: len(body)}
	if packetType == PUBREL {
		header.Flags = 0x02
	}
	return append(header.Encode(), body...)
}

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	ackBody
}

func (p *PubackPacket) Type() PacketType { return PUBACK }
func (p *PubackPacket) Encode() []byte   { return encodeAckBody(PUBACK, p.ackBody, MQTT311) }
func (p *PubackPacket) EncodeVersioned(v ProtocolVersion) []byte {
	return encodeAckBody(PUBACK, p.ackBody, v)
}
func (p *PubackPacket) parse(h FixedHeader, body []byte, v ProtocolVersion) error {
	a, err := parseAckBody(h, body, v, "Puback")
	p.ackBody = a
	return err
}

// NewPubAck builds a success PUBACK for the given incoming PUBLISH packet ID.
func NewPubAck(packetID uint16) []byte {
	return encodeAckBody(PUBACK, ackBody{PacketID: packetID}, MQTT311)
}

// PubrecPacket is the first half of the QoS 2 handshake, sent by the
// receiver in response to PUBLISH.
type PubrecPacket struct {
	ackBody
}

func (p *PubrecPacket) Type() PacketType { return PUBREC }
func (p *PubrecPacket) Encode() []byte   { return encodeAckBody(PUBREC, p.ackBody, MQTT311) }
func (p *PubrecPacket) EncodeVersioned(v ProtocolVersion) []byte {
	return encodeAckBody(PUBREC, p.ackBody, v)
}
func (p *PubrecPacket) parse(h FixedHeader, body []byte, v ProtocolVersion) error {
	a, err := parseAckBody(h, body, v, "Pubrec")
	p.ackBody = a
	return err
}

func NewPubRec(packetID uint16) []byte {
	return encodeAckBody(PUBREC, ackBody{PacketID: packetID}, MQTT311)
}

// PubrelPacket is the sender's reply to PUBREC.
type PubrelPacket struct {
	ackBody
}

func (p *PubrelPacket) Type() PacketType { return PUBREL }
func (p *PubrelPacket) Encode() []byte   { return encodeAckBody(PUBREL, p.ackBody, MQTT311) }
func (p *PubrelPacket) EncodeVersioned(v ProtocolVersion) []byte {
	return encodeAckBody(PUBREL, p.ackBody, v)
}
func (p *PubrelPacket) parse(h FixedHeader, body []byte, v ProtocolVersion) error {
	a, err := parseAckBody(h, body, v, "Pubrel")
	p.ackBody = a
	return err
}

func NewPubRel(packetID uint16) []byte {
	return encodeAckBody(PUBREL, ackBody{PacketID: packetID}, MQTT311)
}

// NewPubrelPacket builds a PubrelPacket value for a given incoming
// PUBREC's packet ID, for callers that need the Packet rather than its
// raw v3.1.1 encoding (e.g. per-version redelivery).
func NewPubrelPacket(packetID uint16) *PubrelPacket {
	return &PubrelPacket{ackBody{PacketID: packetID}}
}

// PubcompPacket completes the QoS 2 handshake.
type PubcompPacket struct {
	ackBody
}

func (p *PubcompPacket) Type() PacketType { return PUBCOMP }
func (p *PubcompPacket) Encode() []byte   { return encodeAckBody(PUBCOMP, p.ackBody, MQTT311) }
func (p *PubcompPacket) EncodeVersioned(v ProtocolVersion) []byte {
	return encodeAckBody(PUBCOMP, p.ackBody, v)
}
func (p *PubcompPacket) parse(h FixedHeader, body []byte, v ProtocolVersion) error {
	a, err := parseAckBody(h, body, v, "Pubcomp")
	p.ackBody = a
	return err
}

func NewPubComp(packetID uint16) []byte {
	return encodeAckBody(PUBCOMP, ackBody{PacketID: packetID}, MQTT311)
}
