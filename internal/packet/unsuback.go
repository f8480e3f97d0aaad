package packet

import (
	"encoding/binary"

	"github.com/pyr33x/goqtt/pkg/er"
)

type UnsubackPacket struct {
	Version     ProtocolVersion
	PacketID    uint16
	ReasonCodes []byte      // v5 only; v3.1.1 UNSUBACK carries no payload
	Properties  *Properties // v5 only
}

func (p *UnsubackPacket) Type() PacketType { return UNSUBACK }

// NewUnsubAck grants every requested filter removal.
func NewUnsubAck(unsubscribePacket *UnsubscribePacket) *UnsubackPacket {
	codes := make([]byte, len(unsubscribePacket.TopicFilters))
	for i := range codes {
		codes[i] = ReasonSuccess
	}
	return &UnsubackPacket{PacketID: unsubscribePacket.PacketID, ReasonCodes: codes}
}

func (p *UnsubackPacket) Parse(raw []byte, version ProtocolVersion) error {
	header, offset, err := DecodeFixedHeader(raw)
	if err != nil {
		return err
	}
	if header.Type != UNSUBACK {
		return &er.Err{Context: "UNSUBACK", Message: er.ErrInvalidPacketType}
	}
	if len(raw) != offset+header.RemainingLength {
		return &er.Err{Context: "UNSUBACK", Message: er.ErrInvalidPacketLength}
	}
	body := raw[offset:]
	if len(body) < 2 {
		return &er.Err{Context: "UNSUBACK", Message: er.ErrShortBuffer}
	}

	p.Version = version
	p.PacketID = binary.BigEndian.Uint16(body[0:2])
	bodyOffset := 2

	if version == MQTT5 {
		props, n, err := DecodeProperties(body[bodyOffset:])
		if err != nil {
			return err
		}
		p.Properties = props
		bodyOffset += n
		p.ReasonCodes = make([]byte, len(body)-bodyOffset)
		copy(p.ReasonCodes, body[bodyOffset:])
	}

	return nil
}

func (p *UnsubackPacket) Encode() []byte {
	idBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(idBytes, p.PacketID)

	body := idBytes
	if p.Version == MQTT5 {
		body = append(body, EncodeProperties(p.Properties)...)
		body = append(body, p.ReasonCodes...)
	}

	header := FixedHeader{Type: UNSUBACK, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}
