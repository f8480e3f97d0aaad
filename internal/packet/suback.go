package packet

import (
	"encoding/binary"

	"github.com/pyr33x/goqtt/pkg/er"
)

// SUBACK return codes / v5 reason codes.
const (
	SubackMaxQoS0 byte = ReasonGrantedQoS0
	SubackMaxQoS1 byte = ReasonGrantedQoS1
	SubackMaxQoS2 byte = ReasonGrantedQoS2
	SubackFailure byte = ReasonUnspecifiedError
)

type SubackPacket struct {
	Version     ProtocolVersion
	PacketID    uint16
	ReturnCodes []byte
	Properties  *Properties // v5 only
}

func (p *SubackPacket) Type() PacketType { return SUBACK }

// NewSubAck grants the requested QoS for every filter in subscribePacket,
// capped at QoS 2.
func NewSubAck(subscribePacket *SubscribePacket) *SubackPacket {
	codes := make([]byte, len(subscribePacket.Filters))
	for i, f := range subscribePacket.Filters {
		switch {
		case f.QoS == QoSAtMostOnce:
			codes[i] = SubackMaxQoS0
		case f.QoS == QoSAtLeastOnce:
			codes[i] = SubackMaxQoS1
		case f.QoS >= QoSExactlyOnce:
			codes[i] = SubackMaxQoS2
		default:
			codes[i] = SubackFailure
		}
	}
	return &SubackPacket{PacketID: subscribePacket.PacketID, ReturnCodes: codes}
}

func (p *SubackPacket) Encode() []byte {
	idBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(idBytes, p.PacketID)

	body := idBytes
	if p.Version == MQTT5 {
		body = append(body, EncodeProperties(p.Properties)...)
	}
	body = append(body, p.ReturnCodes...)

	header := FixedHeader{Type: SUBACK, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}

func (p *SubackPacket) Parse(raw []byte, version ProtocolVersion) error {
	header, offset, err := DecodeFixedHeader(raw)
	if err != nil {
		return err
	}
	if header.Type != SUBACK {
		return &er.Err{Context: "SUBACK", Message: er.ErrInvalidPacketType}
	}
	if len(raw) != offset+header.RemainingLength {
		return &er.Err{Context: "SUBACK", Message: er.ErrInvalidPacketLength}
	}
	body := raw[offset:]
	if len(body) < 2 {
		return &er.Err{Context: "SUBACK", Message: er.ErrShortBuffer}
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
	}

	p.ReturnCodes = make([]byte, len(body)-bodyOffset)
	copy(p.ReturnCodes, body[bodyOffset:])
	return nil
}
