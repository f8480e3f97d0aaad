package packet

import (
	"encoding/binary"

	"github.com/pyr33x/goqtt/pkg/er"
)

// PublishPacket carries an application message, v3.1.1 or v5.
type PublishPacket struct {
	DUP    bool
	QoS    QoSLevel
	Retain bool

	// Topic may be empty in v5 when a non-zero TopicAlias property is
	// present and the session has already learned the mapping.
	Topic    string
	PacketID *uint16

	Properties *Properties // v5 only

	Payload []byte

	Raw []byte
}

func (pp *PublishPacket) Type() PacketType { return PUBLISH }

func (pp *PublishPacket) parse(header FixedHeader, body []byte, version ProtocolVersion) error {
	pp.DUP = header.Flags&0x08 != 0
	pp.QoS = QoSLevel((header.Flags & 0x06) >> 1)
	pp.Retain = header.Flags&0x01 != 0

	if pp.QoS > QoSExactlyOnce {
		return &er.Err{Context: "Publish, QoS", Message: er.ErrInvalidQoSLevel}
	}
	if pp.DUP && pp.QoS == QoSAtMostOnce {
		return &er.Err{Context: "Publish, DUP Flag", Message: er.ErrInvalidDUPFlag}
	}

	offset := 0
	topic, n, err := DecodeString(body[offset:])
	if err != nil {
		return &er.Err{Context: "Publish, Topic", Message: er.ErrInvalidPublishPacket}
	}
	pp.Topic = topic
	offset += n

	if pp.QoS != QoSAtMostOnce {
		if offset+2 > len(body) {
			return &er.Err{Context: "Publish, PacketID", Message: er.ErrMissingPacketID}
		}
		id := binary.BigEndian.Uint16(body[offset : offset+2])
		if id == 0 {
			return &er.Err{Context: "Publish, PacketID", Message: er.ErrInvalidPacketID}
		}
		pp.PacketID = &id
		offset += 2
	}

	if version == MQTT5 {
		props, n, err := DecodeProperties(body[offset:])
		if err != nil {
			return err
		}
		pp.Properties = props
		offset += n
	}

	if pp.Topic == "" && (pp.Properties == nil || !pp.Properties.has(presenceTopicAlias)) {
		return &er.Err{Context: "Publish, Topic", Message: er.ErrEmptyTopic}
	}

	payloadLen := len(body) - offset
	if payloadLen > MaxPayloadSize {
		return &er.Err{Context: "Publish, Payload", Message: er.ErrPayloadTooLarge}
	}
	pp.Payload = make([]byte, payloadLen)
	copy(pp.Payload, body[offset:])

	return nil
}

// Parse keeps the teacher's convention of a self-contained entry point
// that also validates the fixed header's packet type.
func (pp *PublishPacket) Parse(raw []byte, version ProtocolVersion) error {
	header, offset, err := DecodeFixedHeader(raw)
	if err != nil {
		return err
	}
	if header.Type != PUBLISH {
		return &er.Err{Context: "Publish", Message: er.ErrInvalidPublishPacket}
	}
	if len(raw) != offset+header.RemainingLength {
		return &er.Err{Context: "Publish, Packet Length", Message: er.ErrInvalidPacketLength}
	}
	pp.Raw = raw
	return pp.parse(header, raw[offset:], version)
}

func (pp *PublishPacket) Encode() []byte {
	return pp.encode(MQTT311)
}

// EncodeVersioned encodes the packet for the given protocol version, since
// the same in-memory PublishPacket is fanned out to both v3 and v5 sessions.
func (pp *PublishPacket) EncodeVersioned(version ProtocolVersion) []byte {
	return pp.encode(version)
}

func (pp *PublishPacket) encode(version ProtocolVersion) []byte {
	var body []byte
	body = append(body, EncodeString(pp.Topic)...)

	if pp.QoS != QoSAtMostOnce && pp.PacketID != nil {
		idBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(idBytes, *pp.PacketID)
		body = append(body, idBytes...)
	}

	if version == MQTT5 {
		body = append(body, EncodeProperties(pp.Properties)...)
	}

	body = append(body, pp.Payload...)

	var flags byte
	if pp.DUP {
		flags |= 0x08
	}
	flags |= byte(pp.QoS) << 1
	if pp.Retain {
		flags |= 0x01
	}

	header := FixedHeader{Type: PUBLISH, Flags: flags, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}
