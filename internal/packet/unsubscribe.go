package packet

import (
	"encoding/binary"

	"github.com/pyr33x/goqtt/pkg/er"
)

type UnsubscribePacket struct {
	PacketID     uint16
	TopicFilters []string
	Properties   *Properties // v5 only

	Raw []byte
}

func (up *UnsubscribePacket) Type() PacketType { return UNSUBSCRIBE }

func (up *UnsubscribePacket) parse(header FixedHeader, body []byte, version ProtocolVersion) error {
	if header.Flags != 0x02 {
		return &er.Err{Context: "Unsubscribe, Fixed Header", Message: er.ErrInvalidUnsubscribeFlags}
	}
	if len(body) < 2 {
		return &er.Err{Context: "Unsubscribe", Message: er.ErrInvalidUnsubscribePacket}
	}

	up.PacketID = binary.BigEndian.Uint16(body[0:2])
	if up.PacketID == 0 {
		return &er.Err{Context: "Unsubscribe, PacketID", Message: er.ErrInvalidPacketID}
	}
	offset := 2

	if version == MQTT5 {
		props, n, err := DecodeProperties(body[offset:])
		if err != nil {
			return err
		}
		up.Properties = props
		offset += n
	}

	up.TopicFilters = make([]string, 0)
	for offset < len(body) {
		topic, n, err := DecodeString(body[offset:])
		if err != nil {
			return &er.Err{Context: "Unsubscribe, Topic Filter", Message: er.ErrInvalidUnsubscribePacket}
		}
		offset += n
		if topic == "" {
			return &er.Err{Context: "Unsubscribe, Topic Filter", Message: er.ErrEmptyTopicFilter}
		}
		up.TopicFilters = append(up.TopicFilters, topic)
	}

	if len(up.TopicFilters) == 0 {
		return &er.Err{Context: "Unsubscribe", Message: er.ErrNoTopicFilters}
	}

	return nil
}

func (up *UnsubscribePacket) Encode() []byte {
	idBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(idBytes, up.PacketID)

	body := idBytes
	for _, f := range up.TopicFilters {
		body = append(body, EncodeString(f)...)
	}

	header := FixedHeader{Type: UNSUBSCRIBE, Flags: 0x02, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}
