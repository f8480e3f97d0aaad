package packet

import (
	"encoding/binary"

	"github.com/pyr33x/goqtt/pkg/er"
)

// RetainHandling controls whether the broker sends matching retained
// messages when a v5 SUBSCRIBE is (re)applied (MQTT-v5.0 §3.8.3.1).
type RetainHandling byte

const (
	RetainSendAlways          RetainHandling = 0
	RetainSendIfNewSub        RetainHandling = 1
	RetainDoNotSend           RetainHandling = 2
)

// SubscribeFilter is one (topic filter, options) entry in a SUBSCRIBE
// packet's payload.
type SubscribeFilter struct {
	Topic             string
	QoS               QoSLevel
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    RetainHandling
}

type SubscribePacket struct {
	PacketID   uint16
	Filters    []SubscribeFilter
	Properties *Properties // v5 only: SubscriptionIdentifier, UserProperty

	Raw []byte
}

func (sp *SubscribePacket) Type() PacketType { return SUBSCRIBE }

func (sp *SubscribePacket) parse(header FixedHeader, body []byte, version ProtocolVersion) error {
	if header.Flags != 0x02 {
		return &er.Err{Context: "Subscribe, Fixed Header", Message: er.ErrInvalidSubscribeFlags}
	}

	if len(body) < 2 {
		return &er.Err{Context: "Subscribe", Message: er.ErrInvalidSubscribePacket}
	}

	sp.PacketID = binary.BigEndian.Uint16(body[0:2])
	if sp.PacketID == 0 {
		return &er.Err{Context: "Subscribe, PacketID", Message: er.ErrInvalidPacketID}
	}
	offset := 2

	if version == MQTT5 {
		props, n, err := DecodeProperties(body[offset:])
		if err != nil {
			return err
		}
		sp.Properties = props
		offset += n
	}

	sp.Filters = make([]SubscribeFilter, 0)
	for offset < len(body) {
		topic, n, err := DecodeString(body[offset:])
		if err != nil {
			return &er.Err{Context: "Subscribe, Topic Filter", Message: er.ErrInvalidSubscribePacket}
		}
		offset += n

		if topic == "" {
			return &er.Err{Context: "Subscribe, Topic Filter", Message: er.ErrEmptyTopicFilter}
		}

		if offset >= len(body) {
			return &er.Err{Context: "Subscribe, QoS", Message: er.ErrMissingQoSByte}
		}
		opts := body[offset]
		offset++

		reserved := byte(0xFC)
		if version == MQTT5 {
			reserved = 0xC0
		}
		if opts&reserved != 0 {
			return &er.Err{Context: "Subscribe, QoS", Message: er.ErrInvalidQoSReservedBits}
		}

		qos := QoSLevel(opts & 0x03)
		if qos > QoSExactlyOnce {
			return &er.Err{Context: "Subscribe, QoS", Message: er.ErrInvalidQoSLevel}
		}

		f := SubscribeFilter{Topic: topic, QoS: qos}
		if version == MQTT5 {
			f.NoLocal = opts&0x04 != 0
			f.RetainAsPublished = opts&0x08 != 0
			f.RetainHandling = RetainHandling((opts & 0x30) >> 4)
		}

		sp.Filters = append(sp.Filters, f)
	}

	if len(sp.Filters) == 0 {
		return &er.Err{Context: "Subscribe", Message: er.ErrNoTopicFilters}
	}

	return nil
}

func (sp *SubscribePacket) Encode() []byte {
	idBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(idBytes, sp.PacketID)

	body := idBytes
	for _, f := range sp.Filters {
		body = append(body, EncodeString(f.Topic)...)
		opts := byte(f.QoS)
		if f.NoLocal {
			opts |= 0x04
		}
		if f.RetainAsPublished {
			opts |= 0x08
		}
		opts |= byte(f.RetainHandling) << 4
		body = append(body, opts)
	}

	header := FixedHeader{Type: SUBSCRIBE, Flags: 0x02, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}
