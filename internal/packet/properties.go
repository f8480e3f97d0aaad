package packet

import (
	"encoding/binary"

	"github.com/pyr33x/goqtt/pkg/er"
)

// v5 property identifiers (MQTT-v5.0 §2.2.2.2).
const (
	PropPayloadFormatIndicator    byte = 0x01
	PropMessageExpiryInterval     byte = 0x02
	PropContentType               byte = 0x03
	PropResponseTopic             byte = 0x08
	PropCorrelationData           byte = 0x09
	PropSubscriptionIdentifier    byte = 0x0B
	PropSessionExpiryInterval     byte = 0x11
	PropAssignedClientIdentifier  byte = 0x12
	PropServerKeepAlive           byte = 0x13
	PropAuthenticationMethod      byte = 0x15
	PropAuthenticationData        byte = 0x16
	PropRequestProblemInformation byte = 0x17
	PropWillDelayInterval         byte = 0x18
	PropRequestResponseInfo       byte = 0x19
	PropResponseInformation       byte = 0x1A
	PropServerReference           byte = 0x1C
	PropReasonString              byte = 0x1F
	PropReceiveMaximum            byte = 0x21
	PropTopicAliasMaximum         byte = 0x22
	PropTopicAlias                byte = 0x23
	PropMaximumQoS                byte = 0x24
	PropRetainAvailable           byte = 0x25
	PropUserProperty              byte = 0x26
	PropMaximumPacketSize         byte = 0x27
	PropWildcardSubAvailable      byte = 0x28
	PropSubIDsAvailable           byte = 0x29
	PropSharedSubAvailable        byte = 0x2A
)

// Presence bits, one per optional scalar/singular property. Repeatable
// properties (UserProperty, SubscriptionIdentifier) are tracked by the
// length of their slice instead of a bit, avoiding pointer fields for
// every other optional property.
const (
	presencePayloadFormatIndicator = 1 << iota
	presenceMessageExpiryInterval
	presenceContentType
	presenceResponseTopic
	presenceCorrelationData
	presenceSessionExpiryInterval
	presenceAssignedClientIdentifier
	presenceServerKeepAlive
	presenceAuthenticationMethod
	presenceAuthenticationData
	presenceRequestProblemInformation
	presenceWillDelayInterval
	presenceRequestResponseInfo
	presenceResponseInformation
	presenceServerReference
	presenceReasonString
	presenceReceiveMaximum
	presenceTopicAliasMaximum
	presenceTopicAlias
	presenceMaximumQoS
	presenceRetainAvailable
	presenceMaximumPacketSize
	presenceWildcardSubAvailable
	presenceSubIDsAvailable
	presenceSharedSubAvailable
)

// UserProperty is a repeatable free-form key/value pair (v5 §2.2.2.2).
type UserProperty struct {
	Key   string
	Value string
}

// Properties holds the v5 property set relevant to this broker. Singular
// optional fields are guarded by a presence bitmask rather than pointers;
// repeatable fields use nil/empty slices as their own presence signal.
type Properties struct {
	Presence uint32

	PayloadFormatIndicator byte
	MessageExpiryInterval  uint32
	ContentType            string
	ResponseTopic          string
	CorrelationData        []byte

	SessionExpiryInterval    uint32
	AssignedClientIdentifier string
	ServerKeepAlive          uint16
	AuthenticationMethod     string
	AuthenticationData       []byte
	RequestProblemInfo       byte
	WillDelayInterval        uint32
	RequestResponseInfo      byte
	ResponseInformation      string
	ServerReference          string
	ReasonString             string
	ReceiveMaximum           uint16
	TopicAliasMaximum        uint16
	TopicAlias               uint16
	MaximumQoS               byte
	RetainAvailable          byte
	MaximumPacketSize        uint32
	WildcardSubAvailable     byte
	SubIDsAvailable          byte
	SharedSubAvailable       byte

	SubscriptionIdentifiers []int
	UserProperties          []UserProperty
}

func (p *Properties) has(bit uint32) bool { return p != nil && p.Presence&bit != 0 }

func (p *Properties) SetSessionExpiryInterval(v uint32) {
	p.SessionExpiryInterval = v
	p.Presence |= presenceSessionExpiryInterval
}

func (p *Properties) SetReceiveMaximum(v uint16) {
	p.ReceiveMaximum = v
	p.Presence |= presenceReceiveMaximum
}

func (p *Properties) SetTopicAliasMaximum(v uint16) {
	p.TopicAliasMaximum = v
	p.Presence |= presenceTopicAliasMaximum
}

func (p *Properties) SetTopicAlias(v uint16) {
	p.TopicAlias = v
	p.Presence |= presenceTopicAlias
}

func (p *Properties) SetAssignedClientIdentifier(v string) {
	p.AssignedClientIdentifier = v
	p.Presence |= presenceAssignedClientIdentifier
}

func (p *Properties) SetReasonString(v string) {
	p.ReasonString = v
	p.Presence |= presenceReasonString
}

func (p *Properties) SetMaximumQoS(v byte) {
	p.MaximumQoS = v
	p.Presence |= presenceMaximumQoS
}

func (p *Properties) SetRetainAvailable(v byte) {
	p.RetainAvailable = v
	p.Presence |= presenceRetainAvailable
}

func (p *Properties) SetWildcardSubAvailable(v byte) {
	p.WildcardSubAvailable = v
	p.Presence |= presenceWildcardSubAvailable
}

func (p *Properties) SetSubIDsAvailable(v byte) {
	p.SubIDsAvailable = v
	p.Presence |= presenceSubIDsAvailable
}

func (p *Properties) SetSharedSubAvailable(v byte) {
	p.SharedSubAvailable = v
	p.Presence |= presenceSharedSubAvailable
}

func (p *Properties) SetServerKeepAlive(v uint16) {
	p.ServerKeepAlive = v
	p.Presence |= presenceServerKeepAlive
}

func (p *Properties) SetMessageExpiryInterval(v uint32) {
	p.MessageExpiryInterval = v
	p.Presence |= presenceMessageExpiryInterval
}

func (p *Properties) SetWillDelayInterval(v uint32) {
	p.WillDelayInterval = v
	p.Presence |= presenceWillDelayInterval
}

// EncodeProperties serializes the property set as a Variable Byte Integer
// length prefix followed by each present (id, value) pair.
func EncodeProperties(p *Properties) []byte {
	var body []byte

	appendU32 := func(id byte, v uint32) {
		body = append(body, id)
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		body = append(body, b...)
	}
	appendU16 := func(id byte, v uint16) {
		body = append(body, id)
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, v)
		body = append(body, b...)
	}
	appendByte := func(id byte, v byte) {
		body = append(body, id, v)
	}
	appendStr := func(id byte, v string) {
		body = append(body, id)
		body = append(body, EncodeString(v)...)
	}
	appendBin := func(id byte, v []byte) {
		body = append(body, id)
		body = append(body, EncodeBinary(v)...)
	}

	if p == nil {
		return EncodeVarInt(0)
	}

	if p.has(presencePayloadFormatIndicator) {
		appendByte(PropPayloadFormatIndicator, p.PayloadFormatIndicator)
	}
	if p.has(presenceMessageExpiryInterval) {
		appendU32(PropMessageExpiryInterval, p.MessageExpiryInterval)
	}
	if p.has(presenceContentType) {
		appendStr(PropContentType, p.ContentType)
	}
	if p.has(presenceResponseTopic) {
		appendStr(PropResponseTopic, p.ResponseTopic)
	}
	if p.has(presenceCorrelationData) {
		appendBin(PropCorrelationData, p.CorrelationData)
	}
	for _, id := range p.SubscriptionIdentifiers {
		body = append(body, PropSubscriptionIdentifier)
		body = append(body, EncodeVarInt(id)...)
	}
	if p.has(presenceSessionExpiryInterval) {
		appendU32(PropSessionExpiryInterval, p.SessionExpiryInterval)
	}
	if p.has(presenceAssignedClientIdentifier) {
		appendStr(PropAssignedClientIdentifier, p.AssignedClientIdentifier)
	}
	if p.has(presenceServerKeepAlive) {
		appendU16(PropServerKeepAlive, p.ServerKeepAlive)
	}
	if p.has(presenceAuthenticationMethod) {
		appendStr(PropAuthenticationMethod, p.AuthenticationMethod)
	}
	if p.has(presenceAuthenticationData) {
		appendBin(PropAuthenticationData, p.AuthenticationData)
	}
	if p.has(presenceRequestProblemInformation) {
		appendByte(PropRequestProblemInformation, p.RequestProblemInfo)
	}
	if p.has(presenceWillDelayInterval) {
		appendU32(PropWillDelayInterval, p.WillDelayInterval)
	}
	if p.has(presenceRequestResponseInfo) {
		appendByte(PropRequestResponseInfo, p.RequestResponseInfo)
	}
	if p.has(presenceResponseInformation) {
		appendStr(PropResponseInformation, p.ResponseInformation)
	}
	if p.has(presenceServerReference) {
		appendStr(PropServerReference, p.ServerReference)
	}
	if p.has(presenceReasonString) {
		appendStr(PropReasonString, p.ReasonString)
	}
	if p.has(presenceReceiveMaximum) {
		appendU16(PropReceiveMaximum, p.ReceiveMaximum)
	}
	if p.has(presenceTopicAliasMaximum) {
		appendU16(PropTopicAliasMaximum, p.TopicAliasMaximum)
	}
	if p.has(presenceTopicAlias) {
		appendU16(PropTopicAlias, p.TopicAlias)
	}
	if p.has(presenceMaximumQoS) {
		appendByte(PropMaximumQoS, p.MaximumQoS)
	}
	if p.has(presenceRetainAvailable) {
		appendByte(PropRetainAvailable, p.RetainAvailable)
	}
	for _, up := range p.UserProperties {
		body = append(body, PropUserProperty)
		body = append(body, EncodeString(up.Key)...)
		body = append(body, EncodeString(up.Value)...)
	}
	if p.has(presenceMaximumPacketSize) {
		appendU32(PropMaximumPacketSize, p.MaximumPacketSize)
	}
	if p.has(presenceWildcardSubAvailable) {
		appendByte(PropWildcardSubAvailable, p.WildcardSubAvailable)
	}
	if p.has(presenceSubIDsAvailable) {
		appendByte(PropSubIDsAvailable, p.SubIDsAvailable)
	}
	if p.has(presenceSharedSubAvailable) {
		appendByte(PropSharedSubAvailable, p.SharedSubAvailable)
	}

	return append(EncodeVarInt(len(body)), body...)
}

// DecodeProperties reads a Variable-Byte-Integer-prefixed property block,
// returning the parsed Properties, total bytes consumed (including the
// length prefix), and any error.
func DecodeProperties(data []byte) (*Properties, int, error) {
	length, lenBytes, err := DecodeVarInt(data)
	if err != nil {
		return nil, 0, err
	}
	if lenBytes+length > len(data) {
		return nil, 0, &er.Err{Context: "DecodeProperties", Message: er.ErrInvalidPropertyLength}
	}

	body := data[lenBytes : lenBytes+length]
	props := &Properties{}
	offset := 0

	readU32 := func() (uint32, error) {
		if offset+4 > len(body) {
			return 0, &er.Err{Context: "DecodeProperties", Message: er.ErrShortBuffer}
		}
		v := binary.BigEndian.Uint32(body[offset : offset+4])
		offset += 4
		return v, nil
	}
	readU16 := func() (uint16, error) {
		if offset+2 > len(body) {
			return 0, &er.Err{Context: "DecodeProperties", Message: er.ErrShortBuffer}
		}
		v := binary.BigEndian.Uint16(body[offset : offset+2])
		offset += 2
		return v, nil
	}
	readByte := func() (byte, error) {
		if offset+1 > len(body) {
			return 0, &er.Err{Context: "DecodeProperties", Message: er.ErrShortBuffer}
		}
		v := body[offset]
		offset++
		return v, nil
	}
	readStr := func() (string, error) {
		s, n, err := DecodeString(body[offset:])
		if err != nil {
			return "", err
		}
		offset += n
		return s, nil
	}
	readBin := func() ([]byte, error) {
		b, n, err := DecodeBinary(body[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		return b, nil
	}
	readVarInt := func() (int, error) {
		v, n, err := DecodeVarInt(body[offset:])
		if err != nil {
			return 0, err
		}
		offset += n
		return v, nil
	}

	for offset < len(body) {
		id := body[offset]
		offset++

		switch id {
		case PropPayloadFormatIndicator:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.PayloadFormatIndicator = v
			props.Presence |= presencePayloadFormatIndicator
		case PropMessageExpiryInterval:
			v, err := readU32()
			if err != nil {
				return nil, 0, err
			}
			props.SetMessageExpiryInterval(v)
		case PropContentType:
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.ContentType = v
			props.Presence |= presenceContentType
		case PropResponseTopic:
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.ResponseTopic = v
			props.Presence |= presenceResponseTopic
		case PropCorrelationData:
			v, err := readBin()
			if err != nil {
				return nil, 0, err
			}
			props.CorrelationData = v
			props.Presence |= presenceCorrelationData
		case PropSubscriptionIdentifier:
			v, err := readVarInt()
			if err != nil {
				return nil, 0, err
			}
			props.SubscriptionIdentifiers = append(props.SubscriptionIdentifiers, v)
		case PropSessionExpiryInterval:
			v, err := readU32()
			if err != nil {
				return nil, 0, err
			}
			props.SetSessionExpiryInterval(v)
		case PropAssignedClientIdentifier:
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.SetAssignedClientIdentifier(v)
		case PropServerKeepAlive:
			v, err := readU16()
			if err != nil {
				return nil, 0, err
			}
			props.SetServerKeepAlive(v)
		case PropAuthenticationMethod:
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.AuthenticationMethod = v
			props.Presence |= presenceAuthenticationMethod
		case PropAuthenticationData:
			v, err := readBin()
			if err != nil {
				return nil, 0, err
			}
			props.AuthenticationData = v
			props.Presence |= presenceAuthenticationData
		case PropRequestProblemInformation:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.RequestProblemInfo = v
			props.Presence |= presenceRequestProblemInformation
		case PropWillDelayInterval:
			v, err := readU32()
			if err != nil {
				return nil, 0, err
			}
			props.SetWillDelayInterval(v)
		case PropRequestResponseInfo:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.RequestResponseInfo = v
			props.Presence |= presenceRequestResponseInfo
		case PropResponseInformation:
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.ResponseInformation = v
			props.Presence |= presenceResponseInformation
		case PropServerReference:
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.ServerReference = v
			props.Presence |= presenceServerReference
		case PropReasonString:
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.SetReasonString(v)
		case PropReceiveMaximum:
			v, err := readU16()
			if err != nil {
				return nil, 0, err
			}
			props.SetReceiveMaximum(v)
		case PropTopicAliasMaximum:
			v, err := readU16()
			if err != nil {
				return nil, 0, err
			}
			props.SetTopicAliasMaximum(v)
		case PropTopicAlias:
			v, err := readU16()
			if err != nil {
				return nil, 0, err
			}
			props.SetTopicAlias(v)
		case PropMaximumQoS:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.SetMaximumQoS(v)
		case PropRetainAvailable:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.SetRetainAvailable(v)
		case PropUserProperty:
			k, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			v, err := readStr()
			if err != nil {
				return nil, 0, err
			}
			props.UserProperties = append(props.UserProperties, UserProperty{Key: k, Value: v})
		case PropMaximumPacketSize:
			v, err := readU32()
			if err != nil {
				return nil, 0, err
			}
			props.MaximumPacketSize = v
			props.Presence |= presenceMaximumPacketSize
		case PropWildcardSubAvailable:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.SetWildcardSubAvailable(v)
		case PropSubIDsAvailable:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.SetSubIDsAvailable(v)
		case PropSharedSubAvailable:
			v, err := readByte()
			if err != nil {
				return nil, 0, err
			}
			props.SetSharedSubAvailable(v)
		default:
			return nil, 0, &er.Err{Context: "DecodeProperties", Message: er.ErrUnknownProperty}
		}
	}

	return props, lenBytes + length, nil
}
