package packet

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
	"github.com/pyr33x/goqtt/pkg/er"
)

// ConnectPacket is the client's CONNECT request, in either protocol version.
type ConnectPacket struct {
	ProtocolName  string
	ProtocolLevel ProtocolVersion

	UsernameFlag bool
	PasswordFlag bool
	WillRetain   bool
	WillQoS      QoSLevel
	WillFlag     bool
	CleanSession bool // CleanStart in v5
	KeepAlive    uint16

	ClientID    string
	WillTopic   *string
	WillMessage *string
	Username    *string
	Password    *string

	Properties     *Properties // v5 only
	WillProperties *Properties // v5 only

	Raw []byte
}

func (p *ConnectPacket) Type() PacketType { return CONNECT }

func (cp *ConnectPacket) Parse(raw []byte) error {
	if len(raw) < 10 {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}

	if PacketType(raw[0]&0xF0) != CONNECT {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}

	cp.Raw = raw

	_, headerLen, err := DecodeFixedHeader(raw)
	if err != nil {
		return err
	}
	offset := headerLen

	if offset+2 > len(raw) {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}

	protoName, n, err := DecodeString(raw[offset:])
	if err != nil {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	cp.ProtocolName = protoName
	offset += n

	if cp.ProtocolName != "MQTT" {
		return &er.Err{Context: "Connect, ProtocolName", Message: er.ErrUnsupportedProtocolName}
	}

	if offset >= len(raw) {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	cp.ProtocolLevel = ProtocolVersion(raw[offset])
	offset++
	if cp.ProtocolLevel != MQTT311 && cp.ProtocolLevel != MQTT5 {
		return &er.Err{Context: "Connect, ProtocolLevel", Message: er.ErrUnsupportedProtocolLevel}
	}

	if offset >= len(raw) {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	connectFlags := raw[offset]
	offset++

	cp.UsernameFlag = connectFlags&0x80 != 0
	cp.PasswordFlag = connectFlags&0x40 != 0
	cp.WillRetain = connectFlags&0x20 != 0
	cp.WillQoS = QoSLevel((connectFlags & 0x18) >> 3)
	cp.WillFlag = connectFlags&0x04 != 0
	cp.CleanSession = connectFlags&0x02 != 0

	if cp.WillFlag && cp.WillQoS > QoSExactlyOnce {
		return &er.Err{Context: "Connect, WillQos", Message: er.ErrInvalidWillQos}
	}

	if offset+2 > len(raw) {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	cp.KeepAlive = binary.BigEndian.Uint16(raw[offset : offset+2])
	offset += 2

	if cp.ProtocolLevel == MQTT5 {
		props, n, err := DecodeProperties(raw[offset:])
		if err != nil {
			return err
		}
		cp.Properties = props
		offset += n
	}

	clientID, n, err := DecodeString(raw[offset:])
	if err != nil {
		return &er.Err{Context: "Connect", Message: er.ErrInvalidConnPacket}
	}
	cp.ClientID = clientID
	offset += n

	if cErr := cp.ValidateClientID(); cErr != nil {
		if errors.Is(cErr, er.ErrEmptyClientID) {
			cp.ClientID = uuid.NewString()
		} else if errors.Is(cErr, er.ErrEmptyAndCleanSessionClientID) {
			return &er.Err{Context: "Connect, ClientID", Message: er.ErrIdentifierRejected}
		} else {
			return cErr
		}
	}

	if cp.WillFlag {
		if cp.ProtocolLevel == MQTT5 {
			willProps, n, err := DecodeProperties(raw[offset:])
			if err != nil {
				return err
			}
			cp.WillProperties = willProps
			offset += n
		}

		willTopic, n, err := DecodeString(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Connect, WillTopic", Message: er.ErrInvalidConnPacket}
		}
		cp.WillTopic = &willTopic
		offset += n

		willMessage, n, err := DecodeBinary(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Connect, WillMessage", Message: er.ErrInvalidConnPacket}
		}
		msg := string(willMessage)
		cp.WillMessage = &msg
		offset += n
	}

	if !cp.UsernameFlag && cp.PasswordFlag {
		return &er.Err{Context: "Connect, UsernameFlag + PasswordFlag", Message: er.ErrPasswordWithoutUsername}
	}

	if cp.UsernameFlag {
		username, n, err := DecodeString(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Connect, Username", Message: er.ErrMalformedUsernameField}
		}
		cp.Username = &username
		offset += n
	}

	if cp.PasswordFlag {
		password, n, err := DecodeBinary(raw[offset:])
		if err != nil {
			return &er.Err{Context: "Connect, Password", Message: er.ErrMalformedPasswordField}
		}
		pw := string(password)
		cp.Password = &pw
		offset += n
	}

	return nil
}

// ValidateClientID enforces the length the spec requires (1-65535 UTF-8
// bytes). An empty client ID is rejected under v3.1.1 without clean
// session; in every other case (v3.1.1 with clean session, or any v5
// CONNECT) Parse assigns a server-generated identifier.
func (cp *ConnectPacket) ValidateClientID() error {
	if len(cp.ClientID) == 0 {
		if !cp.CleanSession && cp.ProtocolLevel == MQTT311 {
			return &er.Err{Context: "Connect, ClientID", Message: er.ErrEmptyAndCleanSessionClientID}
		}
		return &er.Err{Context: "Connect, ClientID", Message: er.ErrEmptyClientID}
	}

	if len(cp.ClientID) > 65535 {
		return &er.Err{Context: "Connect, ClientID", Message: er.ErrClientIDLengthExceed}
	}

	return nil
}

// Encode is unused on the broker side (CONNECT only ever flows client to
// server) but completes the Packet interface, mirroring how gonzalop-mq's
// client library encodes the same packet for the other direction.
func (cp *ConnectPacket) Encode() []byte {
	var body []byte
	body = append(body, EncodeString("MQTT")...)
	body = append(body, byte(cp.ProtocolLevel))

	var flags byte
	if cp.UsernameFlag {
		flags |= 0x80
	}
	if cp.PasswordFlag {
		flags |= 0x40
	}
	if cp.WillFlag {
		flags |= 0x20 * b2i(cp.WillRetain)
		flags |= byte(cp.WillQoS) << 3
		flags |= 0x04
	}
	if cp.CleanSession {
		flags |= 0x02
	}
	body = append(body, flags)

	ka := make([]byte, 2)
	binary.BigEndian.PutUint16(ka, cp.KeepAlive)
	body = append(body, ka...)

	if cp.ProtocolLevel == MQTT5 {
		body = append(body, EncodeProperties(cp.Properties)...)
	}

	body = append(body, EncodeString(cp.ClientID)...)

	if cp.WillFlag {
		if cp.ProtocolLevel == MQTT5 {
			body = append(body, EncodeProperties(cp.WillProperties)...)
		}
		if cp.WillTopic != nil {
			body = append(body, EncodeString(*cp.WillTopic)...)
		}
		if cp.WillMessage != nil {
			body = append(body, EncodeBinary([]byte(*cp.WillMessage))...)
		}
	}
	if cp.Username != nil {
		body = append(body, EncodeString(*cp.Username)...)
	}
	if cp.Password != nil {
		body = append(body, EncodeBinary([]byte(*cp.Password))...)
	}

	header := FixedHeader{Type: CONNECT, RemainingLength: len(body)}
	return append(header.Encode(), body...)
}

func b2i(b bool) byte {
	if b {
		return 1
	}
	return 0
}
