package er

import (
	"errors"
	"fmt"
)

// Err pairs a low-level sentinel with the operation that produced it, the way
// callers throughout the codec and broker packages want to report failures.
type Err struct {
	Context string
	Message error
}

func (e *Err) Error() string {
	return fmt.Sprintf("context: %s, message: %v", e.Context, e.Message)
}

func (e *Err) Unwrap() error {
	return e.Message
}

var (
	ErrEmptyBuffer             = errors.New("buffer is empty")
	ErrReadBuffer              = errors.New("could not read buffer")
	ErrShortBuffer             = errors.New("buffer is too short for string length")
	ErrReadProtoName           = errors.New("failed to read protocol name")
	ErrMissProtoVer            = errors.New("missing protocol version")
	ErrMissProtoLevel          = errors.New("missing protocol level")
	ErrMissConnFlags           = errors.New("missing connect flags")
	ErrMissKeepAlive           = errors.New("missing Keep Alive")
	ErrReadClientID            = errors.New("failed to read client ID")
	ErrInvalidConnPacket       = errors.New("connect packet is invalid")
	ErrInvalidPacketType       = errors.New("packet type is invalid")
	ErrRemainingLenMissmatch   = errors.New("remaining length mismatch")
	ErrRemainingLengthExceeded = errors.New("remaining length exceeds maximum")
	ErrShortString             = errors.New("string is too short")
	ErrIdentifierRejected      = errors.New("identifier rejected")
	ErrInvalidPacketLength     = errors.New("packet length does not match remaining length")
	ErrInvalidUTF8String       = errors.New("string is not valid UTF-8")

	// ClientID
	ErrEmptyClientID                = errors.New("empty client id requires clean start to be 1")
	ErrEmptyAndCleanSessionClientID  = errors.New("client id is empty and clean start is set to 0")
	ErrClientIDLengthExceed          = errors.New("client id exceeds maximum length")
	ErrInvalidCharsClientID          = errors.New("client id contains invalid characters")

	// Protocol
	ErrUnsupportedProtocolLevel = errors.New("protocol level is not supported")
	ErrUnsupportedProtocolName  = errors.New("protocol name is not supported")

	// ConnectFlags
	ErrInvalidWillQos          = errors.New("will qos level is invalid")
	ErrPasswordWithoutUsername = errors.New("password flag set without username flag")
	ErrMalformedUsernameField  = errors.New("malformed username field")
	ErrMalformedPasswordField  = errors.New("malformed password field")

	// Client
	ErrClientMustSetCleanSession = errors.New("client must set clean start to 1")

	// Topics
	ErrEmptyTopic                     = errors.New("topic name is empty")
	ErrEmptyTopicFilter               = errors.New("topic filter is empty")
	ErrEmptyTopicLevel                = errors.New("topic has an empty level")
	ErrInvalidUTF8Topic               = errors.New("topic is not valid UTF-8")
	ErrInvalidUTF8TopicFilter         = errors.New("topic filter is not valid UTF-8")
	ErrNullCharacterInTopic           = errors.New("topic contains a null character")
	ErrNullCharacterInTopicFilter     = errors.New("topic filter contains a null character")
	ErrControlCharacterInTopic        = errors.New("topic contains a control character")
	ErrControlCharacterInTopicFilter  = errors.New("topic filter contains a control character")
	ErrWildcardsNotAllowedInPublish   = errors.New("wildcards are not allowed in publish topics")
	ErrInvalidSingleLevelWildcard     = errors.New("invalid use of + wildcard")
	ErrInvalidMultiLevelWildcard      = errors.New("invalid use of # wildcard")
	ErrMultiLevelWildcardNotLast      = errors.New("# wildcard must be the last topic level")
	ErrMultiLevelWildcardNotAlone     = errors.New("# wildcard must occupy its entire topic level")
	ErrSingleLevelWildcardNotAlone    = errors.New("+ wildcard must occupy its entire topic level")
	ErrEmptyShareGroup                = errors.New("shared subscription group name is empty")
	ErrEmptyShareFilter               = errors.New("shared subscription filter is empty")

	// Packet bodies
	ErrInvalidPublishPacket           = errors.New("publish packet is invalid")
	ErrInvalidQoSLevel                = errors.New("qos level is invalid")
	ErrInvalidDUPFlag                 = errors.New("dup flag must be 0 for qos 0")
	ErrMissingPacketID                = errors.New("packet identifier is missing")
	ErrInvalidPacketID                = errors.New("packet identifier must be non-zero")
	ErrPayloadTooLarge                = errors.New("payload exceeds maximum size")
	ErrPublishRemainingLengthExceeded = errors.New("publish remaining length exceeds maximum")
	ErrInvalidSubscribePacket         = errors.New("subscribe packet is invalid")
	ErrInvalidSubscribeFlags          = errors.New("subscribe fixed header flags must be 0010")
	ErrMissingQoSByte                 = errors.New("subscription options byte is missing")
	ErrInvalidQoSReservedBits         = errors.New("reserved bits in subscription options must be 0")
	ErrNoTopicFilters                 = errors.New("packet must contain at least one topic filter")
	ErrInvalidUnsubscribePacket       = errors.New("unsubscribe packet is invalid")
	ErrInvalidUnsubscribeFlags        = errors.New("unsubscribe fixed header flags must be 0010")
	ErrInvalidPingreqPacket           = errors.New("pingreq packet is invalid")
	ErrInvalidPingreqFlags            = errors.New("pingreq fixed header flags must be 0000")
	ErrInvalidPingreqLength           = errors.New("pingreq remaining length must be 0")
	ErrInvalidPingrespPacket          = errors.New("pingresp packet is invalid")
	ErrInvalidPingrespFlags           = errors.New("pingresp fixed header flags must be 0000")
	ErrInvalidPingrespLength          = errors.New("pingresp remaining length must be 0")
	ErrInvalidDisconnectPacket        = errors.New("disconnect packet is invalid")
	ErrInvalidAckPacket               = errors.New("ack packet is invalid")
	ErrInvalidAuthPacket              = errors.New("auth packet is invalid")
	ErrUnknownProperty                = errors.New("unknown property identifier")
	ErrDuplicateProperty              = errors.New("property must not be repeated")
	ErrInvalidPropertyLength          = errors.New("property length field is malformed")
	ErrTopicAliasOutOfRange           = errors.New("topic alias exceeds negotiated maximum")
	ErrTopicAliasUnknown              = errors.New("topic alias has no mapped topic")

	// Auth
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrHashFailed      = errors.New("failed to hash password")
	ErrNotAuthorized   = errors.New("not authorized")

	// Session
	ErrSessionNotFound        = errors.New("session not found")
	ErrPacketIDSpaceExhausted = errors.New("no free packet identifiers available")
	ErrReceiveMaximumExceeded = errors.New("receive maximum exceeded")
)

// ConnackCode maps a codec/session error to the v3.1.1 CONNACK return code
// (the same numeric space v5 reason codes extend) the transport layer
// should send before closing the connection.
func ConnackCode(err error) byte {
	switch {
	case errors.Is(err, ErrUnsupportedProtocolLevel), errors.Is(err, ErrUnsupportedProtocolName):
		return 0x01
	case errors.Is(err, ErrInvalidCharsClientID), errors.Is(err, ErrClientIDLengthExceed), errors.Is(err, ErrIdentifierRejected):
		return 0x02
	case errors.Is(err, ErrPasswordWithoutUsername), errors.Is(err, ErrMalformedUsernameField), errors.Is(err, ErrMalformedPasswordField):
		return 0x04
	case errors.Is(err, ErrNotAuthorized):
		return 0x05
	default:
		return 0x03
	}
}
