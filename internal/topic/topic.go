// Package topic implements MQTT topic name and topic filter semantics:
// wildcard matching, shared-subscription filter parsing, and the
// validation rules a wire-level PUBLISH or SUBSCRIBE topic must satisfy.
package topic

import (
	"strings"
	"unicode/utf8"

	"github.com/pyr33x/goqtt/pkg/er"
)

const shareGroupPrefix = "$share/"

// Levels splits a topic or filter into its '/'-separated levels. Empty
// levels are preserved: "a//b" splits into ["a", "", "b"], matched by a
// single '+' on the middle level.
func Levels(s string) []string {
	return strings.Split(s, "/")
}

// Match reports whether topic satisfies filter, per MQTT-v3.1.1 §4.7 /
// MQTT-v5.0 §4.7. filter must already have any "$share/<group>/" prefix
// stripped by SplitShared.
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fLevels := Levels(filter)
	tLevels := Levels(topic)

	if len(fLevels) > 0 && fLevels[0] == "#" && len(tLevels) > 0 && strings.HasPrefix(tLevels[0], "$") {
		return false
	}
	if len(fLevels) > 0 && fLevels[0] == "+" && len(tLevels) > 0 && strings.HasPrefix(tLevels[0], "$") {
		return false
	}

	i := 0
	for ; i < len(fLevels); i++ {
		if fLevels[i] == "#" {
			return true
		}

		if i >= len(tLevels) {
			return false
		}

		if fLevels[i] == "+" {
			continue
		}
		if fLevels[i] != tLevels[i] {
			return false
		}
	}

	return i == len(tLevels)
}

// SplitShared recognizes a "$share/<group>/<filter>" subscription filter
// and separates the group name from the effective filter it applies to.
// A non-shared filter returns ok=false.
func SplitShared(filter string) (group string, effective string, ok bool) {
	if !strings.HasPrefix(filter, shareGroupPrefix) {
		return "", filter, false
	}

	rest := filter[len(shareGroupPrefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", filter, false
	}

	return rest[:idx], rest[idx+1:], true
}

// ValidateFilter checks a topic filter as it would appear in a SUBSCRIBE
// or UNSUBSCRIBE payload. Empty levels are explicitly allowed — "a//b"
// is valid and matched by "a/+/b".
func ValidateFilter(filter string) error {
	if filter == "" {
		return &er.Err{Context: "ValidateFilter", Message: er.ErrEmptyTopicFilter}
	}
	if !utf8.ValidString(filter) {
		return &er.Err{Context: "ValidateFilter", Message: er.ErrInvalidUTF8TopicFilter}
	}
	for _, r := range filter {
		if r == 0 {
			return &er.Err{Context: "ValidateFilter", Message: er.ErrNullCharacterInTopicFilter}
		}
	}

	effective := filter
	if group, rest, ok := SplitShared(filter); ok {
		if group == "" {
			return &er.Err{Context: "ValidateFilter", Message: er.ErrEmptyShareGroup}
		}
		if rest == "" {
			return &er.Err{Context: "ValidateFilter", Message: er.ErrEmptyShareFilter}
		}
		effective = rest
	}

	levels := Levels(effective)
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return &er.Err{Context: "ValidateFilter", Message: er.ErrMultiLevelWildcardNotLast}
			}
		case strings.Contains(level, "#"):
			return &er.Err{Context: "ValidateFilter", Message: er.ErrMultiLevelWildcardNotAlone}
		case level == "+":
			// fine on its own
		case strings.Contains(level, "+"):
			return &er.Err{Context: "ValidateFilter", Message: er.ErrSingleLevelWildcardNotAlone}
		}
	}

	return nil
}

// ValidateTopicName checks a topic as it would appear in a PUBLISH packet:
// no wildcards, valid UTF-8, no control characters. Empty levels are
// allowed.
func ValidateTopicName(topicName string) error {
	if topicName == "" {
		return &er.Err{Context: "ValidateTopicName", Message: er.ErrEmptyTopic}
	}
	if !utf8.ValidString(topicName) {
		return &er.Err{Context: "ValidateTopicName", Message: er.ErrInvalidUTF8Topic}
	}

	for _, r := range topicName {
		if r == 0 {
			return &er.Err{Context: "ValidateTopicName", Message: er.ErrNullCharacterInTopic}
		}
		if (r >= 0x0001 && r <= 0x001F) || (r >= 0x007F && r <= 0x009F) {
			return &er.Err{Context: "ValidateTopicName", Message: er.ErrControlCharacterInTopic}
		}
		if r == '+' || r == '#' {
			return &er.Err{Context: "ValidateTopicName", Message: er.ErrWildcardsNotAllowedInPublish}
		}
	}

	return nil
}
