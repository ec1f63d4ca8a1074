package utils

import (
	"fmt"
	"strings"
)

// GetTopicN returns the n-th slash separated level of topic, or "" if there
// is none.
func GetTopicN(topic string, n int) string {
	tokens := strings.Split(topic, "/")
	if n >= len(tokens) {
		return ""
	}
	return tokens[n]
}

// MessageType classifies a classic device-shadow topic.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageUpdate
	MessageUpdateDelta
	MessageUpdateAccepted
	MessageUpdateRejected
	MessageUpdateDocuments
	MessageGetAccepted
	MessageGetRejected
	MessageDeleteAccepted
	MessageDeleteRejected
)

var suffixes = map[string]MessageType{
	"update":           MessageUpdate,
	"update/delta":     MessageUpdateDelta,
	"update/accepted":  MessageUpdateAccepted,
	"update/rejected":  MessageUpdateRejected,
	"update/documents": MessageUpdateDocuments,
	"get/accepted":     MessageGetAccepted,
	"get/rejected":     MessageGetRejected,
	"delete/accepted":  MessageDeleteAccepted,
	"delete/rejected":  MessageDeleteRejected,
}

func (m MessageType) String() string {
	for suffix, t := range suffixes {
		if t == m {
			return suffix
		}
	}
	return "unknown"
}

const (
	shadowPrefix = "$aws/things/"
	shadowInfix  = "/shadow/"
)

func shadowTopic(thing, suffix string) string {
	return fmt.Sprintf("%s%s%s%s", shadowPrefix, thing, shadowInfix, suffix)
}

func UpdateTopic(thing string) string         { return shadowTopic(thing, "update") }
func UpdateDeltaTopic(thing string) string    { return shadowTopic(thing, "update/delta") }
func UpdateAcceptedTopic(thing string) string { return shadowTopic(thing, "update/accepted") }
func UpdateRejectedTopic(thing string) string { return shadowTopic(thing, "update/rejected") }

// MatchShadowTopic parses $aws/things/<thing>/shadow/<suffix>.
func MatchShadowTopic(topic string) (MessageType, string, bool) {
	thing := GetTopicN(topic, 2)
	if thing == "" {
		return MessageUnknown, "", false
	}
	suffix, ok := strings.CutPrefix(topic, shadowTopic(thing, ""))
	if !ok {
		return MessageUnknown, "", false
	}
	t, ok := suffixes[suffix]
	if !ok {
		return MessageUnknown, thing, false
	}
	return t, thing, true
}
