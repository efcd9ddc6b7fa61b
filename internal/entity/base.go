package entity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mbeoliero/nexosync/pkg/constant"
)

// GenSingleConversationId generates conversation Id for single chat
// Format: si_{min(userA,userB)}:{max(userA,userB)}
// Uses ":" as separator between userIds to support userIds containing "_"
func GenSingleConversationId(userA, userB string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return fmt.Sprintf("%s%s:%s", constant.SingleConversationPrefix, users[0], users[1])
}

// GenGroupConversationId generates conversation Id for group chat
// Format: sg_{groupId}
func GenGroupConversationId(groupId string) string {
	return fmt.Sprintf("%s%s", constant.GroupConversationPrefix, groupId)
}

// IsSingleConversation checks if conversation Id is for single chat
func IsSingleConversation(conversationId string) bool {
	return len(conversationId) > 3 && conversationId[:3] == constant.SingleConversationPrefix
}

// IsGroupConversation checks if conversation Id is for group chat
func IsGroupConversation(conversationId string) bool {
	return len(conversationId) > 3 && conversationId[:3] == constant.GroupConversationPrefix
}

// ConversationTypeOf infers the conversation type from its Id
func ConversationTypeOf(conversationId string) ConversationType {
	if IsGroupConversation(conversationId) {
		return ConversationTypeGroup
	}
	return ConversationTypeDirect
}

// SingleConversationMembers returns both user ids of a single chat conversation Id
func SingleConversationMembers(conversationId string) (string, string, bool) {
	if !IsSingleConversation(conversationId) {
		return "", "", false
	}
	a, b, ok := strings.Cut(conversationId[3:], ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// PeerOf returns the other member of a single chat conversation
func PeerOf(conversationId, self string) string {
	a, b, ok := SingleConversationMembers(conversationId)
	if !ok {
		return ""
	}
	if a == self {
		return b
	}
	return a
}

// GroupIdOf returns the group Id of a group conversation Id
func GroupIdOf(conversationId string) string {
	if !IsGroupConversation(conversationId) {
		return ""
	}
	return conversationId[3:]
}
