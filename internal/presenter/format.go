package presenter

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/constant"
)

const ellipsis = "…"

// DisplayName returns the peer's name for a direct conversation and the title for a group
func DisplayName(conv *entity.Conversation, self string) string {
	if conv == nil {
		return ""
	}
	if conv.Type == entity.ConversationTypeGroup {
		if conv.Title != "" {
			return conv.Title
		}
		if gid := entity.GroupIdOf(conv.Id); gid != "" {
			return "Group " + gid
		}
		return "Group"
	}

	peerId := conv.PeerId(self)
	if p, ok := conv.Participant(peerId); ok && p.Nickname != "" {
		return p.Nickname
	}
	if conv.Title != "" {
		return conv.Title
	}
	if peerId != "" {
		return peerId
	}
	return "Unknown"
}

// Avatar returns the peer's avatar for a direct conversation and the group avatar otherwise
func Avatar(conv *entity.Conversation, self string) string {
	if conv == nil {
		return ""
	}
	if conv.Type == entity.ConversationTypeDirect {
		if p, ok := conv.Participant(conv.PeerId(self)); ok && p.Avatar != "" {
			return p.Avatar
		}
	}
	return conv.Avatar
}

// SenderName returns a participant's nickname, falling back to the user id
func SenderName(conv *entity.Conversation, userId string) string {
	if conv != nil {
		if p, ok := conv.Participant(userId); ok && p.Nickname != "" {
			return p.Nickname
		}
	}
	return userId
}

// RelativeTime renders t relative to now, e.g. "just now" or "5 minutes ago"
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if d := now.Sub(t); d < time.Minute && d > -time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Truncate shortens s to at most n runes, ending with an ellipsis when cut
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return ellipsis
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:n-1]), " ") + ellipsis
}

// Preview renders a one-line summary of a message for the conversation list
func Preview(msg *entity.Message, self string, n int) string {
	if msg == nil {
		return ""
	}
	var body string
	switch {
	case msg.IsDeleted:
		return "Message deleted"
	case msg.Content != "" && msg.Type != constant.MsgTypeImage && msg.Type != constant.MsgTypeVideo:
		body = strings.Join(strings.Fields(msg.Content), " ")
	default:
		body = attachmentLabel(msg.Type)
	}
	if msg.SenderId == self && self != "" {
		body = "You: " + body
	}
	return Truncate(body, n)
}

func attachmentLabel(msgType int32) string {
	switch msgType {
	case constant.MsgTypeImage:
		return "[Image]"
	case constant.MsgTypeVideo:
		return "[Video]"
	case constant.MsgTypeAudio:
		return "[Voice]"
	case constant.MsgTypeFile:
		return "[File]"
	default:
		return "[Message]"
	}
}

// TypingText renders the names of typing users
func TypingText(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return fmt.Sprintf("%s and %s are typing…", names[0], names[1])
	case 3:
		return fmt.Sprintf("%s, %s and %s are typing…", names[0], names[1], names[2])
	default:
		return fmt.Sprintf("%s, %s and %d others are typing…", names[0], names[1], len(names)-2)
	}
}

// FileSize renders an attachment size, empty when unknown
func FileSize(size int64) string {
	if size <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(size))
}
