package presenter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/nexosync/internal/entity"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func direct() *entity.Conversation {
	return &entity.Conversation{
		Id:   entity.GenSingleConversationId("alice", "bob"),
		Type: entity.ConversationTypeDirect,
		Participants: []entity.Participant{
			{UserId: "alice", Nickname: "Alice", Avatar: "a.png"},
			{UserId: "bob", Nickname: "Bob", Avatar: "b.png"},
		},
		UnreadCounts: map[string]int64{"alice": 2},
	}
}

func TestDisplayNameAndAvatar(t *testing.T) {
	c := direct()
	assert.Equal(t, "Bob", DisplayName(c, "alice"))
	assert.Equal(t, "Alice", DisplayName(c, "bob"))
	assert.Equal(t, "b.png", Avatar(c, "alice"))

	stub := entity.NewStubConversation("si_alice:zed")
	assert.Equal(t, "zed", DisplayName(stub, "alice"))

	g := &entity.Conversation{Id: "sg_42", Type: entity.ConversationTypeGroup, Avatar: "g.png"}
	assert.Equal(t, "Group 42", DisplayName(g, "alice"))
	g.Title = "Design"
	assert.Equal(t, "Design", DisplayName(g, "alice"))
	assert.Equal(t, "g.png", Avatar(g, "alice"))
	assert.Empty(t, DisplayName(nil, "alice"))
}

func TestRelativeTime(t *testing.T) {
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, ""},
		{now.Add(-30 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-50 * time.Hour), "2 days ago"},
		{now.Add(10 * time.Minute), "10 minutes from now"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RelativeTime(tc.at, now))
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hell…", Truncate("hello world", 5))
	assert.Equal(t, "héll…", Truncate("héllo wörld", 5))
	assert.Equal(t, "日本…", Truncate("日本語のテキスト", 3))
	assert.Equal(t, "a…", Truncate("a bcdef", 3))
	assert.Equal(t, "…", Truncate("abc", 1))
	assert.Empty(t, Truncate("abc", 0))
}

func TestPreview(t *testing.T) {
	msg := &entity.Message{SenderId: "bob", Content: "see\nyou   soon", Type: 1}
	assert.Equal(t, "see you soon", Preview(msg, "alice", 60))
	msg.SenderId = "alice"
	assert.Equal(t, "You: see you soon", Preview(msg, "alice", 60))
	assert.Equal(t, "[Image]", Preview(&entity.Message{SenderId: "bob", Type: 2, Attachments: []entity.Attachment{{Url: "x"}}}, "alice", 60))
	assert.Equal(t, "Message deleted", Preview(&entity.Message{IsDeleted: true}, "alice", 60))
	assert.Empty(t, Preview(nil, "alice", 60))
}

func TestTypingText(t *testing.T) {
	assert.Empty(t, TypingText(nil))
	assert.Equal(t, "A is typing…", TypingText([]string{"A"}))
	assert.Equal(t, "A and B are typing…", TypingText([]string{"A", "B"}))
	assert.Equal(t, "A, B and C are typing…", TypingText([]string{"A", "B", "C"}))
	assert.Equal(t, "A, B and 3 others are typing…", TypingText([]string{"A", "B", "C", "D", "E"}))
}

func TestMapConversations(t *testing.T) {
	older := direct()
	older.LastActivityAt = now.Add(-2 * time.Hour)
	older.LastMessage = &entity.Message{SenderId: "bob", Content: "ping", Type: 1}

	group := &entity.Conversation{
		Id:             "sg_1",
		Type:           entity.ConversationTypeGroup,
		Title:          "Team",
		Participants:   []entity.Participant{{UserId: "carol", Nickname: "Carol"}, {UserId: "dan"}},
		LastActivityAt: now.Add(-time.Minute),
		Archived:       true,
	}

	views := MapConversations([]*entity.Conversation{older, group}, Lookups{
		Self: "alice",
		Now:  now,
		Typing: func(conversationId string) []string {
			if conversationId == "sg_1" {
				return []string{"carol", "dan"}
			}
			return nil
		},
		Online: func(userId string) bool { return userId == "bob" },
	})

	require.Len(t, views, 2)
	assert.Equal(t, "sg_1", views[0].Id)
	assert.Equal(t, "group", views[0].Type)
	assert.Equal(t, "Carol and dan are typing…", views[0].Typing)
	assert.True(t, views[0].Archived)
	assert.False(t, views[0].PeerOnline)

	assert.Equal(t, "Bob", views[1].DisplayName)
	assert.Equal(t, "ping", views[1].Preview)
	assert.Equal(t, "2 hours ago", views[1].LastActivity)
	assert.Equal(t, int64(2), views[1].Unread)
	assert.True(t, views[1].PeerOnline)
	assert.Empty(t, views[1].Typing)
}

func TestMapMessages(t *testing.T) {
	c := direct()
	msgs := []*entity.Message{
		{Id: "1", ConversationId: c.Id, SenderId: "bob", Content: "hi", Status: entity.MessageStatusSent, CreatedAt: now.Add(-time.Hour)},
		{Id: "2", ConversationId: c.Id, SenderId: "alice", Content: "yo", Status: entity.MessageStatusRead, CreatedAt: now},
		{Id: "tmp_1", ClientTempId: "tmp_1", ConversationId: c.Id, SenderId: "alice", Content: "oops", Status: entity.MessageStatusFailed, LastError: "timeout", CreatedAt: now,
			Attachments: []entity.Attachment{{Url: "f.pdf", Name: "f.pdf", Size: 2048}}},
		{Id: "3", ConversationId: c.Id, SenderId: "bob", Status: entity.MessageStatusSent, IsDeleted: true, CreatedAt: now},
	}

	views := MapMessages(c, msgs, Lookups{
		Self: "alice",
		Now:  now,
		SeenBy: func(conversationId, messageId string) []string {
			return []string{"bob"}
		},
	})

	require.Len(t, views, 4)
	assert.Equal(t, "Bob", views[0].SenderName)
	assert.False(t, views[0].Mine)
	assert.Empty(t, views[0].SeenBy)
	assert.Equal(t, "1 hour ago", views[0].Timestamp)

	assert.True(t, views[1].Mine)
	assert.Equal(t, []string{"bob"}, views[1].SeenBy)
	assert.Equal(t, "just now", views[1].Timestamp)

	assert.True(t, views[2].Retryable)
	assert.Equal(t, "timeout", views[2].Error)
	assert.Empty(t, views[2].SeenBy)
	require.Len(t, views[2].Attachments, 1)
	assert.Equal(t, "2.0 kB", views[2].Attachments[0].Size)

	assert.True(t, views[3].Deleted)
	assert.False(t, views[3].Retryable)
}
