package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbeoliero/nexosync/pkg/constant"
)

func TestConversationIds(t *testing.T) {
	id := GenSingleConversationId("u_b", "u_a")
	assert.Equal(t, "si_u_a:u_b", id)
	assert.True(t, IsSingleConversation(id))
	assert.Equal(t, ConversationTypeDirect, ConversationTypeOf(id))
	assert.Equal(t, "u_b", PeerOf(id, "u_a"))
	assert.Equal(t, "u_a", PeerOf(id, "u_b"))

	gid := GenGroupConversationId("g1")
	assert.Equal(t, ConversationTypeGroup, ConversationTypeOf(gid))
	assert.Equal(t, "g1", GroupIdOf(gid))
	assert.Equal(t, "", PeerOf(gid, "u_a"))
}

func TestUpgradeStatusIsMonotone(t *testing.T) {
	m := &Message{Status: MessageStatusPending}
	assert.True(t, m.UpgradeStatus(MessageStatusRead))
	assert.False(t, m.UpgradeStatus(MessageStatusSent))
	assert.Equal(t, MessageStatusRead, m.Status)

	failed := &Message{Status: MessageStatusFailed}
	assert.True(t, failed.UpgradeStatus(MessageStatusSent))
}

func TestContentRoundTrip(t *testing.T) {
	atts := []Attachment{{Url: "https://cdn/x.png", MimeType: "image/png"}}
	typ := MessageTypeFor(atts)
	assert.Equal(t, int32(constant.MsgTypeImage), typ)

	m := &Message{Type: typ}
	m.SetContent(GetContent(typ, "look", atts))
	assert.Equal(t, "look", m.Content)
	assert.Equal(t, "https://cdn/x.png", m.Attachments[0].Url)
}

func TestCloneIsDeep(t *testing.T) {
	c := &Conversation{
		Id:           "sg_g1",
		Participants: []Participant{{UserId: "a"}},
		UnreadCounts: map[string]int64{"a": 2},
		LastMessage:  &Message{Id: "m1", Attachments: []Attachment{{Url: "u"}}},
	}
	cp := c.Clone()
	cp.UnreadCounts["a"] = 0
	cp.Participants[0].UserId = "b"
	cp.LastMessage.Attachments[0].Url = "v"

	assert.Equal(t, int64(2), c.UnreadCounts["a"])
	assert.Equal(t, "a", c.Participants[0].UserId)
	assert.Equal(t, "u", c.LastMessage.Attachments[0].Url)
}
