package store

import (
	"sort"
	"time"

	"github.com/mbeoliero/nexosync/internal/entity"
)

// entry is one visible message row
type entry struct {
	msg  *entity.Message
	rank int64
	// sentAt is the local time of the latest send attempt, zero for remote messages
	sentAt time.Time
	// counted is set once the message bumped unread counts
	counted bool
}

func (e *entry) after(at time.Time, rank int64) bool {
	if e.msg.CreatedAt.Equal(at) {
		return e.rank > rank
	}
	return e.msg.CreatedAt.After(at)
}

// thread holds the message rows of one conversation in display order
type thread struct {
	conv    *entity.Conversation
	entries []*entry
	byId    map[string]*entry
	byTemp  map[string]*entry

	loaded  bool
	cursor  string
	hasMore bool

	// deleted remembers remote deletions of messages not loaded yet
	deleted map[string]bool
	// readMark is the local user's read boundary
	readMark *entry
}

func newThread(conv *entity.Conversation) *thread {
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = make(map[string]int64)
	}
	return &thread{
		conv:    conv,
		byId:    make(map[string]*entry),
		byTemp:  make(map[string]*entry),
		deleted: make(map[string]bool),
	}
}

// insert places e by (createdAt, rank)
func (t *thread) insert(e *entry) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].after(e.msg.CreatedAt, e.rank)
	})
	t.entries = append(t.entries, nil)
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
	t.index(e)
}

func (t *thread) index(e *entry) {
	if e.msg.Id != "" {
		t.byId[e.msg.Id] = e
	}
	if e.msg.ClientTempId != "" {
		t.byTemp[e.msg.ClientTempId] = e
	}
}

func (t *thread) position(e *entry) int {
	for i, x := range t.entries {
		if x == e {
			return i
		}
	}
	return -1
}

func (t *thread) remove(e *entry) {
	i := t.position(e)
	if i < 0 {
		return
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	if t.byId[e.msg.Id] == e {
		delete(t.byId, e.msg.Id)
	}
	if t.byTemp[e.msg.ClientTempId] == e {
		delete(t.byTemp, e.msg.ClientTempId)
	}
	if t.readMark == e {
		t.readMark = nil
		if i > 0 {
			t.readMark = t.entries[i-1]
		}
	}
}

// retime moves e to the server timestamp at. The row never moves backward:
// at is clamped to the previous neighbour, and the row only moves forward
// when at is later than the next neighbour.
func (t *thread) retime(e *entry, at time.Time) {
	if at.IsZero() {
		return
	}
	i := t.position(e)
	if i < 0 {
		return
	}
	if i > 0 && at.Before(t.entries[i-1].msg.CreatedAt) {
		at = t.entries[i-1].msg.CreatedAt
	}
	e.msg.CreatedAt = at
	if i+1 < len(t.entries) && at.After(t.entries[i+1].msg.CreatedAt) {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		t.insert(e)
	}
}

// lookup finds a row by server id or client temp id
func (t *thread) lookup(id string) *entry {
	if e, ok := t.byId[id]; ok {
		return e
	}
	return t.byTemp[id]
}

func (t *thread) newest() *entry {
	if len(t.entries) == 0 {
		return nil
	}
	return t.entries[len(t.entries)-1]
}

// newestConfirmed returns the newest row carrying a server id at or before index i
func (t *thread) newestConfirmed(i int) *entry {
	for ; i >= 0; i-- {
		if t.entries[i].msg.IsConfirmed() {
			return t.entries[i]
		}
	}
	return nil
}

// refreshLast points the conversation at its newest row
func (t *thread) refreshLast() {
	last := t.newest()
	if last == nil {
		return
	}
	t.conv.LastMessageId = last.msg.Id
	t.conv.LastMessage = last.msg
	if last.msg.CreatedAt.After(t.conv.LastActivityAt) {
		t.conv.LastActivityAt = last.msg.CreatedAt
	}
}

// members returns every known member, including self
func (t *thread) members(self string) []string {
	seen := make(map[string]bool, len(t.conv.Participants)+2)
	out := make([]string, 0, len(t.conv.Participants)+2)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, p := range t.conv.Participants {
		add(p.UserId)
	}
	if a, b, ok := entity.SingleConversationMembers(t.conv.Id); ok {
		add(a)
		add(b)
	}
	add(self)
	return out
}

// bumpUnread counts e as unread for every member but its sender
func (t *thread) bumpUnread(e *entry, self string) {
	if e.counted || e.msg.IsDeleted {
		return
	}
	e.counted = true
	for _, id := range t.members(self) {
		if id != e.msg.SenderId {
			t.conv.UnreadCounts[id]++
		}
	}
}

// unreadAfter counts rows after index i that userId did not send
func (t *thread) unreadAfter(i int, userId string) int64 {
	var n int64
	for _, e := range t.entries[i+1:] {
		if e.msg.SenderId != userId && !e.msg.IsDeleted {
			n++
		}
	}
	return n
}

func (t *thread) snapshot() []*entity.Message {
	out := make([]*entity.Message, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.msg.Clone())
	}
	return out
}

func sameBody(a, b *entity.Message) bool {
	if a.Content != b.Content || len(a.Attachments) != len(b.Attachments) {
		return false
	}
	for i := range a.Attachments {
		if a.Attachments[i].Url != b.Attachments[i].Url {
			return false
		}
	}
	return true
}
