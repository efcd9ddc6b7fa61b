package receipt

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/internal/store"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

const (
	self = "alice"
	peer = "bob"
)

var conv = entity.GenSingleConversationId(self, peer)

type fakeAPI struct {
	mu       sync.Mutex
	err      error
	receipts []*entity.ReadReceipt
}

func (f *fakeAPI) MarkRead(ctx context.Context, receipt *entity.ReadReceipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, receipt)
	return f.err
}

func (f *fakeAPI) ListConversations(ctx context.Context, cursor string) (*entity.ConversationPage, error) {
	return &entity.ConversationPage{}, nil
}

func (f *fakeAPI) FetchMessages(ctx context.Context, conversationId, cursor string, limit int) (*entity.MessagePage, error) {
	return &entity.MessagePage{}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req *entity.SendRequest) (*entity.Message, error) {
	return nil, errors.New("unused")
}

func (f *fakeAPI) ArchiveConversation(ctx context.Context, conversationId string, archived bool) error {
	return nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, conversationId, messageId string) error {
	return nil
}

func seeded(t *testing.T, senders ...string) (*store.Store, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	s := store.New(api, store.Options{})
	s.SetUserId(self)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, sender := range senders {
		s.IngestRemoteMessage(context.Background(), &entity.Message{
			Id:             strconv.Itoa(i + 1),
			ConversationId: conv,
			SenderId:       sender,
			Content:        "m",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			Seq:            int64(i + 1),
		})
	}
	return s, api
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, api := seeded(t, peer, peer, peer)
	p := NewPropagator(s, api)

	require.NoError(t, p.MarkAsRead(ctx, conv, "3"))
	once := s.Unread(conv, self)
	require.NoError(t, p.MarkAsRead(ctx, conv, "3"))
	require.NoError(t, p.MarkAsRead(ctx, conv, "2"))

	assert.Equal(t, int64(0), once)
	assert.Equal(t, once, s.Unread(conv, self))
	require.Len(t, api.receipts, 1)
	assert.Equal(t, int64(3), api.receipts[0].UpToSeq)
}

func TestMarkAsReadRetriesFailedEmission(t *testing.T) {
	ctx := context.Background()
	s, api := seeded(t, peer, peer)
	p := NewPropagator(s, api)

	api.err = errors.New("503")
	err := p.MarkAsRead(ctx, conv, "")
	assert.True(t, errors.Is(err, errcode.ErrMarkReadFailed))
	assert.Equal(t, int64(0), s.Unread(conv, self))

	api.err = nil
	require.NoError(t, p.MarkAsRead(ctx, conv, ""))
	require.NoError(t, p.MarkAsRead(ctx, conv, ""))
	assert.Len(t, api.receipts, 2)
}

func TestMarkAsReadUnknownConversation(t *testing.T) {
	s, api := seeded(t)
	p := NewPropagator(s, api)
	assert.True(t, errors.Is(p.MarkAsRead(context.Background(), "sg_x", ""), errcode.ErrConvNotFound))
}

func TestRemoteReceiptMarkersAreMonotone(t *testing.T) {
	ctx := context.Background()
	s, api := seeded(t, self, self, self)
	p := NewPropagator(s, api)
	before := s.Unread(conv, self)

	assert.True(t, p.OnRemoteReceipt(ctx, &entity.ReadReceipt{ConversationId: conv, UserId: peer, UpToMessageId: "2"}))
	assert.Equal(t, int64(2), p.ReadSeq(conv, peer))
	assert.Equal(t, []string{peer}, p.SeenBy(conv, "1"))
	assert.Equal(t, []string{peer}, p.SeenBy(conv, "2"))
	assert.Empty(t, p.SeenBy(conv, "3"))

	assert.False(t, p.OnRemoteReceipt(ctx, &entity.ReadReceipt{ConversationId: conv, UserId: peer, UpToSeq: 1}))
	assert.Equal(t, int64(2), p.ReadSeq(conv, peer))

	assert.True(t, p.OnRemoteReceipt(ctx, &entity.ReadReceipt{ConversationId: conv, UserId: peer, All: true}))
	assert.Equal(t, []string{peer}, p.SeenBy(conv, "3"))
	assert.Equal(t, before, s.Unread(conv, self))
}

func TestSeenByExcludesSender(t *testing.T) {
	ctx := context.Background()
	s, api := seeded(t, peer)
	p := NewPropagator(s, api)

	p.OnRemoteReceipt(ctx, &entity.ReadReceipt{ConversationId: conv, UserId: peer, UpToSeq: 1})
	assert.Empty(t, p.SeenBy(conv, "1"))
	assert.Nil(t, p.SeenBy(conv, "404"))

	p.Reset()
	assert.Equal(t, int64(0), p.ReadSeq(conv, peer))
}
