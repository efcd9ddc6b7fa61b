package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/sdk"
)

type fakeUpstream struct {
	mu        sync.Mutex
	convs     []*sdk.ConversationInfo
	msgs      map[string][]*sdk.MessageInfo // by conversation, seq ascending from 1
	users     map[string]*sdk.UserInfo
	userCalls int
	groups    map[string]*sdk.GroupInfo
	members   map[string][]*sdk.GroupMember
	readSeq   map[string]int64
	archived  map[string]bool
	deleted   []int64
	sendErr   error
	lastSend  *sdk.SendMessageRequest
	online    map[string]int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		msgs:     map[string][]*sdk.MessageInfo{},
		users:    map[string]*sdk.UserInfo{},
		groups:   map[string]*sdk.GroupInfo{},
		members:  map[string][]*sdk.GroupMember{},
		readSeq:  map[string]int64{},
		archived: map[string]bool{},
	}
}

func (f *fakeUpstream) GetConversationList(ctx context.Context) ([]*sdk.ConversationInfo, error) {
	return f.convs, nil
}

func (f *fakeUpstream) PullMessages(ctx context.Context, conversationId string, beginSeq, endSeq int64, limit int) (*sdk.PullMessagesResponse, error) {
	all := f.msgs[conversationId]
	resp := &sdk.PullMessagesResponse{MaxSeq: int64(len(all))}
	for _, m := range all {
		if m.Seq >= beginSeq && m.Seq <= endSeq {
			resp.Messages = append(resp.Messages, m)
		}
	}
	return resp, nil
}

func (f *fakeUpstream) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	return int64(len(f.msgs[conversationId])), nil
}

func (f *fakeUpstream) SendMessage(ctx context.Context, req *sdk.SendMessageRequest) (*sdk.MessageInfo, error) {
	f.lastSend = req
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sdk.MessageInfo{Id: 99, Seq: 3, ClientMsgId: req.ClientMsgId, SendAt: 1_700_000_000_000}, nil
}

func (f *fakeUpstream) MarkRead(ctx context.Context, conversationId string, readSeq int64) error {
	f.readSeq[conversationId] = readSeq
	return nil
}

func (f *fakeUpstream) SetConversationArchived(ctx context.Context, conversationId string, archived bool) error {
	f.archived[conversationId] = archived
	return nil
}

func (f *fakeUpstream) DeleteMessage(ctx context.Context, conversationId string, serverMsgId int64) error {
	f.deleted = append(f.deleted, serverMsgId)
	return nil
}

func (f *fakeUpstream) GetUsersInfo(ctx context.Context, userIds []string) ([]*sdk.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	var out []*sdk.UserInfo
	for _, id := range userIds {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUpstream) GetGroupInfo(ctx context.Context, groupId string) (*sdk.GroupInfo, error) {
	g, ok := f.groups[groupId]
	if !ok {
		return nil, &sdk.Error{Code: sdk.CodeNotFound, Msg: "not found"}
	}
	return g, nil
}

func (f *fakeUpstream) GetGroupMembers(ctx context.Context, groupId string) ([]*sdk.GroupMember, error) {
	return f.members[groupId], nil
}

func (f *fakeUpstream) GetUsersOnlineStatus(ctx context.Context, userIds []string) ([]*sdk.OnlineStatus, error) {
	out := make([]*sdk.OnlineStatus, 0, len(userIds))
	for _, id := range userIds {
		out = append(out, &sdk.OnlineStatus{UserId: id, Status: f.online[id]})
	}
	return out, nil
}

func seedMessages(f *fakeUpstream, conversationId string, n int) {
	for i := 1; i <= n; i++ {
		f.msgs[conversationId] = append(f.msgs[conversationId], &sdk.MessageInfo{
			Id:             int64(100 + i),
			ConversationId: conversationId,
			Seq:            int64(i),
			SenderId:       "bob",
			MsgType:        1,
			Content:        sdk.MessageContent{Text: "m"},
			SendAt:         int64(1_700_000_000_000 + i*1000),
		})
	}
}

func newTestRepo(f *fakeUpstream) *HistoryRepo {
	repo := NewHistoryRepo(f, NewProfileRepo(f, 16, time.Minute))
	repo.SetUserId("alice")
	return repo
}

func TestFetchMessagesPaging(t *testing.T) {
	f := newFakeUpstream()
	seedMessages(f, "si_alice:bob", 5)
	repo := newTestRepo(f)
	ctx := context.Background()

	page, err := repo.FetchMessages(ctx, "si_alice:bob", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(4), page.Messages[0].Seq)
	assert.Equal(t, "105", page.Messages[1].Id)
	assert.True(t, page.HasMore)
	assert.Equal(t, "4", page.NextCursor)

	page, err = repo.FetchMessages(ctx, "si_alice:bob", page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, "2", page.NextCursor)

	page, err = repo.FetchMessages(ctx, "si_alice:bob", page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)

	_, err = repo.FetchMessages(ctx, "si_alice:bob", "abc", 2)
	assert.True(t, errors.Is(err, errcode.ErrInvalidParam))
}

func TestFetchMessagesEmpty(t *testing.T) {
	repo := newTestRepo(newFakeUpstream())
	page, err := repo.FetchMessages(context.Background(), "sg_none", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
}

func TestListConversationsEnriches(t *testing.T) {
	f := newFakeUpstream()
	seedMessages(f, "si_alice:bob", 2)
	f.convs = []*sdk.ConversationInfo{
		{ConversationId: "si_alice:bob", ConversationType: 1, PeerUserId: "bob", UnreadCount: 2, MaxSeq: 2, UpdatedAt: 1_700_000_000_000},
		{ConversationId: "sg_g1", ConversationType: 2, GroupId: "g1", IsArchived: true},
	}
	f.users["bob"] = &sdk.UserInfo{Id: "bob", Nickname: "Bob", Avatar: "bob.png"}
	f.users["alice"] = &sdk.UserInfo{Id: "alice", Nickname: "Alice"}
	f.groups["g1"] = &sdk.GroupInfo{Id: "g1", Name: "Crew", Avatar: "crew.png"}
	f.members["g1"] = []*sdk.GroupMember{{GroupId: "g1", UserId: "alice"}, {GroupId: "g1", UserId: "bob", GroupNickname: "Bobby"}}

	repo := newTestRepo(f)
	page, err := repo.ListConversations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page.Conversations, 2)

	direct := page.Conversations[0]
	assert.Equal(t, entity.ConversationTypeDirect, direct.Type)
	assert.Equal(t, "Bob", direct.Title)
	assert.Equal(t, int64(2), direct.Unread("alice"))
	require.NotNil(t, direct.LastMessage)
	assert.Equal(t, "102", direct.LastMessageId)

	group := page.Conversations[1]
	assert.Equal(t, "Crew", group.Title)
	assert.True(t, group.Archived)
	p, ok := group.Participant("bob")
	require.True(t, ok)
	assert.Equal(t, "Bobby", p.Nickname)
}

func TestProfileCache(t *testing.T) {
	f := newFakeUpstream()
	f.users["bob"] = &sdk.UserInfo{Id: "bob", Nickname: "Bob"}
	profiles := NewProfileRepo(f, 16, time.Minute)

	_, err := profiles.Users(context.Background(), []string{"bob", "ghost"})
	require.NoError(t, err)
	users, err := profiles.Users(context.Background(), []string{"bob"})
	require.NoError(t, err)

	assert.Equal(t, "Bob", users["bob"].Nickname)
	assert.Equal(t, 1, f.userCalls)
}

func TestSendMessageFillsBody(t *testing.T) {
	f := newFakeUpstream()
	repo := newTestRepo(f)

	msg, err := repo.SendMessage(context.Background(), &entity.SendRequest{
		ConversationId:   "si_alice:bob",
		ConversationType: entity.ConversationTypeDirect,
		PeerId:           "bob",
		ClientTempId:     "tmp_1",
		Content:          "hi",
		Type:             1,
	})
	require.NoError(t, err)
	assert.Equal(t, "99", msg.Id)
	assert.Equal(t, "tmp_1", msg.ClientTempId)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "alice", msg.SenderId)
	assert.Equal(t, entity.MessageStatusSent, msg.Status)
	assert.Equal(t, "bob", f.lastSend.RecvId)

	f.sendErr = &sdk.Error{Code: sdk.CodeTokenExpired, Msg: "token expired"}
	_, err = repo.SendMessage(context.Background(), &entity.SendRequest{ClientTempId: "tmp_2"})
	assert.True(t, errors.Is(err, errcode.ErrUnauthorized))
}

func TestMarkReadArchiveDelete(t *testing.T) {
	f := newFakeUpstream()
	seedMessages(f, "sg_g1", 3)
	repo := newTestRepo(f)
	ctx := context.Background()

	require.NoError(t, repo.MarkRead(ctx, &entity.ReadReceipt{ConversationId: "sg_g1", All: true}))
	assert.Equal(t, int64(3), f.readSeq["sg_g1"])

	require.NoError(t, repo.MarkRead(ctx, &entity.ReadReceipt{ConversationId: "sg_g1", UpToSeq: 2}))
	assert.Equal(t, int64(2), f.readSeq["sg_g1"])

	require.NoError(t, repo.ArchiveConversation(ctx, "sg_g1", true))
	assert.True(t, f.archived["sg_g1"])

	require.NoError(t, repo.DeleteMessage(ctx, "sg_g1", "102"))
	assert.Equal(t, []int64{102}, f.deleted)

	assert.True(t, errors.Is(repo.DeleteMessage(ctx, "sg_g1", "tmp_x"), errcode.ErrInvalidParam))
}

func TestProfilePresence(t *testing.T) {
	f := newFakeUpstream()
	f.online = map[string]int{"bob": 1, "carol": 2}
	profiles := NewProfileRepo(f, 16, time.Minute)

	got, err := profiles.Presence(context.Background(), []string{"bob", "carol", "dan"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, entity.PresenceOnline, got[0].Status)
	assert.Equal(t, entity.PresenceAway, got[1].Status)
	assert.Equal(t, entity.PresenceOffline, got[2].Status)

	none, err := profiles.Presence(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
