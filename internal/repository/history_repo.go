package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"golang.org/x/sync/errgroup"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/constant"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/sdk"
)

// enrichParallel bounds concurrent per-conversation lookups while listing
const enrichParallel = 4

// HistoryRepo serves conversation lists, history pages and message actions from the upstream API.
// Message cursors are upstream sequence numbers: a cursor is the oldest seq already loaded.
type HistoryRepo struct {
	api      Upstream
	profiles *ProfileRepo

	mu     sync.RWMutex
	userId string
}

// NewHistoryRepo creates a new HistoryRepo
func NewHistoryRepo(api Upstream, profiles *ProfileRepo) *HistoryRepo {
	return &HistoryRepo{api: api, profiles: profiles}
}

// SetUserId sets the session user unread counts are attributed to
func (r *HistoryRepo) SetUserId(userId string) {
	r.mu.Lock()
	changed := r.userId != userId
	r.userId = userId
	r.mu.Unlock()
	if changed && r.profiles != nil {
		r.profiles.Forget()
	}
}

func (r *HistoryRepo) currentUser() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userId
}

// ListConversations returns the whole upstream conversation list as a single page.
// The upstream list is not paginated, so cursor is ignored.
func (r *HistoryRepo) ListConversations(ctx context.Context, cursor string) (*entity.ConversationPage, error) {
	infos, err := r.api.GetConversationList(ctx)
	if err != nil {
		return nil, wrapUpstream(err)
	}

	self := r.currentUser()
	peerIds := []string{self}
	for _, info := range infos {
		if info.ConversationType == constant.SessionTypeSingle && info.PeerUserId != "" {
			peerIds = append(peerIds, info.PeerUserId)
		}
	}
	users, err := r.profiles.Users(ctx, peerIds)
	if err != nil {
		log.CtxWarn(ctx, "resolve conversation peers failed: %v", err)
	}

	convs := make([]*entity.Conversation, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichParallel)
	for i, info := range infos {
		conv := toConversation(info, self, users)
		convs[i] = conv
		g.Go(func() error {
			r.enrich(gctx, conv, info)
			return nil
		})
	}
	_ = g.Wait()

	return &entity.ConversationPage{Conversations: convs}, nil
}

// enrich fills group profile and last message; failures only cost display data
func (r *HistoryRepo) enrich(ctx context.Context, conv *entity.Conversation, info *sdk.ConversationInfo) {
	if info.ConversationType == constant.SessionTypeGroup {
		gp, err := r.profiles.Group(ctx, info.GroupId)
		if err != nil {
			log.CtxWarn(ctx, "resolve group profile failed: group_id=%s, err=%v", info.GroupId, err)
		} else {
			conv.Title = gp.Name
			conv.Avatar = gp.Avatar
			conv.Participants = append([]entity.Participant(nil), gp.Members...)
		}
	}

	if info.MaxSeq <= 0 {
		return
	}
	resp, err := r.api.PullMessages(ctx, info.ConversationId, info.MaxSeq, info.MaxSeq, 1)
	if err != nil {
		log.CtxWarn(ctx, "pull last message failed: conversation_id=%s, err=%v", info.ConversationId, err)
		return
	}
	for _, m := range resp.Messages {
		last := toMessage(m)
		conv.LastMessage = last
		conv.LastMessageId = last.Id
		if last.CreatedAt.After(conv.LastActivityAt) {
			conv.LastActivityAt = last.CreatedAt
		}
	}
}

// FetchMessages returns up to limit messages older than cursor, or the newest page when cursor is empty
func (r *HistoryRepo) FetchMessages(ctx context.Context, conversationId, cursor string, limit int) (*entity.MessagePage, error) {
	var endSeq int64
	if cursor == "" {
		maxSeq, err := r.api.GetMaxSeq(ctx, conversationId)
		if err != nil {
			return nil, wrapUpstream(err)
		}
		endSeq = maxSeq
	} else {
		oldest, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, errcode.ErrInvalidParam.Wrap(fmt.Errorf("cursor %q: %w", cursor, err))
		}
		endSeq = oldest - 1
	}

	if endSeq < 1 {
		return &entity.MessagePage{}, nil
	}

	beginSeq := endSeq - int64(limit) + 1
	if beginSeq < 1 {
		beginSeq = 1
	}

	resp, err := r.api.PullMessages(ctx, conversationId, beginSeq, endSeq, limit)
	if err != nil {
		return nil, wrapUpstream(err)
	}

	page := &entity.MessagePage{
		Messages: make([]*entity.Message, 0, len(resp.Messages)),
		HasMore:  beginSeq > 1,
	}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, toMessage(m))
	}
	if page.HasMore {
		page.NextCursor = strconv.FormatInt(beginSeq, 10)
	}
	return page, nil
}

// SendMessage sends a message and returns the persisted copy
func (r *HistoryRepo) SendMessage(ctx context.Context, req *entity.SendRequest) (*entity.Message, error) {
	content := entity.GetContent(req.Type, req.Content, req.Attachments)
	info, err := r.api.SendMessage(ctx, &sdk.SendMessageRequest{
		ClientMsgId: req.ClientTempId,
		RecvId:      req.PeerId,
		GroupId:     req.GroupId,
		SessionType: int32(req.ConversationType),
		MsgType:     req.Type,
		Content: sdk.MessageContent{
			Text:   content.Text,
			Image:  content.Image,
			Video:  content.Video,
			Audio:  content.Audio,
			File:   content.File,
			Custom: content.Custom,
		},
	})
	if err != nil {
		return nil, wrapUpstream(err)
	}

	msg := toMessage(info)
	if msg.ConversationId == "" {
		msg.ConversationId = req.ConversationId
	}
	if msg.ClientTempId == "" {
		msg.ClientTempId = req.ClientTempId
	}
	if msg.SenderId == "" {
		msg.SenderId = r.currentUser()
	}
	// the upstream echo of a send carries only the ids
	if msg.Content == "" && len(msg.Attachments) == 0 {
		msg.Content = req.Content
		msg.Attachments = append([]entity.Attachment(nil), req.Attachments...)
	}
	if msg.Type == 0 {
		msg.Type = req.Type
	}
	return msg, nil
}

// MarkRead moves the upstream read seq to the receipt boundary
func (r *HistoryRepo) MarkRead(ctx context.Context, receipt *entity.ReadReceipt) error {
	seq := receipt.UpToSeq
	if seq == 0 {
		maxSeq, err := r.api.GetMaxSeq(ctx, receipt.ConversationId)
		if err != nil {
			return wrapUpstream(err)
		}
		seq = maxSeq
	}
	return wrapUpstream(r.api.MarkRead(ctx, receipt.ConversationId, seq))
}

// ArchiveConversation archives or restores a conversation upstream
func (r *HistoryRepo) ArchiveConversation(ctx context.Context, conversationId string, archived bool) error {
	return wrapUpstream(r.api.SetConversationArchived(ctx, conversationId, archived))
}

// DeleteMessage deletes a confirmed message upstream
func (r *HistoryRepo) DeleteMessage(ctx context.Context, conversationId, messageId string) error {
	serverMsgId, err := strconv.ParseInt(messageId, 10, 64)
	if err != nil {
		return errcode.ErrInvalidParam.Wrap(fmt.Errorf("message id %q: %w", messageId, err))
	}
	return wrapUpstream(r.api.DeleteMessage(ctx, conversationId, serverMsgId))
}

func toConversation(info *sdk.ConversationInfo, self string, users map[string]entity.Participant) *entity.Conversation {
	conv := &entity.Conversation{
		Id:           info.ConversationId,
		Type:         entity.ConversationType(info.ConversationType),
		UnreadCounts: map[string]int64{},
		Archived:     info.IsArchived,
	}
	if conv.Type != entity.ConversationTypeGroup {
		conv.Type = entity.ConversationTypeDirect
	}
	if self != "" && info.UnreadCount > 0 {
		conv.UnreadCounts[self] = info.UnreadCount
	}
	if info.UpdatedAt > 0 {
		conv.LastActivityAt = time.UnixMilli(info.UpdatedAt)
	}

	if conv.Type == entity.ConversationTypeDirect {
		peerId := info.PeerUserId
		if peerId == "" {
			peerId = entity.PeerOf(info.ConversationId, self)
		}
		peer := users[peerId]
		peer.UserId = peerId
		me := users[self]
		me.UserId = self
		conv.Participants = []entity.Participant{me, peer}
		conv.Title = peer.Nickname
		conv.Avatar = peer.Avatar
	}
	return conv
}

func toMessage(info *sdk.MessageInfo) *entity.Message {
	msg := &entity.Message{
		Id:             strconv.FormatInt(info.Id, 10),
		ConversationId: info.ConversationId,
		SenderId:       info.SenderId,
		Type:           info.MsgType,
		Status:         entity.MessageStatusSent,
		ClientTempId:   info.ClientMsgId,
		Seq:            info.Seq,
	}
	if info.SendAt > 0 {
		msg.CreatedAt = time.UnixMilli(info.SendAt)
	}
	msg.SetContent(entity.MessageContent{
		Text:   info.Content.Text,
		Image:  info.Content.Image,
		Video:  info.Content.Video,
		Audio:  info.Content.Audio,
		File:   info.Content.File,
		Custom: info.Content.Custom,
	})
	if info.IsDeleted {
		msg.Tombstone()
	}
	return msg
}

// wrapUpstream tags credential rejections so callers can treat them as terminal
func wrapUpstream(err error) error {
	if err == nil {
		return nil
	}
	if sdk.IsAuthError(err) {
		return errcode.ErrUnauthorized.Wrap(err)
	}
	return err
}
