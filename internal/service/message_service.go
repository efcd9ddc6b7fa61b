package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/internal/presenter"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// SendMessage sends text to the open conversation
func (m *Messenger) SendMessage(ctx context.Context, content string) (*entity.Message, error) {
	return m.SendMessageWithAttachments(ctx, content, nil)
}

// SendMessageWithAttachments shows the message as pending immediately and delivers it
// in the background. The returned copy carries the client temp id the message is
// reconciled under.
func (m *Messenger) SendMessageWithAttachments(ctx context.Context, content string, attachments []entity.Attachment) (*entity.Message, error) {
	conversationId, err := m.selectedOrErr()
	if err != nil {
		return nil, err
	}
	msg, err := m.store.PrepareSend(conversationId, content, 0, attachments)
	if err != nil {
		return nil, err
	}
	if m.typing.IsLocalTyping(conversationId) {
		_ = m.typing.SetTyping(ctx, conversationId, false)
	}

	clientTempId := msg.ClientTempId
	m.goAsync(func(ctx context.Context) {
		_, err := m.store.DeliverSend(ctx, conversationId, clientTempId)
		m.metrics.ObserveSend(err)
	})
	return msg, nil
}

// RetryMessage re-sends a failed message of the open conversation in the background
func (m *Messenger) RetryMessage(ctx context.Context, clientTempId string) error {
	conversationId, err := m.selectedOrErr()
	if err != nil {
		return err
	}
	msg, ok := m.store.Message(conversationId, clientTempId)
	if !ok {
		return errcode.ErrMessageNotFound
	}
	if msg.Status != entity.MessageStatusFailed || msg.IsDeleted {
		return errcode.ErrMessageNotRetry
	}

	m.goAsync(func(ctx context.Context) {
		_, err := m.store.RetrySend(ctx, conversationId, clientTempId)
		m.metrics.ObserveSend(err)
	})
	return nil
}

// DeleteMessage deletes a message of the open conversation; a failure restores it
func (m *Messenger) DeleteMessage(ctx context.Context, messageId string) error {
	conversationId, err := m.selectedOrErr()
	if err != nil {
		return err
	}
	if err := m.store.DeleteMessage(ctx, conversationId, messageId); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

// HandleTypingStart reports local input in the open conversation
func (m *Messenger) HandleTypingStart(ctx context.Context) error {
	return m.setTyping(ctx, true)
}

// HandleTypingStop reports the end of local input in the open conversation
func (m *Messenger) HandleTypingStop(ctx context.Context) error {
	return m.setTyping(ctx, false)
}

func (m *Messenger) setTyping(ctx context.Context, typing bool) error {
	conversationId, err := m.selectedOrErr()
	if err != nil {
		return err
	}
	if err := m.typing.SetTyping(ctx, conversationId, typing); err != nil {
		log.CtxDebug(ctx, "typing not sent: conversation_id=%s, typing=%v, err=%v", conversationId, typing, err)
		return err
	}
	return nil
}

// Messages returns the message list view of the open conversation
func (m *Messenger) Messages() []presenter.MessageView {
	conversationId := m.Selected()
	if conversationId == "" {
		return nil
	}
	return m.MessagesOf(conversationId)
}

// MessagesOf returns the message list view of any held conversation
func (m *Messenger) MessagesOf(conversationId string) []presenter.MessageView {
	conv, _ := m.store.Conversation(conversationId)
	return presenter.MapMessages(conv, m.store.Messages(conversationId), m.lookups())
}

// TypingText returns the typing line of a conversation
func (m *Messenger) TypingText(conversationId string) string {
	conv, _ := m.store.Conversation(conversationId)
	ids := m.typing.TypingUsers(conversationId)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, presenter.SenderName(conv, id))
	}
	return presenter.TypingText(names)
}
