package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/internal/service"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/response"
)

// MessageHandler handles message-related requests
type MessageHandler struct {
	messenger *service.Messenger
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(messenger *service.Messenger) *MessageHandler {
	return &MessageHandler{messenger: messenger}
}

// ListMessages returns the message list of the open conversation, or of conversation_id
func (h *MessageHandler) ListMessages(ctx context.Context, c *app.RequestContext) {
	status := h.messenger.Status()
	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		conversationId = status.Selected
	}
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrNoConversation)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"conversation_id":       conversationId,
		"messages":              h.messenger.MessagesOf(conversationId),
		"typing":                h.messenger.TypingText(conversationId),
		"loading_messages":      status.LoadingMessages,
		"loading_more_messages": status.LoadingMoreMessages,
		"has_more_messages":     status.HasMoreMessages,
	})
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	Content     string              `json:"content"`
	Attachments []entity.Attachment `json:"attachments"`
}

// SendMessage handles send message request; the message comes back pending
func (h *MessageHandler) SendMessage(ctx context.Context, c *app.RequestContext) {
	var req SendMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.messenger.SendMessageWithAttachments(ctx, req.Content, req.Attachments)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg)
}

// RetryMessageRequest represents retry message request
type RetryMessageRequest struct {
	ClientTempId string `json:"client_temp_id"`
}

// RetryMessage handles retry of a failed send
func (h *MessageHandler) RetryMessage(ctx context.Context, c *app.RequestContext) {
	var req RetryMessageRequest
	if err := c.BindAndValidate(&req); err != nil || req.ClientTempId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.messenger.RetryMessage(ctx, req.ClientTempId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// DeleteMessageRequest represents delete message request
type DeleteMessageRequest struct {
	MessageId string `json:"message_id"`
}

// DeleteMessage handles delete message request
func (h *MessageHandler) DeleteMessage(ctx context.Context, c *app.RequestContext) {
	var req DeleteMessageRequest
	if err := c.BindAndValidate(&req); err != nil || req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.messenger.DeleteMessage(ctx, req.MessageId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// LoadMoreMessages starts loading the next older page of the open conversation
func (h *MessageHandler) LoadMoreMessages(ctx context.Context, c *app.RequestContext) {
	if err := h.messenger.LoadMoreMessages(ctx); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// TypingStart reports local input in the open conversation
func (h *MessageHandler) TypingStart(ctx context.Context, c *app.RequestContext) {
	if err := h.messenger.HandleTypingStart(ctx); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// TypingStop reports the end of local input in the open conversation
func (h *MessageHandler) TypingStop(ctx context.Context, c *app.RequestContext) {
	if err := h.messenger.HandleTypingStop(ctx); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}
