package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexosync/internal/service"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	messenger *service.Messenger
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(messenger *service.Messenger) *ConversationHandler {
	return &ConversationHandler{messenger: messenger}
}

// GetConversationList handles get conversation list request
func (h *ConversationHandler) GetConversationList(ctx context.Context, c *app.RequestContext) {
	if c.Query("refresh") == "true" {
		if err := h.messenger.RefreshConversations(ctx); err != nil {
			response.Error(ctx, c, err)
			return
		}
	}

	response.Success(ctx, c, h.messenger.Conversations())
}

// ConversationRequest names a conversation
type ConversationRequest struct {
	ConversationId string `json:"conversation_id"`
}

// SelectConversation opens a conversation
func (h *ConversationHandler) SelectConversation(ctx context.Context, c *app.RequestContext) {
	var req ConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.messenger.SelectConversation(ctx, req.ConversationId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, h.messenger.Status())
}

// CloseConversation closes the open conversation
func (h *ConversationHandler) CloseConversation(ctx context.Context, c *app.RequestContext) {
	h.messenger.CloseConversation(ctx)
	response.Success(ctx, c, nil)
}

// ArchiveRequest represents archive conversation request; an empty id means the open one
type ArchiveRequest struct {
	ConversationId string `json:"conversation_id"`
	Archived       bool   `json:"archived"`
}

// ArchiveConversation handles archive conversation request
func (h *ConversationHandler) ArchiveConversation(ctx context.Context, c *app.RequestContext) {
	var req ArchiveRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.messenger.ArchiveConversation(ctx, req.ConversationId, req.Archived); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// MarkReadRequest represents mark read request; an empty id reads everything
type MarkReadRequest struct {
	UpToMessageId string `json:"up_to_message_id"`
}

// MarkRead handles mark open conversation as read request
func (h *ConversationHandler) MarkRead(ctx context.Context, c *app.RequestContext) {
	var req MarkReadRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.messenger.MarkAsRead(ctx, req.UpToMessageId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}
