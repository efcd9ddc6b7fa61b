package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexosync/internal/service"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/response"
)

// SessionHandler handles credential requests
type SessionHandler struct {
	messenger *service.Messenger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(messenger *service.Messenger) *SessionHandler {
	return &SessionHandler{messenger: messenger}
}

// UpdateTokenRequest represents a credential update
type UpdateTokenRequest struct {
	Token string `json:"token"`
}

// UpdateToken installs a credential and connects with it
func (h *SessionHandler) UpdateToken(ctx context.Context, c *app.RequestContext) {
	var req UpdateTokenRequest
	if err := c.BindAndValidate(&req); err != nil || req.Token == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.messenger.UpdateToken(ctx, req.Token); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, h.messenger.Status())
}

// Logout drops the session
func (h *SessionHandler) Logout(ctx context.Context, c *app.RequestContext) {
	h.messenger.Logout(ctx)
	response.Success(ctx, c, nil)
}
