package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexosync/internal/service"
	"github.com/mbeoliero/nexosync/pkg/response"
)

// StatusHandler exposes the engine flags and presence
type StatusHandler struct {
	messenger *service.Messenger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(messenger *service.Messenger) *StatusHandler {
	return &StatusHandler{messenger: messenger}
}

// GetStatus returns connection state and loading flags
func (h *StatusHandler) GetStatus(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, h.messenger.Status())
}

// ClearError dismisses the last error
func (h *StatusHandler) ClearError(ctx context.Context, c *app.RequestContext) {
	h.messenger.ClearError()
	response.Success(ctx, c, nil)
}

// GetOnline reports whether user_id is online, or lists every user known online
func (h *StatusHandler) GetOnline(ctx context.Context, c *app.RequestContext) {
	userId := c.Query("user_id")
	if userId == "" {
		response.Success(ctx, c, map[string]interface{}{
			"user_ids": h.messenger.OnlineUsers(),
		})
		return
	}
	response.Success(ctx, c, map[string]interface{}{
		"user_id": userId,
		"online":  h.messenger.IsOnline(ctx, userId),
	})
}
