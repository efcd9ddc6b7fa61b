package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/mbeoliero/nexosync/internal/handler"
	"github.com/mbeoliero/nexosync/internal/metrics"
	"github.com/mbeoliero/nexosync/internal/middleware"
	"github.com/mbeoliero/nexosync/internal/service"
	"github.com/mbeoliero/nexosync/pkg/response"
)

// Options holds what the routes need besides the handlers
type Options struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, handlers *Handlers, messenger *service.Messenger, opts Options) {
	h.Use(middleware.CORS(opts.AllowedOrigins))
	h.Use(middleware.Metrics(opts.Metrics))

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})
	h.GET("/metrics", func(ctx context.Context, c *app.RequestContext) {
		body, contentType, err := opts.Metrics.Expose(string(c.GetHeader("Accept")))
		if err != nil {
			response.Error(ctx, c, err)
			return
		}
		c.Data(consts.StatusOK, contentType, body)
	})

	// Session routes
	sessionGroup := h.Group("/session")
	{
		sessionGroup.POST("/token", handlers.Session.UpdateToken)
		sessionGroup.POST("/logout", handlers.Session.Logout)
	}

	credential := middleware.Credential(messenger)

	h.GET("/status", credential, handlers.Status.GetStatus)
	statusGroup := h.Group("/status", credential)
	{
		statusGroup.GET("/online", handlers.Status.GetOnline)
		statusGroup.POST("/clear_error", handlers.Status.ClearError)
	}

	// Conversation routes
	convGroup := h.Group("/conversation", credential)
	{
		convGroup.GET("/list", handlers.Conversation.GetConversationList)
		convGroup.POST("/select", handlers.Conversation.SelectConversation)
		convGroup.POST("/close", handlers.Conversation.CloseConversation)
		convGroup.POST("/archive", handlers.Conversation.ArchiveConversation)
		convGroup.POST("/mark_read", handlers.Conversation.MarkRead)
	}

	// Message routes
	msgGroup := h.Group("/msg", credential)
	{
		msgGroup.GET("/list", handlers.Message.ListMessages)
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.POST("/retry", handlers.Message.RetryMessage)
		msgGroup.POST("/delete", handlers.Message.DeleteMessage)
		msgGroup.POST("/load_more", handlers.Message.LoadMoreMessages)
	}

	typingGroup := h.Group("/typing", credential)
	{
		typingGroup.POST("/start", handlers.Message.TypingStart)
		typingGroup.POST("/stop", handlers.Message.TypingStop)
	}
}

// Handlers holds all HTTP handlers
type Handlers struct {
	Session      *handler.SessionHandler
	Status       *handler.StatusHandler
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
}

// NewHandlers builds every handler over one messenger
func NewHandlers(messenger *service.Messenger) *Handlers {
	return &Handlers{
		Session:      handler.NewSessionHandler(messenger),
		Status:       handler.NewStatusHandler(messenger),
		Message:      handler.NewMessageHandler(messenger),
		Conversation: handler.NewConversationHandler(messenger),
	}
}
