package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/config"
	"github.com/mbeoliero/nexosync/internal/gateway"
	"github.com/mbeoliero/nexosync/internal/metrics"
	"github.com/mbeoliero/nexosync/internal/presence"
	"github.com/mbeoliero/nexosync/internal/receipt"
	"github.com/mbeoliero/nexosync/internal/repository"
	"github.com/mbeoliero/nexosync/internal/room"
	"github.com/mbeoliero/nexosync/internal/router"
	"github.com/mbeoliero/nexosync/internal/service"
	"github.com/mbeoliero/nexosync/internal/store"
	"github.com/mbeoliero/nexosync/internal/typing"
	"github.com/mbeoliero/nexosync/pkg/constant"
)

func main() {
	ctx := context.TODO()
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, upstream=%s", cfg.Server.Mode, cfg.Upstream.APIBaseURL)

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	// Presence falls back to process-local when redis is unreachable
	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxWarn(ctx, "redis unavailable, presence stays local: %v", err)
		_ = repos.Close()
		repos.Redis = nil
	}

	// Live connection
	dialer := gateway.NewWebsocketDialer(cfg.Upstream.WSURL, cfg.Upstream.PlatformId, cfg.WebSocket.HandshakeTimeout, gateway.ConnOptions{
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		WriteWait:        cfg.WebSocket.WriteWait,
		PongWait:         cfg.WebSocket.PongWait,
		PingPeriod:       cfg.WebSocket.PingPeriod,
		WriteChannelSize: cfg.WebSocket.WriteChannelSize,
	})
	conn := gateway.NewManager(dialer, gateway.WithReconnect(gateway.ReconnectOptions{
		InitialInterval: cfg.Reconnect.InitialInterval,
		MaxInterval:     cfg.Reconnect.MaxInterval,
		Multiplier:      cfg.Reconnect.Multiplier,
		MaxAttempts:     cfg.Reconnect.MaxAttempts,
	}))

	// Sync components
	st := store.New(repos.History, store.Options{
		PageSize:         cfg.Sync.PageSize,
		EchoWindow:       cfg.Sync.EchoWindow,
		MaxConversations: cfg.Sync.MaxConversations,
	})
	m := metrics.New()
	messenger := service.NewMessenger(service.Deps{
		Conn:  conn,
		Store: st,
		Rooms: room.NewController(conn),
		Typing: typing.NewAggregator(conn, typing.Options{
			TTL:             cfg.Typing.TTL,
			RefreshInterval: cfg.Typing.RefreshInterval,
			IdleTimeout:     cfg.Typing.IdleTimeout,
		}),
		Receipts: receipt.NewPropagator(st, repos.History),
		Presence: presence.NewTracker(repos.Redis, cfg.Redis.PresenceTTL),
		Session:  repos,
		Profiles: repos.Profile,
		Metrics:  m,
	}, service.Options{
		ResyncTimeout:  cfg.Sync.ResyncTimeout,
		ResyncParallel: cfg.Sync.ResyncParallel,
		SweepInterval:  cfg.Typing.SweepInterval,
	})
	messenger.Start()
	log.CtxInfo(ctx, "sync engine started")

	if cfg.Upstream.Token != "" {
		if err := messenger.UpdateToken(ctx, cfg.Upstream.Token); err != nil {
			log.CtxWarn(ctx, "configured token rejected: %v", err)
		}
	}

	// Create Hertz server
	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)

	// Setup routes
	router.SetupRouter(h, router.NewHandlers(messenger), messenger, router.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
	})

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	// Start server in goroutine
	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	messenger.Stop()

	log.CtxInfo(ctx, "server stopped")
}
