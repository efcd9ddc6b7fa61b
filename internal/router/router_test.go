package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/internal/gateway"
	"github.com/mbeoliero/nexosync/internal/metrics"
	"github.com/mbeoliero/nexosync/internal/presence"
	"github.com/mbeoliero/nexosync/internal/receipt"
	"github.com/mbeoliero/nexosync/internal/room"
	"github.com/mbeoliero/nexosync/internal/service"
	"github.com/mbeoliero/nexosync/internal/store"
	"github.com/mbeoliero/nexosync/internal/typing"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/jwt"
)

type emptyHistory struct{}

func (emptyHistory) ListConversations(ctx context.Context, cursor string) (*entity.ConversationPage, error) {
	return &entity.ConversationPage{}, nil
}

func (emptyHistory) FetchMessages(ctx context.Context, conversationId, cursor string, limit int) (*entity.MessagePage, error) {
	return &entity.MessagePage{}, nil
}

func (emptyHistory) SendMessage(ctx context.Context, req *entity.SendRequest) (*entity.Message, error) {
	return nil, errors.New("offline")
}

func (emptyHistory) MarkRead(ctx context.Context, r *entity.ReadReceipt) error { return nil }

func (emptyHistory) ArchiveConversation(ctx context.Context, conversationId string, archived bool) error {
	return nil
}

func (emptyHistory) DeleteMessage(ctx context.Context, conversationId, messageId string) error {
	return nil
}

type offlineDialer struct{}

func (offlineDialer) Dial(ctx context.Context, token, userId string) (gateway.ClientConn, error) {
	return nil, errors.New("connection refused")
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*server.Hertz, *service.Messenger) {
	t.Helper()
	return newServerOn(t, "127.0.0.1:0")
}

func newServerOn(t *testing.T, addr string) (*server.Hertz, *service.Messenger) {
	t.Helper()
	conn := gateway.NewManager(offlineDialer{}, gateway.WithReconnect(gateway.ReconnectOptions{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
		MaxAttempts:     1,
	}))
	st := store.New(emptyHistory{}, store.Options{})
	m := service.NewMessenger(service.Deps{
		Conn:     conn,
		Store:    st,
		Rooms:    room.NewController(conn),
		Typing:   typing.NewAggregator(conn, typing.Options{}),
		Receipts: receipt.NewPropagator(st, emptyHistory{}),
		Presence: presence.NewTracker(nil, time.Minute),
	}, service.Options{})
	m.Start()
	t.Cleanup(m.Stop)

	h := server.New(server.WithHostPorts(addr))
	SetupRouter(h, NewHandlers(m), m, Options{
		AllowedOrigins: []string{"http://localhost:3000"},
		Metrics:        metrics.New(),
	})
	return h, m
}

func perform(t *testing.T, h *server.Hertz, method, path, body string, headers ...ut.Header) (int, envelope) {
	t.Helper()
	var b *ut.Body
	if body != "" {
		b = &ut.Body{Body: bytes.NewBufferString(body), Len: len(body)}
		headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	}
	resp := ut.PerformRequest(h.Engine, method, path, b, headers...).Result()

	var env envelope
	if path != "/metrics" {
		require.NoError(t, json.Unmarshal(resp.Body(), &env), string(resp.Body()))
	}
	return resp.StatusCode(), env
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/health", nil).Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Body()))
}

func TestOperationsWithoutConversation(t *testing.T) {
	h, _ := newTestServer(t)

	status, env := perform(t, h, http.MethodPost, "/msg/send", `{"content":"hi"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, errcode.ErrNoConversation.Code, env.Code)

	_, env = perform(t, h, http.MethodGet, "/msg/list", "")
	assert.Equal(t, errcode.ErrNoConversation.Code, env.Code)

	_, env = perform(t, h, http.MethodPost, "/conversation/select", `{}`)
	assert.Equal(t, errcode.ErrInvalidParam.Code, env.Code)

	_, env = perform(t, h, http.MethodPost, "/msg/retry", `{}`)
	assert.Equal(t, errcode.ErrInvalidParam.Code, env.Code)
}

func TestSelectThenList(t *testing.T) {
	h, m := newTestServer(t)
	conv := entity.GenSingleConversationId("alice", "bob")

	_, env := perform(t, h, http.MethodPost, "/conversation/select", `{"conversation_id":"`+conv+`"}`)
	require.Equal(t, 0, env.Code, env.Msg)
	m.Wait()

	_, env = perform(t, h, http.MethodGet, "/msg/list", "")
	require.Equal(t, 0, env.Code, env.Msg)
	var list struct {
		ConversationId string `json:"conversation_id"`
		HasMore        bool   `json:"has_more_messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, conv, list.ConversationId)
	assert.False(t, list.HasMore)

	_, env = perform(t, h, http.MethodPost, "/conversation/close", "")
	assert.Equal(t, 0, env.Code)
	assert.Empty(t, m.Selected())
}

func TestCredentialHeader(t *testing.T) {
	h, m := newTestServer(t)

	status, env := perform(t, h, http.MethodGet, "/status", "", ut.Header{Key: "Authorization", Value: "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errcode.ErrTokenInvalid.Code, env.Code)

	expired, err := jwt.GenerateToken("alice", 5, "secret", -time.Minute)
	require.NoError(t, err)
	status, env = perform(t, h, http.MethodGet, "/status", "", ut.Header{Key: "Authorization", Value: "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errcode.ErrTokenExpired.Code, env.Code)

	token, err := jwt.GenerateToken("alice", 5, "secret", time.Hour)
	require.NoError(t, err)
	status, env = perform(t, h, http.MethodGet, "/status", "", ut.Header{Key: "Authorization", Value: "Bearer " + token})
	require.Equal(t, http.StatusOK, status, env.Msg)

	var st service.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "alice", st.UserId)
	assert.Equal(t, token, m.Token())

	_, env = perform(t, h, http.MethodPost, "/session/logout", "")
	assert.Equal(t, 0, env.Code)
	assert.Empty(t, m.Token())
}

func TestSessionTokenRejectsGarbage(t *testing.T) {
	h, _ := newTestServer(t)

	status, env := perform(t, h, http.MethodPost, "/session/token", `{"token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errcode.ErrTokenInvalid.Code, env.Code)

	_, env = perform(t, h, http.MethodPost, "/session/token", `{}`)
	assert.Equal(t, errcode.ErrInvalidParam.Code, env.Code)
}

func TestMetricsExposition(t *testing.T) {
	h, _ := newTestServer(t)
	ut.PerformRequest(h.Engine, http.MethodGet, "/health", nil)

	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/metrics", nil).Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `nexosync_http_requests_total{code="2xx",method="GET",path="/health"} 1`)
	assert.Contains(t, string(resp.Body()), `nexosync_connection_status{status="disconnected"} 1`)
}

func TestMetricsOnRunningServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h, _ := newServerOn(t, addr)
	go h.Spin()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		body, err = io.ReadAll(resp.Body)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), "nexosync_connection_status")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)

	resp := ut.PerformRequest(h.Engine, http.MethodOptions, "/msg/send", nil,
		ut.Header{Key: "Origin", Value: "http://localhost:3000"}).Result()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())
	assert.Equal(t, "http://localhost:3000", string(resp.Header.Peek("Access-Control-Allow-Origin")))

	resp = ut.PerformRequest(h.Engine, http.MethodOptions, "/msg/send", nil,
		ut.Header{Key: "Origin", Value: "http://evil.example"}).Result()
	assert.Empty(t, string(resp.Header.Peek("Access-Control-Allow-Origin")))
}
