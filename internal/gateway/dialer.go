package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// Dialer opens an authenticated transport
type Dialer interface {
	Dial(ctx context.Context, token, userId string) (ClientConn, error)
}

// WebsocketDialer dials the upstream websocket gateway
type WebsocketDialer struct {
	url        string
	platformId int
	dialer     *websocket.Dialer
	opts       ConnOptions
}

// NewWebsocketDialer creates a dialer for the gateway at wsURL
func NewWebsocketDialer(wsURL string, platformId int, handshakeTimeout time.Duration, opts ConnOptions) *WebsocketDialer {
	return &WebsocketDialer{
		url:        wsURL,
		platformId: platformId,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		opts: opts,
	}
}

// Dial performs the handshake; a 401/403 answer is reported as ErrAuthRejected
func (d *WebsocketDialer) Dial(ctx context.Context, token, userId string) (ClientConn, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set(QueryToken, token)
	q.Set(QuerySendId, userId)
	q.Set(QueryPlatformId, strconv.Itoa(d.platformId))
	q.Set(QueryOperationId, uuid.NewString())
	q.Set(QuerySDKType, SDKTypeGo)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errcode.ErrAuthRejected.Wrap(fmt.Errorf("handshake status %d", resp.StatusCode))
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	return NewWebSocketClientConn(conn, d.opts), nil
}
