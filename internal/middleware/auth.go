package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
)

// TokenSink holds the engine's current credential
type TokenSink interface {
	Token() string
	UpdateToken(ctx context.Context, token string) error
}

// Credential installs the bearer credential of the request when it differs from the
// current one. Requests without a credential run against the current session.
func Credential(sink TokenSink) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			c.Next(ctx)
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, BearerPrefix)
		if token != sink.Token() {
			if err := sink.UpdateToken(ctx, token); err != nil {
				response.Error(ctx, c, err)
				c.Abort()
				return
			}
		}

		c.Next(ctx)
	}
}
