package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// Error sends an error response; uncoded errors are reported as internal errors
func Error(ctx context.Context, c *app.RequestContext, err error) {
	var e *errcode.Error
	if !errors.As(err, &e) {
		e = errcode.ErrInternal.Wrap(err)
	}
	c.JSON(httpStatus(e), Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	c.JSON(httpStatus(e), Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(ctx context.Context, c *app.RequestContext, msg string) {
	if msg == "" {
		msg = "unauthorized"
	}
	c.JSON(http.StatusUnauthorized, Response{
		Code: errcode.ErrUnauthorized.Code,
		Msg:  msg,
	})
}

// httpStatus keeps the envelope on 200 except for credential problems
func httpStatus(e *errcode.Error) int {
	switch {
	case errors.Is(e, errcode.ErrUnauthorized),
		errors.Is(e, errcode.ErrTokenInvalid),
		errors.Is(e, errcode.ErrTokenExpired),
		errors.Is(e, errcode.ErrTokenMissing),
		errors.Is(e, errcode.ErrAuthRejected):
		return http.StatusUnauthorized
	case errors.Is(e, errcode.ErrInternal):
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
