package sdk

import (
	"errors"
	"fmt"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Upstream error codes the engine reacts to
const (
	CodeSuccess      = 0
	CodeInvalidParam = 1001
	CodeUnauthorized = 1003
	CodeForbidden    = 1004
	CodeNotFound     = 1005

	CodeTokenInvalid  = 2001
	CodeTokenExpired  = 2002
	CodeTokenMissing  = 2003
	CodeTokenMismatch = 2004

	CodeMessageNotFound = 4001
	CodeConvNotFound    = 4003
)

// IsAuthError reports whether err means the credential was rejected
func IsAuthError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case CodeUnauthorized, CodeForbidden, CodeTokenInvalid, CodeTokenExpired, CodeTokenMissing, CodeTokenMismatch:
		return true
	}
	return false
}

// IsNotFound reports whether err is a missing resource
func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == CodeNotFound || e.Code == CodeMessageNotFound || e.Code == CodeConvNotFound
}
