package errcode

import (
	"errors"
	"fmt"
)

// Error represents a coded sync engine error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.err
}

// Is matches errors carrying the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
		err:  err,
	}
}

// CodeOf extracts the code of err, or ErrInternal's code when err is not coded
func CodeOf(err error) int {
	if err == nil {
		return ErrSuccess.Code
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam = New(1001, "invalid parameter")
	ErrInternal     = New(1002, "internal error")
	ErrUnauthorized = New(1003, "unauthorized")
	ErrNotFound     = New(1005, "not found")

	// Credential errors (2xxx)
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")

	// Conversation and message errors (4xxx)
	ErrMessageNotFound    = New(4001, "message not found")
	ErrConvNotFound       = New(4003, "conversation not found")
	ErrSendFailed         = New(4005, "message send failed")
	ErrHistoryFailed      = New(4006, "history fetch failed")
	ErrNoConversation     = New(4007, "no conversation selected")
	ErrMessageNotRetry    = New(4008, "message is not in a retryable state")
	ErrArchiveFailed      = New(4009, "archive conversation failed")
	ErrDeleteFailed       = New(4010, "delete message failed")
	ErrMarkReadFailed     = New(4011, "mark read failed")
	ErrConversationsStale = New(4012, "conversation list refresh failed")

	// Connection errors (5xxx)
	ErrConnClosed       = New(5002, "connection closed")
	ErrInvalidProtocol  = New(5003, "invalid protocol")
	ErrNotConnected     = New(5005, "not connected")
	ErrAuthRejected     = New(5006, "authentication rejected")
	ErrReconnectFailed  = New(5007, "reconnect attempts exhausted")
	ErrResyncIncomplete = New(5008, "resync incomplete")
)
