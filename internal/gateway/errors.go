package gateway

import (
	"errors"

	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// Gateway errors. Transport failures carry their errcode so callers above the
// gateway can match them with errors.Is without importing this package.
var (
	ErrConnClosed       = errcode.ErrConnClosed
	ErrInvalidProtocol  = errcode.ErrInvalidProtocol
	ErrWriteChannelFull = errors.New("write channel full")
	ErrKicked           = errors.New("kicked offline by server")
	ErrPanic            = errors.New("recovered panic")
)
