package stream

import "github.com/pkg/errors"

var (
	ErrEmptyPayload    = errors.New("empty payload")
	ErrNotStreaming    = errors.New("streaming is not active")
	ErrViewerExists    = errors.New("viewer already registered")
	ErrViewerNotFound  = errors.New("unknown viewer")
	ErrInvalidViewerID = errors.New("invalid viewer id")
	ErrNoTransport     = errors.New("no transport configured")
	ErrChannelNotReady = errors.New("channel not ready")
	ErrChannelClosed   = errors.New("channel closed")
)
