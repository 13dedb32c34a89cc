package transport

import (
	"context"
	"errors"
	"net"
	"os"
)

// Transport moves API frame data to and from a radio module. Implementations
// own the envelope: callers pass and receive frame data (type tag and body).
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frameData []byte) error
}

type StatusTargetResolver interface {
	StatusTarget() string
}

// IsTimeout reports whether err only means no frame arrived before the read
// deadline. The link itself is still usable.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
