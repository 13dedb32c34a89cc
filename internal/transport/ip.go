package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	defaultIPPort = 9750
	dialTimeout   = 6 * time.Second
	tcpKeepAlive  = 30 * time.Second
)

// IPTransport reaches a module through a serial-to-TCP bridge such as
// ser2net. Framing is identical to the serial link.
type IPTransport struct {
	framer
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// NewIPTransport targets host:port; port 0 selects 9750.
func NewIPTransport(host string, port int, mode APIMode) *IPTransport {
	if port == 0 {
		port = defaultIPPort
	}
	t := &IPTransport{framer: framer{link: "ip", mode: mode}}
	if host != "" {
		t.addr = net.JoinHostPort(host, strconv.Itoa(port))
	}

	return t
}

func (t *IPTransport) Name() string {
	return "ip"
}

func (t *IPTransport) StatusTarget() string {
	return t.addr
}

func (t *IPTransport) Connected() bool {
	_, err := t.currentConn()
	return err == nil
}

func (t *IPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	logger := transportLogger("ip", "target", t.addr)
	if t.addr == "" {
		return errors.New("ip host is empty")
	}

	dialer := net.Dialer{Timeout: dialTimeout, KeepAlive: tcpKeepAlive}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		logger.Warn("connect failed", "error", err)
		return fmt.Errorf("dial %s: %w", t.addr, err)
	}
	t.conn = conn
	t.reader.reset()
	logger.Info("connected", "remote", conn.RemoteAddr().String(), "api_mode", int(t.mode))

	return nil
}

func (t *IPTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", t.addr, err)
	}
	transportLogger("ip", "target", t.addr).Info("closed")

	return nil
}

// ReadFrame blocks until a whole frame arrives or the ctx deadline passes.
// Cancellation without a deadline is only noticed once bytes arrive.
func (t *IPTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	conn, err := t.currentConn()
	if err != nil {
		return nil, err
	}

	return t.readFrame(ctx, func(ctx context.Context) readFullFunc {
		deadline, _ := ctx.Deadline()
		_ = conn.SetReadDeadline(deadline)
		return ioReadFullFunc(conn)
	})
}

func (t *IPTransport) WriteFrame(ctx context.Context, frameData []byte) error {
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)

	return t.writeFrame(frameData, func(frame []byte) error {
		_, err := conn.Write(frame)
		return err
	})
}

func (t *IPTransport) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}
