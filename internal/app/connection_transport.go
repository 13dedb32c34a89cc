package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kscape/xbee-go/internal/config"
	"github.com/kscape/xbee-go/internal/transport"
)

// SwitchableTransport forwards to the transport built from the current
// connection config. Apply swaps it; the old link is closed, which makes the
// radio's pending read fail and its connect loop reopen through the new one.
type SwitchableTransport struct {
	mu        sync.RWMutex
	cfg       config.ConnectionConfig
	transport transport.Transport
}

var _ transport.Transport = (*SwitchableTransport)(nil)

func NewConnectionTransport(cfg config.ConnectionConfig) (*SwitchableTransport, error) {
	tr, err := NewTransportForConnection(cfg)
	if err != nil {
		return nil, err
	}

	return &SwitchableTransport{cfg: cfg, transport: tr}, nil
}

// Apply switches to cfg. It reports false, and keeps the open link, when cfg
// describes the same link as the current one.
func (t *SwitchableTransport) Apply(cfg config.ConnectionConfig) (bool, error) {
	if t.Config() == cfg {
		return false, nil
	}
	next, err := NewTransportForConnection(cfg)
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	prev := t.transport
	t.transport, t.cfg = next, cfg
	t.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	return true, nil
}

func (t *SwitchableTransport) Config() config.ConnectionConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.cfg
}

func (t *SwitchableTransport) Name() string {
	if tr := t.current(); tr != nil {
		return tr.Name()
	}

	return "unknown"
}

func (t *SwitchableTransport) StatusTarget() string {
	if resolver, ok := t.current().(transport.StatusTargetResolver); ok {
		if target := strings.TrimSpace(resolver.StatusTarget()); target != "" {
			return target
		}
	}

	return ConnectionTarget(t.Config())
}

func (t *SwitchableTransport) Connect(ctx context.Context) error {
	tr, err := t.active()
	if err != nil {
		return err
	}

	return tr.Connect(ctx)
}

func (t *SwitchableTransport) Close() error {
	if tr := t.current(); tr != nil {
		return tr.Close()
	}

	return nil
}

func (t *SwitchableTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	tr, err := t.active()
	if err != nil {
		return nil, err
	}

	return tr.ReadFrame(ctx)
}

func (t *SwitchableTransport) WriteFrame(ctx context.Context, frameData []byte) error {
	tr, err := t.active()
	if err != nil {
		return err
	}

	return tr.WriteFrame(ctx, frameData)
}

func (t *SwitchableTransport) current() transport.Transport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.transport
}

func (t *SwitchableTransport) active() (transport.Transport, error) {
	if tr := t.current(); tr != nil {
		return tr, nil
	}

	return nil, fmt.Errorf("transport is not configured")
}

// NewTransportForConnection builds the transport for cfg. Zero API mode, baud
// and port select the defaults.
func NewTransportForConnection(cfg config.ConnectionConfig) (transport.Transport, error) {
	mode := transport.APIModeNormal
	switch cfg.APIMode {
	case 0, int(transport.APIModeNormal):
	case int(transport.APIModeEscaped):
		mode = transport.APIModeEscaped
	default:
		return nil, fmt.Errorf("unsupported api mode: %d", cfg.APIMode)
	}

	switch cfg.Connector {
	case config.ConnectorIP:
		port := cfg.Port
		if port <= 0 {
			port = config.DefaultIPPort
		}
		return transport.NewIPTransport(cfg.Host, port, mode), nil
	case config.ConnectorSerial:
		baud := cfg.SerialBaud
		if baud <= 0 {
			baud = config.DefaultSerialBaud
		}
		return transport.NewSerialTransport(cfg.SerialPort, baud, mode), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}
