package app

import (
	"context"
	"errors"
	"testing"

	"github.com/kscape/xbee-go/internal/config"
	"github.com/kscape/xbee-go/internal/transport"
)

func TestNewTransportForConnection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ConnectionConfig
		want    string
		wantErr bool
	}{
		{
			name: "ip",
			cfg: config.ConnectionConfig{
				Connector: config.ConnectorIP,
				Host:      "127.0.0.1",
			},
			want: "ip",
		},
		{
			name: "serial",
			cfg: config.ConnectionConfig{
				Connector:  config.ConnectorSerial,
				SerialPort: "/dev/ttyACM0",
				SerialBaud: 115200,
			},
			want: "serial",
		},
		{
			name: "serial escaped",
			cfg: config.ConnectionConfig{
				Connector:  config.ConnectorSerial,
				SerialPort: "/dev/ttyUSB0",
				APIMode:    2,
			},
			want: "serial",
		},
		{
			name: "bad api mode",
			cfg: config.ConnectionConfig{
				Connector:  config.ConnectorSerial,
				SerialPort: "/dev/ttyUSB0",
				APIMode:    4,
			},
			wantErr: true,
		},
		{
			name: "unknown connector",
			cfg: config.ConnectionConfig{
				Connector: config.ConnectorType("bluetooth"),
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tr, err := NewTransportForConnection(tc.cfg)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got nil", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tr.Name() != tc.want {
			t.Fatalf("%s: expected transport %q, got %q", tc.name, tc.want, tr.Name())
		}
	}
}

func TestConnectionTransportApplySwitchesImplementation(t *testing.T) {
	initial := config.ConnectionConfig{
		Connector: config.ConnectorIP,
		Host:      "192.168.1.10",
	}
	connTr, err := NewConnectionTransport(initial)
	if err != nil {
		t.Fatalf("new connection transport: %v", err)
	}

	if connTr.Name() != "ip" {
		t.Fatalf("expected initial transport ip, got %q", connTr.Name())
	}

	next := config.ConnectionConfig{
		Connector:  config.ConnectorSerial,
		SerialPort: "COM3",
		SerialBaud: 9600,
	}
	changed, err := connTr.Apply(next)
	if err != nil {
		t.Fatalf("apply serial config: %v", err)
	}
	if !changed {
		t.Fatalf("expected switch to report a change")
	}
	if connTr.Name() != "serial" {
		t.Fatalf("expected switched transport serial, got %q", connTr.Name())
	}

	gotCfg := connTr.Config()
	if gotCfg.Connector != config.ConnectorSerial {
		t.Fatalf("expected serial config, got %q", gotCfg.Connector)
	}
	if target := connTr.StatusTarget(); target != "COM3@9600" {
		t.Fatalf("expected serial status target, got %q", target)
	}
}

func TestConnectionTransportApplyKeepsCurrentOnError(t *testing.T) {
	initial := config.ConnectionConfig{
		Connector: config.ConnectorIP,
		Host:      "192.168.1.10",
	}
	connTr, err := NewConnectionTransport(initial)
	if err != nil {
		t.Fatalf("new connection transport: %v", err)
	}

	_, err = connTr.Apply(config.ConnectionConfig{
		Connector: config.ConnectorType("usb"),
	})
	if err == nil {
		t.Fatalf("expected apply error for unknown connector")
	}
	if connTr.Name() != "ip" {
		t.Fatalf("expected transport to remain ip after failed apply, got %q", connTr.Name())
	}
}

func TestConnectionTransportApplySameConfigKeepsLink(t *testing.T) {
	initial := config.ConnectionConfig{
		Connector: config.ConnectorIP,
		Host:      "192.168.1.10",
		Port:      2000,
	}
	connTr, err := NewConnectionTransport(initial)
	if err != nil {
		t.Fatalf("new connection transport: %v", err)
	}
	before := connTr.current()

	changed, err := connTr.Apply(initial)
	if err != nil {
		t.Fatalf("apply same config: %v", err)
	}
	if changed {
		t.Fatalf("expected identical config to be a no-op")
	}
	if connTr.current() != before {
		t.Fatalf("expected transport instance to be kept")
	}
	if target := connTr.StatusTarget(); target != "192.168.1.10:2000" {
		t.Fatalf("unexpected status target: %q", target)
	}
}

func TestSwitchableTransportForwardsNotConnected(t *testing.T) {
	connTr, err := NewConnectionTransport(config.ConnectionConfig{Connector: config.ConnectorIP, Host: "127.0.0.1"})
	if err != nil {
		t.Fatalf("new connection transport: %v", err)
	}

	if _, err := connTr.ReadFrame(context.Background()); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected not connected error, got %v", err)
	}
	if err := connTr.WriteFrame(context.Background(), []byte{0x08}); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected not connected error, got %v", err)
	}
	if err := connTr.Close(); err != nil {
		t.Fatalf("close idle transport: %v", err)
	}
}
