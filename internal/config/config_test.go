package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Connection.Connector != ConnectorSerial {
		t.Fatalf("expected default connector %q, got %q", ConnectorSerial, cfg.Connection.Connector)
	}
	if cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default serial baud %d, got %d", DefaultSerialBaud, cfg.Connection.SerialBaud)
	}
	if cfg.Connection.Port != DefaultIPPort {
		t.Fatalf("expected default ip port %d, got %d", DefaultIPPort, cfg.Connection.Port)
	}
	if cfg.Connection.APIMode != DefaultAPIMode {
		t.Fatalf("expected default api mode %d, got %d", DefaultAPIMode, cfg.Connection.APIMode)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("expected default log format text, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.MaxSizeMB != DefaultLogMaxSizeMB {
		t.Fatalf("expected default log max size %d, got %d", DefaultLogMaxSizeMB, cfg.Logging.MaxSizeMB)
	}
}

func TestAppConfigFillMissingDefaultsNormalizesValues(t *testing.T) {
	cfg := AppConfig{
		Connection: ConnectionConfig{APIMode: 7, ProbeCommand: " vr "},
		Logging:    LoggingConfig{Format: "JSON", MaxBackups: -2},
		Journal:    JournalConfig{RetainFrames: -5},
	}

	cfg.FillMissingDefaults()
	if cfg.Connection.APIMode != DefaultAPIMode {
		t.Fatalf("expected invalid api mode to reset, got %d", cfg.Connection.APIMode)
	}
	if cfg.Connection.ProbeCommand != "VR" {
		t.Fatalf("expected probe command to be normalized, got %q", cfg.Connection.ProbeCommand)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.MaxBackups != 0 {
		t.Fatalf("expected negative backups to clamp to 0, got %d", cfg.Logging.MaxBackups)
	}
	if cfg.Journal.RetainFrames != 0 {
		t.Fatalf("expected negative retention to clamp to 0, got %d", cfg.Journal.RetainFrames)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Journal.Enabled {
		t.Fatalf("expected journal to be enabled by default")
	}
	if cfg.Journal.RetainFrames != DefaultRetain {
		t.Fatalf("expected default retention %d, got %d", DefaultRetain, cfg.Journal.RetainFrames)
	}
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "connection": {
    "connector": "serial",
    "serial_port": "/dev/ttyUSB0",
    "serial_baud": 115200,
    "api_mode": 2
  },
  "logging": {
    "level": "debug",
    "log_to_file": true
  },
  "journal": {
    "enabled": false
  },
  "metrics": {
    "listen_addr": ":9108"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.SerialBaud != 115200 || cfg.Connection.APIMode != 2 {
		t.Fatalf("unexpected connection config: %+v", cfg.Connection)
	}
	if cfg.Journal.Enabled {
		t.Fatalf("expected journal enabled=false to be preserved")
	}
	if cfg.Journal.RetainFrames != DefaultRetain {
		t.Fatalf("expected omitted retention to keep default, got %d", cfg.Journal.RetainFrames)
	}
	if cfg.Metrics.ListenAddr != ":9108" {
		t.Fatalf("unexpected metrics listen addr: %q", cfg.Metrics.ListenAddr)
	}
	if !cfg.Logging.LogToFile || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestAppConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		wantErr bool
	}{
		{
			name: "valid ip",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorIP, Host: "192.168.1.10", APIMode: 1},
			},
		},
		{
			name: "invalid ip without host",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorIP, APIMode: 1},
			},
			wantErr: true,
		},
		{
			name: "valid serial",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorSerial, SerialPort: "/dev/ttyUSB0", SerialBaud: 9600, APIMode: 2},
			},
		},
		{
			name: "invalid serial without port",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorSerial, SerialBaud: 9600, APIMode: 1},
			},
			wantErr: true,
		},
		{
			name: "invalid serial with non-positive baud",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorSerial, SerialPort: "COM3", APIMode: 1},
			},
			wantErr: true,
		},
		{
			name: "invalid api mode",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorSerial, SerialPort: "COM3", SerialBaud: 9600, APIMode: 3},
			},
			wantErr: true,
		},
		{
			name: "invalid probe command",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorSerial, SerialPort: "COM3", SerialBaud: 9600, APIMode: 1, ProbeCommand: "VRX"},
			},
			wantErr: true,
		},
		{
			name: "unknown connector",
			cfg: AppConfig{
				Connection: ConnectionConfig{Connector: ConnectorType("bluetooth"), APIMode: 1},
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Connection.SerialPort = "/dev/ttyUSB1"
	cfg.Connection.APIMode = 2

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("config changed across save/load: got %+v want %+v", loaded, cfg)
	}
}
