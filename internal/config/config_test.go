package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Connection.Connector != ConnectorBluetooth {
		t.Fatalf("expected default connector %q, got %q", ConnectorBluetooth, cfg.Connection.Connector)
	}
	if cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default serial baud %d, got %d", DefaultSerialBaud, cfg.Connection.SerialBaud)
	}
	if cfg.Connection.DeviceModel != ModelScanWatch {
		t.Fatalf("expected default model %q, got %q", ModelScanWatch, cfg.Connection.DeviceModel)
	}
	if cfg.Session.TransactionTimeout() != DefaultTransactionTimeoutSeconds*time.Second {
		t.Fatalf("expected default transaction timeout, got %s", cfg.Session.TransactionTimeout())
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestDefaultRemembersDevices(t *testing.T) {
	cfg := Default()
	if !cfg.Storage.RememberDevices {
		t.Fatalf("expected remember_devices to be enabled by default")
	}
	if cfg.Metrics.TextfilePath != "" {
		t.Fatalf("expected metrics export to be disabled by default")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Connector != ConnectorBluetooth {
		t.Fatalf("expected defaults for a missing file, got %+v", cfg.Connection)
	}
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "connection": {
    "connector": "serial",
    "serial_port": "/dev/ttyUSB0",
    "device_model": " ScanWatch2 "
  },
  "auth": {
    "secret": "hunter2",
    "expect_address": true
  },
  "session": {
    "transaction_timeout_seconds": 5
  },
  "storage": {
    "remember_devices": false
  },
  "metrics": {
    "textfile_path": "/var/lib/node_exporter/wpplink.prom"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Connector != ConnectorSerial || cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("unexpected connection %+v", cfg.Connection)
	}
	if cfg.Connection.DeviceModel != ModelScanWatch2 {
		t.Fatalf("expected normalized model, got %q", cfg.Connection.DeviceModel)
	}
	if cfg.Auth.Secret != "hunter2" || !cfg.Auth.ExpectAddress {
		t.Fatalf("unexpected auth %+v", cfg.Auth)
	}
	if cfg.Session.TransactionTimeout() != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.Session.TransactionTimeout())
	}
	if cfg.Storage.RememberDevices {
		t.Fatalf("expected remember_devices=false to be preserved")
	}
	if cfg.Metrics.TextfilePath == "" {
		t.Fatalf("expected metrics path to be loaded")
	}
}

func TestLoadRejectsBrokenJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Connection.BluetoothAddress = "00:24:E4:11:22:33"
	cfg.Auth.Secret = "s3cret"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("expected %+v, got %+v", cfg, loaded)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away, stat err %v", err)
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
				Connection: ConnectionConfig{
					Connector: ConnectorIP,
					Host:      "192.168.1.10:7000",
				},
			},
		},
		{
			name: "invalid ip without host",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector: ConnectorIP,
				},
			},
			wantErr: true,
		},
		{
			name: "valid serial",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector:  ConnectorSerial,
					SerialPort: "/dev/ttyACM0",
					SerialBaud: 115200,
				},
			},
		},
		{
			name: "invalid serial without port",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector:  ConnectorSerial,
					SerialBaud: 115200,
				},
			},
			wantErr: true,
		},
		{
			name: "invalid serial with non-positive baud",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector:  ConnectorSerial,
					SerialPort: "COM3",
					SerialBaud: 0,
				},
			},
			wantErr: true,
		},
		{
			name: "bluetooth with address",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector:        ConnectorBluetooth,
					BluetoothAddress: "AA:BB:CC:DD:EE:FF",
					DeviceModel:      ModelScanWatch,
				},
			},
		},
		{
			name: "bluetooth scanning by model",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector:   ConnectorBluetooth,
					DeviceModel: ModelBodyPlus,
				},
			},
		},
		{
			name: "bluetooth with unknown model",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector:   ConnectorBluetooth,
					DeviceModel: DeviceModel("fitbit"),
				},
			},
			wantErr: true,
		},
		{
			name: "negative timeout",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector: ConnectorIP,
					Host:      "localhost:7000",
				},
				Session: SessionConfig{TransactionTimeoutSec: -1},
			},
			wantErr: true,
		},
		{
			name: "json log format",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector: ConnectorIP,
					Host:      "localhost:7000",
				},
				Logging: LoggingConfig{Format: "json"},
			},
		},
		{
			name: "unknown log format",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector: ConnectorIP,
					Host:      "localhost:7000",
				},
				Logging: LoggingConfig{Format: "xml"},
			},
			wantErr: true,
		},
		{
			name: "unknown connector",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Connector: ConnectorType("usb"),
				},
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		err := tc.cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: expected no error, got %v", tc.name, err)
		}
	}
}
