package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

// DeviceModel selects the BLE service layout of the target device.
type DeviceModel string

const (
	ConnectorIP        ConnectorType = "ip"
	ConnectorBluetooth ConnectorType = "bluetooth"
	ConnectorSerial    ConnectorType = "serial"
	DefaultSerialBaud                = 115200

	ModelScanWatch  DeviceModel = "scanwatch"
	ModelScanWatch2 DeviceModel = "scanwatch2"
	ModelBodyPlus   DeviceModel = "body_plus"

	DefaultTransactionTimeoutSeconds = 30
	DefaultScanTimeoutSeconds        = 10
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level string `json:"level"`
	// Format is "text" or "json".
	Format    string `json:"format,omitempty"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector        ConnectorType `json:"connector"`
	Host             string        `json:"host"`
	SerialPort       string        `json:"serial_port"`
	SerialBaud       int           `json:"serial_baud"`
	BluetoothAddress string        `json:"bluetooth_address"`
	BluetoothAdapter string        `json:"bluetooth_adapter"`
	DeviceModel      DeviceModel   `json:"device_model"`
	ScanTimeoutSec   int           `json:"scan_timeout_seconds"`
}

// AuthConfig holds the shared secret used to answer device challenges.
type AuthConfig struct {
	Secret string `json:"secret"`
	// ExpectAddress rejects challenges coming from another hardware address.
	ExpectAddress bool `json:"expect_address"`
}

// SessionConfig bounds how long a single exchange may take.
type SessionConfig struct {
	TransactionTimeoutSec int `json:"transaction_timeout_seconds"`
}

func (c SessionConfig) TransactionTimeout() time.Duration {
	return time.Duration(c.TransactionTimeoutSec) * time.Second
}

// StorageConfig controls the local device database.
type StorageConfig struct {
	RememberDevices bool `json:"remember_devices"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `json:"textfile_path"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection"`
	Auth       AuthConfig       `json:"auth"`
	Session    SessionConfig    `json:"session"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:      ConnectorBluetooth,
			SerialBaud:     DefaultSerialBaud,
			DeviceModel:    ModelScanWatch,
			ScanTimeoutSec: DefaultScanTimeoutSeconds,
		},
		Session: SessionConfig{
			TransactionTimeoutSec: DefaultTransactionTimeoutSeconds,
		},
		Storage: StorageConfig{
			RememberDevices: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the CLI flag or the user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorBluetooth
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Connection.DeviceModel == "" {
		c.Connection.DeviceModel = ModelScanWatch
	}
	c.Connection.DeviceModel = DeviceModel(strings.ToLower(strings.TrimSpace(string(c.Connection.DeviceModel))))
	if c.Connection.ScanTimeoutSec <= 0 {
		c.Connection.ScanTimeoutSec = DefaultScanTimeoutSeconds
	}
	if c.Session.TransactionTimeoutSec <= 0 {
		c.Session.TransactionTimeoutSec = DefaultTransactionTimeoutSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorIP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("ip host is required")
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	case ConnectorBluetooth:
		// an empty address means scan for the first device of the model
		switch c.Connection.DeviceModel {
		case ModelScanWatch, ModelScanWatch2, ModelBodyPlus:
		default:
			return fmt.Errorf("unknown device model: %s", c.Connection.DeviceModel)
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}
	if c.Session.TransactionTimeoutSec < 0 {
		return errors.New("transaction timeout must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
