package app

import (
	"fmt"
	"time"

	"wpplink/internal/bluetoothutil"
	"wpplink/internal/config"
	"wpplink/internal/transport"
)

// NewTransportForConnection builds the connector selected in cfg. Nothing
// is opened until Connect.
func NewTransportForConnection(cfg config.ConnectionConfig) (transport.Transport, error) {
	switch cfg.Connector {
	case config.ConnectorIP:
		return transport.NewIPTransport(cfg.Host, DefaultIPPort), nil
	case config.ConnectorSerial:
		return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud), nil
	case config.ConnectorBluetooth:
		model, ok := bluetoothutil.ModelByName(string(cfg.DeviceModel))
		if !ok {
			return nil, fmt.Errorf("unknown device model: %q", cfg.DeviceModel)
		}
		scanWait := time.Duration(cfg.ScanTimeoutSec) * time.Second
		return transport.NewBluetoothTransport(cfg.BluetoothAddress, cfg.BluetoothAdapter, model, scanWait), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}

// transportTarget prefers what the live transport reports (a scanned
// bluetooth address) over the configured target.
func transportTarget(tr transport.Transport, cfg config.ConnectionConfig) string {
	if provider, ok := tr.(transport.StatusTargetResolver); ok {
		if target := provider.StatusTarget(); target != "" {
			return target
		}
	}

	return ConnectionTarget(cfg)
}
