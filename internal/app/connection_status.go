package app

import (
	"fmt"
	"strings"
	"time"

	"wpplink/internal/config"
	"wpplink/internal/connectors"
	"wpplink/internal/persistence"
	"wpplink/internal/transport"
)

func TransportNameFromConnector(connector config.ConnectorType) string {
	switch connector {
	case config.ConnectorIP, config.ConnectorSerial, config.ConnectorBluetooth:
		return string(connector)
	}
	if value := strings.TrimSpace(string(connector)); value != "" {
		return value
	}
	return "unknown"
}

// ConnectionTarget is what status lines show before a connection exists.
// It names the endpoint the transport will dial: the bridge with its port,
// the serial line with its baud rate, the device address in history form, or
// the model a bluetooth scan looks for.
func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorIP:
		if strings.TrimSpace(cfg.Host) == "" {
			return ""
		}
		return transport.NewIPTransport(strings.TrimSpace(cfg.Host), DefaultIPPort).StatusTarget()
	case config.ConnectorSerial:
		port := strings.TrimSpace(cfg.SerialPort)
		if port == "" || cfg.SerialBaud <= 0 {
			return port
		}
		return fmt.Sprintf("%s@%d", port, cfg.SerialBaud)
	case config.ConnectorBluetooth:
		if addr := persistence.NormalizeAddress(cfg.BluetoothAddress); addr != "" {
			return addr
		}
		return "scan:" + string(cfg.DeviceModel)
	default:
		return ""
	}
}

// ConnectionStatusFromConfig describes a connection attempt for sessionID
// before the transport reports anything of its own.
func ConnectionStatusFromConfig(cfg config.ConnectionConfig, state connectors.ConnectionState, sessionID string) connectors.ConnectionStatus {
	return connectors.ConnectionStatus{
		State:         state,
		TransportName: TransportNameFromConnector(cfg.Connector),
		Target:        ConnectionTarget(cfg),
		SessionID:     sessionID,
		Timestamp:     time.Now(),
	}
}
