package bluetoothutil

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"tinygo.org/x/bluetooth"
)

// ErrAdapterUnavailable reports an adapter that is missing, powered off or
// not ready for WPP traffic.
var ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

// OpenAdapter resolves adapterID (empty selects the default adapter) and
// enables it, ready for Scan, FindDevice or a connection.
func OpenAdapter(adapterID string) (*bluetooth.Adapter, error) {
	id := normalizeAdapterID(adapterID)
	adapter := adapterByID(id)
	if err := adapter.Enable(); err != nil && !alreadyEnabled(err) {
		return nil, fmt.Errorf("enable adapter %s: %w", adapterLabel(id), classifyAdapterError(err))
	}

	return adapter, nil
}

// normalizeAdapterID accepts "hci1" as well as a bare index like "1".
func normalizeAdapterID(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return ""
	}
	if strings.Trim(id, "0123456789") == "" {
		return "hci" + id
	}
	return id
}

func adapterLabel(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

// alreadyEnabled matches the Windows backend reporting RoInitialize S_FALSE
// ("Incorrect function.") when COM was initialised before.
func alreadyEnabled(err error) bool {
	if err == nil || runtime.GOOS != "windows" {
		return false
	}
	msg := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(err.Error())), ".")

	return msg == "incorrect function"
}

func classifyAdapterError(err error) error {
	msg := strings.ToLower(err.Error())
	if HasDBusError(err, bluezNotReady, dbusServiceUnknown) ||
		strings.Contains(msg, "not powered") ||
		strings.Contains(msg, "no such adapter") ||
		strings.Contains(msg, "doesn't exist") {
		return fmt.Errorf("%w: %w", ErrAdapterUnavailable, err)
	}
	return err
}
