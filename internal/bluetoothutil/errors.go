package bluetoothutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// D-Bus error names BlueZ returns while scanning and connecting.
const (
	bluezNotReady      = "org.bluez.Error.NotReady"
	bluezFailed        = "org.bluez.Error.Failed"
	bluezInProgress    = "org.bluez.Error.InProgress"
	dbusServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"

	// DBusUnknownMethod is returned by older BlueZ for devices it has not
	// discovered yet.
	DBusUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
)

// ErrScanInProgress reports that another process or call is already
// scanning on the adapter.
var ErrScanInProgress = errors.New("another bluetooth scan is already running")

// HasDBusError reports whether err wraps a D-Bus error with one of names.
func HasDBusError(err error, names ...string) bool {
	var name string
	var ptr *dbus.Error
	var val dbus.Error
	switch {
	case errors.As(err, &ptr) && ptr != nil:
		name = ptr.Name
	case errors.As(err, &val):
		name = val.Name
	default:
		return false
	}
	for _, want := range names {
		if name == want {
			return true
		}
	}
	return false
}

// scanAlreadyStopped matches the errors BlueZ and tinygo return when a scan
// is stopped that is not running.
func scanAlreadyStopped(err error) bool {
	if HasDBusError(err, bluezNotReady) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if HasDBusError(err, bluezFailed) && strings.Contains(msg, "no discovery started") {
		return true
	}

	for _, s := range []string{"cancel", "stopped", "not scanning", "no scan in progress"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ClassifyScanError maps the result of a finished scan: stop races become
// nil, a concurrent scan becomes ErrScanInProgress.
func ClassifyScanError(err error) error {
	if err == nil {
		return nil
	}
	if HasDBusError(err, bluezInProgress) || strings.Contains(strings.ToLower(err.Error()), "already in progress") {
		return fmt.Errorf("%w: %w", ErrScanInProgress, err)
	}
	if scanAlreadyStopped(err) {
		return nil
	}
	return err
}
