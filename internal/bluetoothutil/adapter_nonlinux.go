//go:build !linux

package bluetoothutil

import (
	"log/slog"

	"tinygo.org/x/bluetooth"
)

// adapterByID always returns the default adapter: only BlueZ lets a caller
// pick one by id.
func adapterByID(id string) *bluetooth.Adapter {
	if id != "" {
		slog.Warn("bluetooth adapter selection is only supported on linux, using the default adapter",
			"component", "bluetooth", "adapter", id)
	}
	return bluetooth.DefaultAdapter
}
