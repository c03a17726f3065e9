//go:build linux

package bluetoothutil

import "tinygo.org/x/bluetooth"

// adapterByID maps a normalised BlueZ adapter id to a tinygo adapter.
func adapterByID(id string) *bluetooth.Adapter {
	if id == "" || id == "hci0" {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(id)
}
