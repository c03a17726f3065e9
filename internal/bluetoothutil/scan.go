package bluetoothutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"
)

// ErrNotFound is returned by FindDevice when the scan ended without a match.
var ErrNotFound = errors.New("no matching device found")

// Found is one advertisement from a known device model.
type Found struct {
	Address string
	Name    string
	RSSI    int16
	Model   Model
}

// StopScan stops a running scan; stopping an idle adapter is not an error.
func StopScan(adapter *bluetooth.Adapter) error {
	err := adapter.StopScan()
	if err != nil && !scanAlreadyStopped(err) {
		return err
	}

	return nil
}

// Scan reports advertisements of the given models (all known models when
// empty) until ctx is done or fn returns false. The adapter must come from
// OpenAdapter. A scan already running on the adapter fails with
// ErrScanInProgress.
func Scan(ctx context.Context, adapter *bluetooth.Adapter, candidates []Model, fn func(Found) bool) error {
	if len(candidates) == 0 {
		candidates = models
	}
	logger := slog.With("component", "bluetooth_scan")
	if err := StopScan(adapter); err != nil {
		return fmt.Errorf("reset bluetooth scan state: %w", err)
	}

	stop := make(chan struct{})
	stopped := false
	scanErrCh := make(chan error, 1)
	go func() {
		scanErrCh <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if stopped {
				return
			}
			m, ok := matchModel(candidates, result.HasServiceUUID)
			if !ok {
				return
			}
			found := Found{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
				Model:   m,
			}
			logger.Debug("device found", "address", found.Address, "name", found.Name, "model", m.Name, "rssi", found.RSSI)
			if !fn(found) {
				stopped = true
				close(stop)
				_ = a.StopScan()
			}
		})
	}()

	var scanErr error
	select {
	case <-stop:
		scanErr = <-scanErrCh
	case scanErr = <-scanErrCh:
		// the adapter refused or ended the scan on its own
	case <-ctx.Done():
		logger.Debug("scan finished", "reason", ctx.Err())
		_ = StopScan(adapter)
		scanErr = <-scanErrCh
	}

	if err := ClassifyScanError(scanErr); err != nil {
		logger.Warn("scan failed", "error", err)
		return fmt.Errorf("scan bluetooth devices: %w", err)
	}
	return nil
}

// FindDevice scans for the first device advertising model's service.
func FindDevice(ctx context.Context, adapter *bluetooth.Adapter, model Model) (Found, error) {
	var (
		found Found
		ok    bool
	)
	err := Scan(ctx, adapter, []Model{model}, func(f Found) bool {
		found, ok = f, true
		return false
	})
	if err != nil {
		return Found{}, err
	}
	if !ok {
		return Found{}, fmt.Errorf("%s: %w", model.Name, ErrNotFound)
	}
	return found, nil
}
