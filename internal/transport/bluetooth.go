package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"wpplink/internal/bluetoothutil"
)

const (
	defaultBluetoothDiscoverWait  = 12 * time.Second
	defaultBluetoothSubscribeWait = 8 * time.Second
)

type bluetoothConnState struct {
	device bluetooth.Device
	txRx   bluetooth.DeviceCharacteristic
	rx     Receiver

	closed    chan struct{}
	closeOnce sync.Once
}

// BluetoothTransport connects to a device's WPP characteristic. An empty
// address means: scan for the first device advertising the model service.
type BluetoothTransport struct {
	address   string
	adapterID string
	model     bluetoothutil.Model
	scanWait  time.Duration

	mu      sync.RWMutex
	conn    *bluetoothConnState
	writeMu sync.Mutex
}

func NewBluetoothTransport(address, adapterID string, model bluetoothutil.Model, scanWait time.Duration) *BluetoothTransport {
	if scanWait <= 0 {
		scanWait = defaultBluetoothDiscoverWait
	}
	return &BluetoothTransport{
		address:   strings.TrimSpace(address),
		adapterID: strings.TrimSpace(adapterID),
		model:     model,
		scanWait:  scanWait,
	}
}

func (t *BluetoothTransport) Name() string {
	return "bluetooth"
}

// Address is the configured address, or the scanned one once connected.
func (t *BluetoothTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.address
}

func (t *BluetoothTransport) StatusTarget() string {
	return t.Address()
}

func (t *BluetoothTransport) Connect(ctx context.Context, rx Receiver) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("bluetooth", t.address, rx, "adapter", t.adapterID, "model", t.model.Name)

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")
		return nil
	}
	if err := ctx.Err(); err != nil {
		logger.Debug("connect canceled", "error", err)
		return err
	}

	logger.Debug("opening adapter")
	adapter, err := bluetoothutil.OpenAdapter(t.adapterID)
	if err != nil {
		logger.Warn("open adapter failed", "error", err)
		return err
	}

	if t.address == "" {
		logger.Info("scanning for device")
		scanCtx, cancel := context.WithTimeout(ctx, t.scanWait)
		found, err := bluetoothutil.FindDevice(scanCtx, adapter, t.model)
		cancel()
		if err != nil {
			logger.Warn("scan failed", "error", err)
			return fmt.Errorf("find %s device: %w", t.model.Name, err)
		}
		t.address = found.Address
		logger = logger.With("target", t.address)
		logger.Info("device found", "name", found.Name, "rssi", found.RSSI)
	}

	addr, err := parseBluetoothAddress(t.address)
	if err != nil {
		logger.Warn("connect failed: invalid address", "error", err)
		return err
	}

	logger.Info("connecting")
	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil && shouldRetryBluetoothConnectWithDiscovery(err) {
		logger.Info("direct connect failed, trying discovery fallback", "error", err)
		if discoverErr := discoverBluetoothDevice(ctx, adapter, addr, t.scanWait); discoverErr != nil {
			logger.Warn("discovery fallback failed", "error", discoverErr)
			return fmt.Errorf("connect bluetooth device %q: %w", t.address, errors.Join(err, fmt.Errorf("discovery failed: %w", discoverErr)))
		}
		logger.Debug("retrying device connect after discovery")
		device, err = adapter.Connect(addr, bluetooth.ConnectionParams{})
	}
	if err != nil {
		logger.Warn("connect device failed", "error", err)
		return fmt.Errorf("connect bluetooth device %q: %w", t.address, err)
	}
	logger.Debug("device connected")

	services, err := device.DiscoverServices([]bluetooth.UUID{t.model.Service})
	if err != nil {
		_ = device.Disconnect()
		logger.Warn("discover service failed", "error", err)
		return fmt.Errorf("discover %s service: %w", t.model.Name, err)
	}
	if len(services) == 0 {
		_ = device.Disconnect()
		logger.Warn("wpp service is not available")
		return fmt.Errorf("%s BLE service is not available", t.model.Name)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{t.model.TxRx})
	if err != nil {
		_ = device.Disconnect()
		logger.Warn("discover characteristic failed", "error", err)
		return fmt.Errorf("discover %s characteristic: %w", t.model.Name, err)
	}
	if len(chars) != 1 {
		_ = device.Disconnect()
		logger.Warn("unexpected characteristic count", "count", len(chars))
		return fmt.Errorf("unexpected characteristic count: %d", len(chars))
	}

	state := &bluetoothConnState{
		device: device,
		txRx:   chars[0],
		rx:     rx,
		closed: make(chan struct{}),
	}

	logger.Debug("subscribing to notifications")
	if err := enableBluetoothNotificationsWithTimeout(ctx, device, state.txRx, state.onNotify, defaultBluetoothSubscribeWait); err != nil {
		_ = device.Disconnect()
		logger.Warn("subscribe to notifications failed", "error", err)
		return fmt.Errorf("subscribe to %s notifications: %w", t.model.Name, err)
	}

	if err := ctx.Err(); err != nil {
		state.markClosed()
		_ = state.txRx.EnableNotifications(nil)
		_ = device.Disconnect()
		logger.Debug("connect canceled after setup", "error", err)
		return err
	}

	adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected || d.Address.MAC != addr.MAC {
			return
		}
		t.fail(state, errors.New("device disconnected"))
	})

	t.conn = state
	logger.Info("connected")
	return nil
}

func (t *BluetoothTransport) Close() error {
	t.mu.Lock()
	state := t.conn
	t.conn = nil
	var rx Receiver
	if state != nil {
		rx = state.rx
	}
	logger := transportLogger("bluetooth", t.address, rx, "adapter", t.adapterID)
	t.mu.Unlock()
	if state == nil {
		logger.Debug("close skipped: not connected")
		return nil
	}

	logger.Info("closing connection")
	if !state.markClosed() {
		return nil
	}

	var closeErr error
	if err := state.txRx.EnableNotifications(nil); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("disable notifications: %w", err))
		logger.Warn("disable notifications failed", "error", err)
	}
	if err := state.device.Disconnect(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("disconnect bluetooth device: %w", err))
		logger.Warn("disconnect failed", "error", err)
	}
	state.rx.OnDisconnect(nil)

	if closeErr != nil {
		return closeErr
	}
	logger.Info("closed")

	return nil
}

func (t *BluetoothTransport) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state, err := t.currentState()
	if err != nil {
		return err
	}
	logger := transportLogger("bluetooth", "", state.rx)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-state.closed:
		return ErrNotConnected
	default:
	}

	written, err := state.txRx.Write(p)
	if err != nil {
		logger.Warn("write failed", "len", len(p), "error", err)
		return fmt.Errorf("write characteristic: %w", err)
	}
	if written != len(p) {
		return fmt.Errorf("short write to characteristic: wrote %d of %d", written, len(p))
	}
	logger.Debug("write", "len", len(p))

	return nil
}

func (t *BluetoothTransport) currentState() (*bluetoothConnState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	return t.conn, nil
}

// fail tears the connection down after the link dropped underneath us.
func (t *BluetoothTransport) fail(state *bluetoothConnState, err error) {
	if !state.markClosed() {
		return
	}
	t.mu.Lock()
	if t.conn == state {
		t.conn = nil
	}
	t.mu.Unlock()

	transportLogger("bluetooth", "", state.rx).Warn("connection lost", "error", err)
	state.rx.OnDisconnect(err)
}

func (s *bluetoothConnState) onNotify(buf []byte) {
	select {
	case <-s.closed:
		return
	default:
	}
	s.rx.OnNotify(append([]byte(nil), buf...))
}

// markClosed reports whether this call closed the state.
func (s *bluetoothConnState) markClosed() bool {
	closed := false
	s.closeOnce.Do(func() {
		close(s.closed)
		closed = true
	})
	return closed
}

func parseBluetoothAddress(raw string) (bluetooth.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return bluetooth.Address{}, errors.New("bluetooth address is empty")
	}

	mac, err := bluetooth.ParseMAC(strings.ToUpper(trimmed))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid bluetooth address %q: %w", trimmed, err)
	}

	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

func shouldRetryBluetoothConnectWithDiscovery(err error) bool {
	if err == nil || runtime.GOOS != "linux" {
		return false
	}
	msg := strings.ToLower(err.Error())
	if bluetoothutil.HasDBusError(err, bluetoothutil.DBusUnknownMethod) {
		return strings.Contains(msg, "org.freedesktop.dbus.properties") &&
			strings.Contains(msg, "method \"get\"")
	}

	return strings.Contains(msg, "org.freedesktop.dbus.properties") &&
		strings.Contains(msg, "method \"get\"") &&
		strings.Contains(msg, "doesn't exist")
}

func discoverBluetoothDevice(ctx context.Context, adapter *bluetooth.Adapter, target bluetooth.Address, wait time.Duration) error {
	logger := transportLogger("bluetooth", target.String(), nil, "phase", "discovery")
	logger.Info("starting device discovery fallback")
	if err := bluetoothutil.StopScan(adapter); err != nil {
		logger.Warn("failed to reset scan state before discovery", "error", err)
		return fmt.Errorf("reset bluetooth scan state: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	foundCh := make(chan struct{}, 1)
	scanErrCh := make(chan error, 1)
	go func() {
		scanErrCh <- adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.Address.MAC != target.MAC {
				return
			}
			select {
			case foundCh <- struct{}{}:
			default:
			}
			_ = adapter.StopScan()
		})
	}()

	found := false
	select {
	case <-foundCh:
		found = true
		logger.Info("target device discovered")
	case <-scanCtx.Done():
		logger.Warn("device discovery timed out or canceled", "error", scanCtx.Err())
		_ = bluetoothutil.StopScan(adapter)
	}

	scanErr := <-scanErrCh
	if scanErr = bluetoothutil.ClassifyScanError(scanErr); scanErr != nil {
		logger.Warn("device discovery scan failed", "error", scanErr)
		return fmt.Errorf("scan bluetooth devices: %w", scanErr)
	}

	if !found {
		logger.Warn("target device not discovered")
		return fmt.Errorf("device %q was not discovered; keep it nearby and awake", target.String())
	}

	return nil
}

func enableBluetoothNotificationsWithTimeout(
	ctx context.Context,
	device bluetooth.Device,
	char bluetooth.DeviceCharacteristic,
	callback func([]byte),
	wait time.Duration,
) error {
	if wait <= 0 {
		wait = defaultBluetoothSubscribeWait
	}

	done := make(chan error, 1)
	go func() {
		done <- char.EnableNotifications(callback)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = device.Disconnect()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	case <-timer.C:
		_ = device.Disconnect()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("timed out after %s (abort returned: %w)", wait, err)
			}
		case <-time.After(2 * time.Second):
		}
		return fmt.Errorf("timed out after %s", wait)
	}
}
