package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wpplink/internal/auth"
	"wpplink/internal/config"
	"wpplink/internal/connectors"
	"wpplink/internal/device"
	"wpplink/internal/persistence"
	"wpplink/internal/session"
	"wpplink/internal/transport"
)

// disconnectGrace bounds the polite Disconnect exchange on Close.
const disconnectGrace = 3 * time.Second

// Session is one live device connection: transport, engine and client.
type Session struct {
	rt  *Runtime
	cfg config.ConnectionConfig

	Transport transport.Transport
	Engine    *session.Engine
	Device    *device.Client

	mu            sync.Mutex
	authenticated bool
	result        device.AuthResult
	closed        bool
}

// Connect opens the configured transport and binds a fresh session engine
// to it.
func (r *Runtime) Connect(ctx context.Context) (*Session, error) {
	cfg := r.CurrentConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	tr, err := NewTransportForConnection(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("initialize transport: %w", err)
	}

	return r.ConnectWith(ctx, tr)
}

// ConnectWith binds a session to an already built transport.
func (r *Runtime) ConnectWith(ctx context.Context, tr transport.Transport) (*Session, error) {
	cfg := r.CurrentConfig()
	engine := session.NewEngine(r.Registry, tr, session.Options{
		Logger:   r.LogManager.Logger("session"),
		Bus:      r.Bus,
		Observer: r.Metrics,
	})
	logger := slog.With("component", "app", "session_id", engine.ID())

	status := ConnectionStatusFromConfig(cfg.Connection, connectors.ConnectionStateConnecting, engine.ID())
	status.TransportName = tr.Name()
	r.Bus.Publish(connectors.TopicConnStatus, status)

	logger.Info("connecting", "transport", tr.Name(), "target", status.Target)
	if err := tr.Connect(ctx, engine); err != nil {
		status.State = connectors.ConnectionStateDisconnected
		status.Err = err.Error()
		status.Timestamp = time.Now()
		r.Bus.Publish(connectors.TopicConnStatus, status)
		return nil, fmt.Errorf("connect %s: %w", tr.Name(), err)
	}

	status.State = connectors.ConnectionStateConnected
	status.Target = transportTarget(tr, cfg.Connection)
	status.Timestamp = time.Now()
	r.Bus.Publish(connectors.TopicConnStatus, status)
	r.setDeviceAddress(bluetoothAddressOf(tr))

	s := &Session{
		rt:        r,
		cfg:       cfg.Connection,
		Transport: tr,
		Engine:    engine,
		Device: device.NewClient(r.Registry, engine, device.Options{
			Logger:  r.LogManager.Logger("device"),
			Timeout: cfg.Session.TransactionTimeout(),
		}),
	}
	r.trackSession(s, true)

	return s, nil
}

// Authenticate runs the probe handshake with the configured secret and,
// when storage is on, remembers the device identity.
func (s *Session) Authenticate(ctx context.Context) (device.AuthResult, error) {
	cfg := s.rt.CurrentConfig()
	var opts []auth.Option
	if cfg.Auth.ExpectAddress {
		if addr := bluetoothAddressOf(s.Transport); addr != "" {
			opts = append(opts, auth.WithExpectedAddress(addr))
		}
	}

	res, err := s.Device.Authenticate(ctx, []byte(cfg.Auth.Secret), opts...)
	s.rt.Metrics.AuthDone(res.Challenged, err)

	ev := connectors.AuthEvent{
		SessionID:  s.Engine.ID(),
		Address:    res.PeerAddress,
		Challenged: res.Challenged,
		Timestamp:  time.Now(),
	}
	if err != nil {
		ev.Err = err.Error()
		s.rt.Bus.Publish(connectors.TopicAuth, ev)
		return device.AuthResult{}, err
	}
	s.rt.Bus.Publish(connectors.TopicAuth, ev)

	s.mu.Lock()
	s.authenticated = true
	s.result = res
	s.mu.Unlock()

	addr := res.PeerAddress
	if addr == "" {
		addr = bluetoothAddressOf(s.Transport)
	}
	if addr != "" {
		s.rt.setDeviceAddress(addr)
		s.rt.rememberDevice(deviceRecord(addr, s.cfg, res, s.Engine.ID()))
	}

	return res, nil
}

// Result is the identity from the last successful Authenticate.
func (s *Session) Result() (device.AuthResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.authenticated
}

// Close says goodbye to an authenticated device and closes the transport.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	polite := s.authenticated
	s.mu.Unlock()

	if polite {
		select {
		case <-s.Engine.Lost():
		default:
			byeCtx, cancel := context.WithTimeout(ctx, disconnectGrace)
			if err := s.Device.Disconnect(byeCtx); err != nil && !isConnectionLost(err) {
				slog.Debug("disconnect request failed", "session_id", s.Engine.ID(), "error", err)
			}
			cancel()
		}
	}

	err := s.Transport.Close()
	s.rt.trackSession(s, false)
	if err != nil {
		return fmt.Errorf("close %s: %w", s.Transport.Name(), err)
	}
	return nil
}

// RememberSeen records a device found by a scan without touching its
// authentication data.
func (r *Runtime) RememberSeen(address, model, name string) {
	r.rememberDevice(persistence.Device{
		Address:    address,
		Model:      model,
		Name:       name,
		LastSeenAt: time.Now(),
	})
}

func (r *Runtime) rememberDevice(d persistence.Device) {
	if r.WriterQueue == nil || r.DeviceRepo == nil {
		return
	}
	repo := r.DeviceRepo
	r.WriterQueue.Enqueue("upsert_device", func(writeCtx context.Context) error {
		return repo.Upsert(writeCtx, d)
	})
}

func deviceRecord(addr string, cfg config.ConnectionConfig, res device.AuthResult, sessionID string) persistence.Device {
	now := time.Now()
	d := persistence.Device{
		Address:       addr,
		LastSeenAt:    now,
		LastAuthAt:    now,
		Challenged:    res.Challenged,
		LastSessionID: sessionID,
	}
	if cfg.Connector == config.ConnectorBluetooth {
		d.Model = string(cfg.DeviceModel)
	}
	if res.Info.Known {
		d.Name = res.Info.Name
		d.MfgID = res.Info.MfgID
		d.HardVersion = res.Info.HardVersion
		d.SoftVersion = res.Info.SoftVersion
		d.BLVersion = res.Info.BLVersion
		d.RescueVersion = res.Info.RescueVersion
	}
	return d
}

// bluetoothAddressOf returns the hardware address of a bluetooth transport
// and "" for bridges that do not know it.
func bluetoothAddressOf(tr transport.Transport) string {
	if bt, ok := tr.(*transport.BluetoothTransport); ok {
		return bt.Address()
	}
	return ""
}

func isConnectionLost(err error) bool {
	var lost *session.ConnectionLostError
	return errors.As(err, &lost)
}
