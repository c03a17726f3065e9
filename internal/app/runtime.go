package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wpplink/internal/bus"
	"wpplink/internal/config"
	"wpplink/internal/connectors"
	"wpplink/internal/logging"
	"wpplink/internal/metrics"
	"wpplink/internal/persistence"
	"wpplink/internal/wpp"
)

// ErrStorageDisabled is returned by device history helpers when the config
// turned the database off.
var ErrStorageDisabled = errors.New("device storage is disabled (storage.remember_devices=false)")

// Options tune Initialize. The zero value loads the config from the user
// config dir.
type Options struct {
	// ConfigFile overrides the config location; the db and log live next
	// to it.
	ConfigFile string
	// Override is applied after loading, before defaults are filled in.
	Override func(cfg *config.AppConfig)
}

// Runtime owns the process-wide pieces: config, logging, bus, metrics and
// the device database. Connections are made per command via Connect.
type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	Registry   *wpp.Registry
	Metrics    *metrics.Collector

	DB              *sql.DB
	DeviceRepo      *persistence.DeviceRepo
	TransactionRepo *persistence.TransactionRepo
	WriterQueue     *persistence.WriterQueue

	// deviceAddress tags transaction history rows with the device of the
	// current session.
	deviceAddress string
	sessions      map[*Session]struct{}
	listeners     []<-chan struct{}

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnectionStatus
	connStatusKnown bool

	closeOnce sync.Once
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	if paths, err = paths.WithConfigFile(opts.ConfigFile); err != nil {
		return nil, err
	}

	return InitializeWithPaths(parent, paths, opts.Override)
}

func InitializeWithPaths(parent context.Context, paths Paths, override func(*config.AppConfig)) (*Runtime, error) {
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(&cfg)
	}
	cfg.FillMissingDefaults()

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Debug("starting wpplink runtime", "version", BuildVersion(), "build_date", BuildDateYMD(), "config", paths.ConfigFile)

	rt.Registry = wpp.DefaultRegistry()
	rt.Metrics = metrics.New(rt.Registry)

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	connSub := b.Subscribe(connectors.TopicConnStatus)
	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		bus.Listen(context.Background(), connSub, rt.captureConnStatus)
	}()
	rt.listeners = append(rt.listeners, statusDone)

	if cfg.Storage.RememberDevices {
		if err := rt.openStorage(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

func (r *Runtime) openStorage(ctx context.Context) error {
	db, err := persistence.Open(ctx, r.Paths.DBFile)
	if err != nil {
		return err
	}
	r.DB = db
	r.DeviceRepo = persistence.NewDeviceRepo(db)
	r.TransactionRepo = persistence.NewTransactionRepo(db)

	writerQueue := persistence.NewWriterQueue(r.LogManager.Logger("persistence"), writerQueueCapacity)
	// the writer outlives Ctx so Close can still drain it
	writerQueue.Start(context.WithoutCancel(ctx))
	r.WriterQueue = writerQueue

	cutoff := time.Now().Add(-TransactionRetention)
	repo := r.TransactionRepo
	writerQueue.Enqueue("prune_transactions", func(writeCtx context.Context) error {
		n, err := repo.PruneBefore(writeCtx, cutoff)
		if err == nil && n > 0 {
			slog.Debug("pruned transaction history", "rows", n)
		}
		return err
	})
	r.listeners = append(r.listeners, StartHistoryProjection(r.Bus, writerQueue, repo, r.currentDeviceAddress))

	return nil
}

func (r *Runtime) captureConnStatus(raw any) {
	status, ok := raw.(connectors.ConnectionStatus)
	if !ok {
		return
	}
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnectionStatus, bool) {
	r.connStatusMu.RLock()
	status := r.connStatus
	known := r.connStatusKnown
	r.connStatusMu.RUnlock()
	return status, known
}

func (r *Runtime) setDeviceAddress(addr string) {
	r.mu.Lock()
	r.deviceAddress = strings.TrimSpace(addr)
	r.mu.Unlock()
}

func (r *Runtime) trackSession(s *Session, open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !open {
		delete(r.sessions, s)
		return
	}
	if r.sessions == nil {
		r.sessions = make(map[*Session]struct{})
	}
	r.sessions[s] = struct{}{}
}

func (r *Runtime) openSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Runtime) currentDeviceAddress() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deviceAddress
}

// SaveConfig validates and persists cfg, then applies its logging part.
func (r *Runtime) SaveConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		r.mu.Unlock()
		return err
	}
	r.Config = cfg
	r.mu.Unlock()

	return r.LogManager.Configure(cfg.Logging, r.Paths.LogFile)
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Config
}

// Flush waits for queued database writes. The queue stays usable.
func (r *Runtime) Flush(ctx context.Context) error {
	if r.WriterQueue == nil {
		return nil
	}
	done := make(chan struct{})
	r.WriterQueue.Enqueue("flush", func(context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearDatabase waits for queued writes and then removes every remembered
// device and the transaction history.
func (r *Runtime) ClearDatabase(ctx context.Context) (persistence.Cleared, error) {
	if r.DB == nil {
		return persistence.Cleared{}, ErrStorageDisabled
	}
	if err := r.Flush(ctx); err != nil {
		return persistence.Cleared{}, err
	}
	cleared, err := persistence.ClearDatabase(ctx, r.DB)
	if err != nil {
		return persistence.Cleared{}, err
	}
	slog.Info("database cleared", "devices", cleared.Devices, "transactions", cleared.Transactions)

	return cleared, nil
}

// Close ends open sessions, drains pending writes, exports metrics when
// configured and releases everything Initialize opened.
func (r *Runtime) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		for _, s := range r.openSessions() {
			_ = s.Close(context.Background())
		}
		// bus listeners stop once the bus closed their subscriptions
		if r.Bus != nil {
			r.Bus.Close()
		}
		for _, done := range r.listeners {
			<-done
		}
		if r.cancel != nil {
			r.cancel()
		}
		if r.WriterQueue != nil {
			r.WriterQueue.Close()
		}
		if path := strings.TrimSpace(r.CurrentConfig().Metrics.TextfilePath); path != "" && r.Metrics != nil {
			if err := r.Metrics.WriteTextfile(path); err != nil {
				slog.Warn("export metrics", "path", path, "error", err)
				closeErr = errors.Join(closeErr, err)
			}
		}
		if r.DB != nil {
			if err := r.DB.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close database: %w", err))
			}
		}
		if r.LogManager != nil {
			_ = r.LogManager.Close()
		}
	})
	return closeErr
}
