package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wpplink/internal/app"
	"wpplink/internal/config"
)

// globalOptions are the flags shared by every subcommand. Only flags the
// user actually set override the config file.
type globalOptions struct {
	configFile  string
	connector   string
	address     string
	adapter     string
	model       string
	port        string
	baud        int
	host        string
	secret      string
	logLevel    string
	logFormat   string
	metricsFile string
	timeout     time.Duration
	trace       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "wppctl",
		Short: "Talk to Withings watches and scales over the WPP protocol",
		Long: `wppctl connects to a Withings ScanWatch or Body+ scale over Bluetooth LE,
a serial bridge or a TCP bridge, authenticates with the shared secret and
runs one device command per invocation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default: user config dir)")
	pf.StringVar(&opts.connector, "connector", "", "connector: bluetooth, serial or ip")
	pf.StringVar(&opts.address, "address", "", "bluetooth address; empty scans for --model")
	pf.StringVar(&opts.adapter, "adapter", "", "bluetooth adapter id, e.g. hci1")
	pf.StringVar(&opts.model, "model", "", "device model: scanwatch, scanwatch2 or body_plus")
	pf.StringVar(&opts.port, "port", "", "serial port of a bridge")
	pf.IntVar(&opts.baud, "baud", 0, "serial baud rate")
	pf.StringVar(&opts.host, "host", "", "tcp bridge host[:port]")
	pf.StringVar(&opts.secret, "secret", "", "shared secret answering device challenges")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log record format: text or json")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.DurationVar(&opts.timeout, "timeout", 0, "per-transaction timeout, e.g. 10s")
	pf.BoolVar(&opts.trace, "trace", false, "print raw frames and connection events to stderr")

	rootCmd.AddCommand(
		scanCmd(opts),
		probeCmd(opts),
		batteryCmd(opts),
		userCmd(opts),
		swimCmd(opts),
		flashReadCmd(opts),
		debugDumpCmd(opts),
		devicesCmd(opts),
		portsCmd(),
		configCmd(opts),
		versionCmd(),
	)

	return rootCmd
}

// apply copies the flags the user set onto cfg.
func (o *globalOptions) apply(cmd *cobra.Command, cfg *config.AppConfig) {
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}
	if changed("connector") {
		cfg.Connection.Connector = config.ConnectorType(strings.ToLower(strings.TrimSpace(o.connector)))
	}
	if changed("address") {
		cfg.Connection.BluetoothAddress = strings.TrimSpace(o.address)
	}
	if changed("adapter") {
		cfg.Connection.BluetoothAdapter = strings.TrimSpace(o.adapter)
	}
	if changed("model") {
		cfg.Connection.DeviceModel = config.DeviceModel(o.model)
	}
	if changed("port") {
		cfg.Connection.SerialPort = strings.TrimSpace(o.port)
	}
	if changed("baud") {
		cfg.Connection.SerialBaud = o.baud
	}
	if changed("host") {
		cfg.Connection.Host = strings.TrimSpace(o.host)
	}
	if changed("secret") {
		cfg.Auth.Secret = o.secret
	}
	if changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = strings.ToLower(strings.TrimSpace(o.logFormat))
	}
	if changed("metrics-file") {
		cfg.Metrics.TextfilePath = strings.TrimSpace(o.metricsFile)
	}
	if changed("timeout") {
		cfg.Session.TransactionTimeoutSec = int((o.timeout + time.Second - 1) / time.Second)
	}
}

func (o *globalOptions) runtime(cmd *cobra.Command) (*app.Runtime, error) {
	rt, err := app.Initialize(cmd.Context(), app.Options{
		ConfigFile: o.configFile,
		Override:   func(cfg *config.AppConfig) { o.apply(cmd, cfg) },
	})
	if err != nil {
		return nil, err
	}
	if o.trace {
		startTrace(rt.Bus, cmd.ErrOrStderr())
	}
	return rt, nil
}

// withSession opens the runtime, connects, authenticates and runs fn. The
// session and runtime are closed afterwards in that order.
func (o *globalOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *app.Session) error) (err error) {
	rt, err := o.runtime(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx := cmd.Context()
	s, err := rt.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := s.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	return fn(ctx, s)
}
