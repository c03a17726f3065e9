package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wpplink/internal/bluetoothutil"
)

func scanCmd(opts *globalOptions) *cobra.Command {
	var (
		duration time.Duration
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for watches and scales over Bluetooth LE",
		Long: `Scan for devices advertising a known WPP service. Only --model is
searched unless --all is given. Found devices are remembered in the local
database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := rt.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			cfg := rt.CurrentConfig()
			var candidates []bluetoothutil.Model
			if !all {
				m, ok := bluetoothutil.ModelByName(string(cfg.Connection.DeviceModel))
				if !ok {
					return fmt.Errorf("unknown device model: %q", cfg.Connection.DeviceModel)
				}
				candidates = []bluetoothutil.Model{m}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			adapter, err := bluetoothutil.OpenAdapter(cfg.Connection.BluetoothAdapter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ADDRESS\tMODEL\tNAME\tRSSI")
			seen := make(map[string]bool)
			scanErr := bluetoothutil.Scan(ctx, adapter, candidates, func(f bluetoothutil.Found) bool {
				if seen[f.Address] {
					return true
				}
				seen[f.Address] = true
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", f.Address, f.Model.Name, orDash(f.Name), f.RSSI)
				rt.RememberSeen(f.Address, f.Model.Name, f.Name)
				return true
			})
			if err := tw.Flush(); err != nil {
				return err
			}
			if scanErr != nil && !errors.Is(scanErr, context.DeadlineExceeded) {
				return scanErr
			}
			if len(seen) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "no devices found")
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second, "how long to scan")
	cmd.Flags().BoolVar(&all, "all", false, "report every known model, not only --model")
	return cmd
}
