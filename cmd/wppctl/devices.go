package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wpplink/internal/app"
	"wpplink/internal/persistence"
)

func devicesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect the devices remembered in the local database",
	}
	cmd.AddCommand(
		devicesListCmd(opts),
		devicesForgetCmd(opts),
		devicesClearCmd(opts),
		devicesHistoryCmd(opts),
	)
	return cmd
}

// withStorage runs fn against a runtime whose database is open.
func (o *globalOptions) withStorage(cmd *cobra.Command, fn func(rt *app.Runtime) error) (err error) {
	rt, err := o.runtime(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if rt.DB == nil {
		return app.ErrStorageDisabled
	}
	return fn(rt)
}

func devicesListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List remembered devices, most recently seen first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStorage(cmd, func(rt *app.Runtime) error {
				devices, err := rt.DeviceRepo.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ADDRESS\tMODEL\tNAME\tFIRMWARE\tLAST SEEN\tLAST AUTH")
				for _, d := range devices {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						d.Address, orDash(d.Model), orDash(d.Name), d.SoftVersion, formatTime(d.LastSeenAt), formatTime(d.LastAuthAt))
				}
				return tw.Flush()
			})
		},
	}
}

func devicesForgetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget ADDRESS",
		Short: "Remove one remembered device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStorage(cmd, func(rt *app.Runtime) error {
				err := rt.DeviceRepo.Delete(cmd.Context(), args[0])
				if errors.Is(err, persistence.ErrDeviceNotFound) {
					return fmt.Errorf("%s is not remembered", persistence.NormalizeAddress(args[0]))
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", persistence.NormalizeAddress(args[0]))
				return nil
			})
		},
	}
}

func devicesClearCmd(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every remembered device and the transaction history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the database without --yes")
			}
			return opts.withStorage(cmd, func(rt *app.Runtime) error {
				cleared, err := rt.ClearDatabase(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d devices and %d transactions\n", cleared.Devices, cleared.Transactions)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all stored data")
	return cmd
}

func devicesHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStorage(cmd, func(rt *app.Runtime) error {
				recs, err := rt.TransactionRepo.ListRecent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "AT\tDEVICE\tCOMMAND\tFRAMES\tDURATION\tERROR")
				for _, r := range recs {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						formatTime(r.At), orDash(r.DeviceAddress), r.Command, r.Frames, r.Duration, orDash(r.Err))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", app.RecentTransactionsLoad, "number of transactions to show")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
