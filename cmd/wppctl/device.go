package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wpplink/internal/app"
	"wpplink/internal/device"
)

func probeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Authenticate and print the device identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(_ context.Context, s *app.Session) error {
				res, _ := s.Result()
				printIdentity(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func printIdentity(w io.Writer, res device.AuthResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	trust := "implicit (no challenge)"
	if res.Challenged {
		trust = "challenge answered"
	}
	_, _ = fmt.Fprintf(tw, "address\t%s\n", res.PeerAddress)
	_, _ = fmt.Fprintf(tw, "trust\t%s\n", trust)
	info := res.Info
	if !info.Known {
		_, _ = fmt.Fprintf(tw, "identity\tnot reported\n")
		return
	}
	_, _ = fmt.Fprintf(tw, "name\t%s\n", info.Name)
	_, _ = fmt.Fprintf(tw, "mfg id\t%s\n", info.MfgID)
	_, _ = fmt.Fprintf(tw, "vid:pid\t%04x:%04x\n", info.VID, info.PID)
	_, _ = fmt.Fprintf(tw, "firmware\t%d\n", info.SoftVersion)
	_, _ = fmt.Fprintf(tw, "bootloader\t%d\n", info.BLVersion)
	_, _ = fmt.Fprintf(tw, "hardware\t%d\n", info.HardVersion)
	_, _ = fmt.Fprintf(tw, "rescue\t%d\n", info.RescueVersion)
	_, _ = fmt.Fprintf(tw, "factory state\t%d\n", info.FactoryState)
}

func batteryCmd(opts *globalOptions) *cobra.Command {
	var (
		every time.Duration
		count int
	)
	cmd := &cobra.Command{
		Use:   "battery",
		Short: "Print battery charge, state and voltage",
		Long: `Print battery charge, state and voltage. With --watch the connection stays
open and one line per sample is printed until --count samples were taken or
the command is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if every < 0 {
				return errors.New("--watch must not be negative")
			}
			return opts.withSession(cmd, func(ctx context.Context, s *app.Session) error {
				w := cmd.OutOrStdout()
				if every == 0 {
					st, err := s.Device.BatteryStatus(ctx)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(w, "%d%% state=%d %dmV\n", st.Percent, st.State, st.MilliVolts)
					return nil
				}
				return watchBattery(ctx, s.Device, w, every, count)
			})
		},
	}
	cmd.Flags().DurationVar(&every, "watch", 0, "poll interval, e.g. 1m; 0 prints once")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many samples (0: until interrupted)")

	return cmd
}

type batteryReader interface {
	BatteryStatus(ctx context.Context) (device.BatteryStatus, error)
	BatteryPercent(ctx context.Context) (device.BatteryLevel, error)
}

func watchBattery(ctx context.Context, dev batteryReader, w io.Writer, every time.Duration, count int) error {
	_, _ = fmt.Fprintln(w, "time,percent,state,mv")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for n := 0; count <= 0 || n < count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		st, err := dev.BatteryStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		mv := st.MilliVolts
		if mv == 0 {
			// older firmware only reports voltage with the percent command
			if lvl, err := dev.BatteryPercent(ctx); err == nil && lvl.HasVoltage {
				mv = uint32(lvl.MilliVolts)
			}
		}
		_, _ = fmt.Fprintf(w, "%s,%d,%d,%d\n", time.Now().UTC().Format(time.RFC3339), st.Percent, st.State, mv)
	}
	return nil
}

func userCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "user",
		Short: "Print the user profile stored on the tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *app.Session) error {
				u, err := s.Device.TrackerUser(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintf(tw, "uid\t%d\n", u.UID)
				_, _ = fmt.Fprintf(tw, "first name\t%s\n", u.FirstName)
				_, _ = fmt.Fprintf(tw, "birth\t%s\n", u.Birth.Format("2006-01-02"))
				_, _ = fmt.Fprintf(tw, "height\t%d cm\n", u.HeightCm)
				_, _ = fmt.Fprintf(tw, "weight\t%.1f kg\n", float64(u.WeightGrams)/1000)
				_, _ = fmt.Fprintf(tw, "gender\t%d\n", u.Gender)
				return tw.Flush()
			})
		},
	}
}

func swimCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "swim on|off",
		Short:     "Enable or disable swim tracking",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *app.Session) error {
				if err := s.Device.SetSwimTracking(ctx, enabled); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "swim tracking %s\n", args[0])
				return nil
			})
		},
	}
}

func parseOnOff(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "enable":
		return true, nil
	case "off", "false", "0", "disable":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", raw)
	}
}
