package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"wpplink/internal/app"
	"wpplink/internal/transport"
)

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports a bridge may be attached to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := transport.ListSerialPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "no serial ports found")
				return nil
			}
			for _, p := range ports {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func configCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the effective configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the config after applying flags; the secret is masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := opts.runtime(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = rt.Close() }()

				cfg := rt.CurrentConfig()
				if cfg.Auth.Secret != "" {
					cfg.Auth.Secret = "********"
				}
				raw, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("encode config: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", rt.Paths.ConfigFile, raw)
				return nil
			},
		},
		&cobra.Command{
			Use:   "save",
			Short: "Persist the config after applying flags",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := opts.runtime(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = rt.Close() }()

				if err := rt.SaveConfig(rt.CurrentConfig()); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", rt.Paths.ConfigFile)
				return nil
			},
		},
	)
	return cmd
}

func versionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.BuildVersion())
				return
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), app.BuildSummary())
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	return cmd
}
