package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"wpplink/internal/app"
	"wpplink/internal/device"
	"wpplink/internal/wpp"
)

func debugDumpCmd(opts *globalOptions) *cobra.Command {
	var (
		maskRaw string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "debug-dump",
		Short: "Collect the device debug dumps",
		Long: `Enable the debug mask, pull every dump the device offers and write each one
to its own file in --out-dir. The default debug mask is restored afterwards,
also when the dump fails half way.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mask := wpp.DebugMask(0)
			if strings.TrimSpace(maskRaw) != "" {
				m, err := wpp.ParseDebugMask(maskRaw)
				if err != nil {
					return err
				}
				mask = m
			}
			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			return opts.withSession(cmd, func(ctx context.Context, s *app.Session) error {
				written := 0
				rounds, err := s.Device.DebugDump(ctx, mask, func(d device.Dump) error {
					path := filepath.Join(outDir, dumpFileName(d, written))
					if err := os.WriteFile(path, d.Data, 0o600); err != nil {
						return fmt.Errorf("write dump: %w", err)
					}
					written++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%s\n", d.Type, len(d.Data), path)
					return nil
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d dumps in %d rounds\n", written, rounds)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&maskRaw, "mask", "", "debug mask: number or names joined by '|' (default dblib_dump|dblib_force_dump_all|wlog)")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "dumps", "directory for the dump files")

	return cmd
}

func dumpFileName(d device.Dump, seq int) string {
	return fmt.Sprintf("%03d_%s_%08x.bin", seq, d.Type, d.Anchor)
}
