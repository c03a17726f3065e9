package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wpplink/internal/app"
	"wpplink/internal/device"
)

func flashReadCmd(opts *globalOptions) *cobra.Command {
	var (
		region  string
		addrRaw string
		lenRaw  string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "flash-read",
		Short: "Read a region of the device SPI flash",
		Long: `Read SPI flash either by region name (` + regionNames() + `)
or by --addr and --len. Without --out the bytes are printed as a hex dump.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveFlashRegion(region, addrRaw, lenRaw)
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *app.Session) error {
				data, err := s.Device.ReadFlash(ctx, target.Addr, target.Length)
				if errors.Is(err, device.ErrShortRead) {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: got %d of %d bytes\n", target, len(data), target.Length)
				} else if err != nil {
					return err
				}
				if out == "" {
					dumper := hex.Dumper(cmd.OutOrStdout())
					_, _ = dumper.Write(data)
					return dumper.Close()
				}
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes written to %s\n", target, len(data), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "named flash region")
	cmd.Flags().StringVar(&addrRaw, "addr", "", "start address, decimal or 0x-prefixed hex")
	cmd.Flags().StringVar(&lenRaw, "len", "", "length in bytes, decimal or 0x-prefixed hex")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write raw bytes to this file")

	return cmd
}

func resolveFlashRegion(region, addrRaw, lenRaw string) (device.FlashRegion, error) {
	region = strings.TrimSpace(region)
	if region != "" {
		if addrRaw != "" || lenRaw != "" {
			return device.FlashRegion{}, errors.New("use either --region or --addr/--len")
		}
		r, ok := device.LookupFlashRegion(region)
		if !ok {
			return device.FlashRegion{}, fmt.Errorf("unknown flash region %q (known: %s)", region, regionNames())
		}
		return r, nil
	}
	if addrRaw == "" || lenRaw == "" {
		return device.FlashRegion{}, errors.New("--region or both --addr and --len are required")
	}
	addr, err := parseUint32(addrRaw)
	if err != nil {
		return device.FlashRegion{}, fmt.Errorf("--addr: %w", err)
	}
	length, err := parseUint32(lenRaw)
	if err != nil {
		return device.FlashRegion{}, fmt.Errorf("--len: %w", err)
	}
	if length == 0 {
		return device.FlashRegion{}, errors.New("--len must be positive")
	}
	return device.FlashRegion{Name: "flash", Addr: addr, Length: length}, nil
}

// parseUint32 accepts decimal, 0x hex and 0o/0b forms.
func parseUint32(raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return uint32(v), nil
}

func regionNames() string {
	names := make([]string, 0, len(device.FlashRegions))
	for _, r := range device.FlashRegions {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}
