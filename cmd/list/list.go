// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package list implements the "preclear-ng list" subcommand: candidate
// whole-disk listing, restricted to non-partition block devices, as a
// plain table rather than a full system inventory.
package list

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/cmdexec"
	"github.com/stratastor/preclear-ng/internal/config"
)

type lsblkRow struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Type       string `json:"type"`
	Model      string `json:"model"`
	Serial     string `json:"serial"`
	Size       string `json:"size"`
	Mountpoint *string `json:"mountpoint"`
}

type lsblkOutput struct {
	BlockDevices []lsblkRow `json:"blockdevices"`
}

// NewListCmd builds the "list" subcommand.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List candidate whole-disk block devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig("")
	l, err := logger.NewTag(logger.Config{LogLevel: cfg.Logger.LogLevel}, "list")
	if err != nil {
		return err
	}

	out, err := cmdexec.Run(ctx, l, 0, cfg.Tools.Lsblk, "-J", "-b", "-d", "-p", "-o", "NAME,PATH,TYPE,MODEL,SERIAL,SIZE,MOUNTPOINT")
	if err != nil {
		return fmt.Errorf("listing candidate disks: %w", err)
	}

	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return fmt.Errorf("parsing lsblk output: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tMODEL\tSERIAL\tSIZE (bytes)\tMOUNTED")
	for _, row := range parsed.BlockDevices {
		if row.Type != "disk" {
			continue
		}
		mounted := "no"
		if row.Mountpoint != nil && *row.Mountpoint != "" {
			mounted = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Path, row.Model, row.Serial, row.Size, mounted)
	}
	return tw.Flush()
}
