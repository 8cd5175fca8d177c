package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"svagent/internal/archive"
	"svagent/internal/config"
)

func newArchiveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <run-id> [file]",
		Short: "List the archived files of a passing run, or print one of them",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.envFile)
			if err != nil {
				return err
			}
			store, err := newArchive(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("archive is disabled; set SV_AGENT_ARCHIVE_S3_ENDPOINT")
			}
			return showArchive(cmd.Context(), cmd.OutOrStdout(), store, args)
		},
	}
}

// showArchive lists the files stored for args[0], or writes the content of
// args[1] when a file name is given.
func showArchive(ctx context.Context, w io.Writer, store archive.Store, args []string) error {
	runID := args[0]
	if len(args) == 2 {
		raw, err := store.Get(ctx, runID, args[1])
		if err != nil {
			return fmt.Errorf("get %s/%s: %w", runID, args[1], err)
		}
		_, err = w.Write(raw)
		return err
	}
	names, err := store.List(ctx, runID)
	if err != nil {
		return fmt.Errorf("list %s: %w", runID, err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no archived files for run %s", runID)
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}
