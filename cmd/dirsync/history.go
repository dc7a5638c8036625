package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/eapp-tools/dirsync/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if dbPath == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("getting home directory: %w", err)
				}
				dbPath = filepath.Join(home, ".dirsync", "history.db")
			}

			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No recorded runs.")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Started", "Source", "Target", "Created", "Replaced", "Deleted", "Copied", "Failures", "Outcome"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)

			for _, r := range runs {
				outcome := "completed"
				if r.Cancelled {
					outcome = "cancelled"
				}
				table.Append([]string{
					r.StartedAt.Local().Format(time.DateTime),
					r.Source,
					r.Target,
					strconv.Itoa(r.Created),
					strconv.Itoa(r.Replaced),
					strconv.Itoa(r.Deleted),
					humanize.IBytes(uint64(r.BytesCopied)),
					strconv.Itoa(r.Failures),
					outcome,
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "History database path (default ~/.dirsync/history.db)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}
