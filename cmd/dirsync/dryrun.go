package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/eapp-tools/dirsync/pkg/planner"
	"github.com/eapp-tools/dirsync/pkg/syncer"
)

func dryRun(ctx context.Context, cfg *syncConfig, pol syncer.Policy) error {
	plan, _, _, err := syncer.Plan(ctx, cfg.source, cfg.target, pol)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Action", "Path", "Size", "Reason"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, act := range plan.Actions {
		if cfg.onlyChanges && act.Kind == planner.ActionKeep {
			continue
		}
		size := ""
		if act.Transfers() {
			size = humanize.IBytes(uint64(act.Size))
		}
		path := act.Path
		if act.IsDir {
			path += "/"
		}
		table.Append([]string{string(act.Kind), path, size, act.Reason})
	}
	table.Render()

	fmt.Printf("\n%d creates, %d replaces, %d deletes, %d unchanged; %s to copy\n",
		plan.Creates, plan.Replaces, plan.Deletes, plan.Keeps,
		humanize.IBytes(uint64(plan.TotalBytes)))
	return nil
}
