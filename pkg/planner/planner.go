// Package planner classifies two directory inventories into an ordered
// plan of create, replace, delete and keep actions. Classification is a
// pure function of the inventories: it never touches the filesystem.
package planner

import (
	"sort"
	"strings"
	"time"

	"github.com/eapp-tools/dirsync/pkg/scanner"
)

// Classify compares a source and target inventory and produces the sync
// plan. Both inventories are expected to have been built with the same
// ignore patterns; classification does not re-filter.
func Classify(source, target *scanner.Inventory, opts Options) (*Plan, error) {
	window := opts.ModTimeWindow
	if window <= 0 {
		window = DefaultModTimeWindow
	}

	// Type changes are replaced through delete: the target's version
	// (and, for a directory, everything beneath it) is deleted before
	// the source's version is created. These deletions are forced even
	// when AllowDelete is off, since the create cannot proceed
	// otherwise.
	forced := make(map[string]bool)
	for path, src := range source.Entries {
		dst, ok := target.Entries[path]
		if !ok || src.IsDir == dst.IsDir {
			continue
		}
		forced[path] = true
		if dst.IsDir {
			prefix := path + "/"
			for dstPath := range target.Entries {
				if strings.HasPrefix(dstPath, prefix) {
					forced[dstPath] = true
				}
			}
		}
	}

	var preDeletes, main, tailDeletes []Action

	for path := range forced {
		dst := target.Entries[path]
		preDeletes = append(preDeletes, Action{
			Kind:   ActionDelete,
			Path:   path,
			IsDir:  dst.IsDir,
			Reason: "type changed",
		})
	}

	for path, src := range source.Entries {
		dst, exists := target.Entries[path]

		switch {
		case !exists || forced[path]:
			reason := "missing in target"
			if forced[path] {
				reason = "type changed"
			}
			main = append(main, Action{
				Kind:   ActionCreate,
				Path:   path,
				Size:   fileSize(src),
				IsDir:  src.IsDir,
				Reason: reason,
			})

		case src.IsDir:
			// Directories are compared for existence only.
			main = append(main, Action{Kind: ActionKeep, Path: path, IsDir: true, Reason: "unchanged"})

		case src.Size != dst.Size:
			main = append(main, Action{Kind: ActionReplace, Path: path, Size: src.Size, Reason: "size differs"})

		case absDiff(src.ModTime.Sub(dst.ModTime)) > window:
			main = append(main, Action{Kind: ActionReplace, Path: path, Size: src.Size, Reason: "modified time differs"})

		default:
			main = append(main, Action{Kind: ActionKeep, Path: path, Reason: "unchanged"})
		}
	}

	if opts.AllowDelete {
		for path, dst := range target.Entries {
			if _, exists := source.Entries[path]; exists {
				continue
			}
			if forced[path] {
				continue
			}
			tailDeletes = append(tailDeletes, Action{
				Kind:   ActionDelete,
				Path:   path,
				IsDir:  dst.IsDir,
				Reason: "missing in source",
			})
		}
	}

	// Deepest first for deletions, shallowest first for creation.
	sort.Slice(preDeletes, func(i, j int) bool { return preDeletes[i].Path > preDeletes[j].Path })
	sort.Slice(main, func(i, j int) bool { return main[i].Path < main[j].Path })
	sort.Slice(tailDeletes, func(i, j int) bool { return tailDeletes[i].Path > tailDeletes[j].Path })

	plan := &Plan{}
	seen := make(map[string]ActionKind)
	for _, block := range [][]Action{preDeletes, main, tailDeletes} {
		for _, act := range block {
			if prev, dup := seen[act.Path]; dup {
				// A path may legally appear twice only as a
				// delete followed by a create (type change).
				if !(prev == ActionDelete && act.Kind == ActionCreate) {
					return nil, &ClassifyError{Path: act.Path, Msg: "duplicate action"}
				}
			}
			seen[act.Path] = act.Kind
			plan.Actions = append(plan.Actions, act)

			switch act.Kind {
			case ActionCreate:
				plan.Creates++
			case ActionReplace:
				plan.Replaces++
			case ActionDelete:
				plan.Deletes++
			case ActionKeep:
				plan.Keeps++
			}
			if act.Transfers() {
				plan.TotalFiles++
				plan.TotalBytes += act.Size
			}
		}
	}

	return plan, nil
}

func fileSize(e scanner.Entry) int64 {
	if e.IsDir {
		return 0
	}
	return e.Size
}

func absDiff(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
