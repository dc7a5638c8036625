// Package scanner walks a directory root and produces a normalized
// inventory of its files and directories for classification.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Entry describes one path found under a scanned root.
type Entry struct {
	RelPath string // slash-separated, relative to the root
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Issue records a subtree that could not be read. A scan with issues is
// still usable; the affected subtree is simply absent from the inventory.
type Issue struct {
	Path string
	Err  error
}

// Inventory is the result of scanning one root.
type Inventory struct {
	Root    string
	Entries map[string]Entry // keyed by Entry.RelPath
	Order   []string         // walk insertion order
	Issues  []Issue
}

// Dirs returns the relative paths of all directory entries.
func (inv *Inventory) Dirs() []string {
	var dirs []string
	for _, rel := range inv.Order {
		if inv.Entries[rel].IsDir {
			dirs = append(dirs, rel)
		}
	}
	return dirs
}

// ScanError reports a root that could not be scanned at all.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Scanner walks roots with ignore pattern support.
type Scanner struct {
	ignores []string

	// readDir is a seam for fault injection in tests.
	readDir func(string) ([]os.DirEntry, error)
}

// New creates a scanner. Ignore patterns use doublestar globs matched
// against slash-separated relative paths; a trailing slash marks a
// directory pattern whose whole subtree is excluded.
func New(ignores []string) *Scanner {
	return &Scanner{
		ignores: ignores,
		readDir: os.ReadDir,
	}
}

// Scan walks root and returns its inventory. Symbolic links are not
// followed and are omitted from the inventory, so aliased directory
// structures cannot introduce cycles. An unreadable subdirectory is
// recorded as an Issue and scanning continues with its siblings; only an
// unusable root fails the scan. The walk is iterative with an explicit
// visited set, so depth is bounded by memory rather than stack.
func (s *Scanner) Scan(ctx context.Context, root string) (*Inventory, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &ScanError{Path: root, Err: err}
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, &ScanError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Path: root, Err: fmt.Errorf("not a directory")}
	}

	inv := &Inventory{
		Root:    absRoot,
		Entries: make(map[string]Entry),
	}

	visited := make(map[string]bool)
	pending := []string{""} // relative directory paths, "" is the root

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		relDir := pending[0]
		pending = pending[1:]
		absDir := filepath.Join(absRoot, filepath.FromSlash(relDir))

		canonical, err := filepath.EvalSymlinks(absDir)
		if err != nil {
			inv.Issues = append(inv.Issues, Issue{Path: relDir, Err: err})
			continue
		}
		if visited[canonical] {
			continue
		}
		visited[canonical] = true

		entries, err := s.readDir(absDir)
		if err != nil {
			inv.Issues = append(inv.Issues, Issue{Path: relDir, Err: err})
			continue
		}

		for _, ent := range entries {
			rel := path.Join(relDir, ent.Name())

			fi, err := ent.Info()
			if err != nil {
				inv.Issues = append(inv.Issues, Issue{Path: rel, Err: err})
				continue
			}

			switch {
			case fi.Mode()&os.ModeSymlink != 0:
				// Opaque leaf, never descended.
				continue
			case fi.IsDir():
				if IsIgnored(rel, true, s.ignores) {
					continue
				}
				inv.Entries[rel] = Entry{RelPath: rel, ModTime: fi.ModTime(), IsDir: true}
				inv.Order = append(inv.Order, rel)
				pending = append(pending, rel)
			case fi.Mode().IsRegular():
				if IsIgnored(rel, false, s.ignores) {
					continue
				}
				inv.Entries[rel] = Entry{RelPath: rel, Size: fi.Size(), ModTime: fi.ModTime()}
				inv.Order = append(inv.Order, rel)
			default:
				// Sockets, devices and the like are not syncable.
				continue
			}
		}
	}

	return inv, nil
}
