package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/eapp-tools/dirsync/pkg/scanner"
	"github.com/eapp-tools/dirsync/pkg/syncer"
)

// Load reads a policy file and applies it over the defaults.
func Load(path string) (syncer.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return syncer.Policy{}, fmt.Errorf("reading policy %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return syncer.Policy{}, fmt.Errorf("parsing policy %s: %w", path, err)
	}

	pol, err := Resolve(f)
	if err != nil {
		return syncer.Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return pol, nil
}

// Resolve validates a policy file and merges it over DefaultPolicy.
func Resolve(f File) (syncer.Policy, error) {
	pol := syncer.DefaultPolicy()

	if err := scanner.ValidatePatterns(f.Ignore); err != nil {
		return syncer.Policy{}, err
	}
	pol.IgnorePatterns = f.Ignore

	if f.AllowDelete != nil {
		pol.AllowDelete = *f.AllowDelete
	}
	if f.PruneEmptyDirs != nil {
		pol.PruneEmptyDirs = *f.PruneEmptyDirs
	}
	if f.ChunkThreshold != "" {
		n, err := humanize.ParseBytes(f.ChunkThreshold)
		if err != nil {
			return syncer.Policy{}, fmt.Errorf("chunk_threshold: %w", err)
		}
		pol.ChunkThreshold = int64(n)
	}
	if f.ModTimeWindow != "" {
		d, err := time.ParseDuration(f.ModTimeWindow)
		if err != nil {
			return syncer.Policy{}, fmt.Errorf("mod_time_window: %w", err)
		}
		if d < 0 {
			return syncer.Policy{}, fmt.Errorf("mod_time_window: must not be negative")
		}
		pol.ModTimeWindow = d
	}
	if f.Concurrency < 0 {
		return syncer.Policy{}, fmt.Errorf("concurrency: must not be negative")
	}
	if f.Concurrency > 0 {
		pol.Concurrency = f.Concurrency
	}
	if f.BandwidthLimit != "" {
		n, err := humanize.ParseBytes(f.BandwidthLimit)
		if err != nil {
			return syncer.Policy{}, fmt.Errorf("bandwidth_limit: %w", err)
		}
		pol.BandwidthLimit = int64(n)
	}

	return pol, nil
}
