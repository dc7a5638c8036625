// Package policy loads sync policy from an optional YAML file. The
// surrounding shell owns configuration; the engine only ever sees the
// resolved syncer.Policy value.
package policy

// File is the YAML shape of a policy file. Pointer fields distinguish
// "absent" from an explicit false so file values only override what
// they actually set.
type File struct {
	Ignore         []string `yaml:"ignore"`
	AllowDelete    *bool    `yaml:"allow_delete"`
	PruneEmptyDirs *bool    `yaml:"prune_empty_dirs"`
	ChunkThreshold string   `yaml:"chunk_threshold"`  // e.g. "128MiB"
	ModTimeWindow  string   `yaml:"mod_time_window"`  // e.g. "2s"
	Concurrency    int      `yaml:"concurrency"`
	BandwidthLimit string   `yaml:"bandwidth_limit"` // bytes per second, e.g. "10MiB"
}
