package config

import "runtime"

// ScanConfig controls artifact discovery and go/ast parsing.
type ScanConfig struct {
	// FastWorkers is accepted from config but read by nothing; discovery
	// concurrency comes from DeepWorkers.
	FastWorkers int `yaml:"fast_workers" json:"fast_workers,omitempty"`
	// DeepWorkers caps concurrent go/ast parse workers.
	DeepWorkers int `yaml:"deep_workers" json:"deep_workers,omitempty"`
	// IgnorePatterns skips matching paths/dirs (relative to workspace),
	// in addition to whatever .sunwellignore contributes.
	IgnorePatterns []string `yaml:"ignore_patterns" json:"ignore_patterns,omitempty"`
	// MaxFastASTBytes skips parsing files larger than this.
	MaxFastASTBytes int64 `yaml:"max_fast_ast_bytes" json:"max_fast_ast_bytes,omitempty"`
}

// DefaultScanConfig returns defaults for artifact discovery.
func DefaultScanConfig() ScanConfig {
	fast := runtime.NumCPU()
	if fast > 20 {
		fast = 20
	}
	if fast < 4 {
		fast = 4
	}
	deep := runtime.NumCPU()
	if deep > 8 {
		deep = 8
	}
	if deep < 2 {
		deep = 2
	}
	return ScanConfig{
		FastWorkers: fast,
		DeepWorkers: deep,
		IgnorePatterns: []string{
			".git",
			".health",
			"node_modules",
			"vendor",
			"dist",
			"build",
			".next",
			"target",
			"bin",
			"obj",
			".terraform",
			".venv",
			".cache",
		},
		MaxFastASTBytes: 2 * 1024 * 1024,
	}
}
