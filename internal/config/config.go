package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"sunwell/internal/logging"
)

// AnalyzerConfig holds thresholds for the static analyzers that feed the
// weakness scorer.
type AnalyzerConfig struct {
	// MinCoveragePercent below which an artifact is flagged for low coverage.
	MinCoveragePercent float64 `yaml:"min_coverage_percent" json:"min_coverage_percent"`
	// MaxCyclomaticComplexity above which an artifact is flagged.
	MaxCyclomaticComplexity int `yaml:"max_cyclomatic_complexity" json:"max_cyclomatic_complexity"`
	// StalenessDays is how long since last commit before an artifact is
	// considered stale relative to its dependents.
	StalenessDays int `yaml:"staleness_days" json:"staleness_days"`
	// CoverageCommand runs a coverage tool and must print a percentage.
	CoverageCommand []string `yaml:"coverage_command" json:"coverage_command,omitempty"`
	// ComplexityCommand runs a cyclomatic complexity tool that prints one
	// gocyclo-format text line per function (complexity, package,
	// function, file:line:col), e.g. gocyclo -over 0 .
	ComplexityCommand []string `yaml:"complexity_command" json:"complexity_command,omitempty"`
	// LintCommand runs the configured linter.
	LintCommand []string `yaml:"lint_command" json:"lint_command,omitempty"`
	// TypesCommand runs the configured type checker.
	TypesCommand []string `yaml:"types_command" json:"types_command,omitempty"`
	// TestCommand runs the project's test suite.
	TestCommand []string `yaml:"test_command" json:"test_command,omitempty"`
}

// DefaultAnalyzerConfig returns sane Go-project defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MinCoveragePercent:      60.0,
		MaxCyclomaticComplexity: 15,
		StalenessDays:           180,
		CoverageCommand:         []string{"go", "test", "-cover", "./..."},
		ComplexityCommand:       []string{"gocyclo", "-over", "0", "."},
		LintCommand:             []string{"go", "vet", "./..."},
		TypesCommand:            []string{"go", "build", "./..."},
		TestCommand:             []string{"go", "test", "./..."},
	}
}

// AgentConfig configures how the regeneration agent is reached.
type AgentConfig struct {
	// Command, when set, invokes a local regeneration agent as a subprocess
	// that reads a RegenerationSpec as JSON on stdin and writes a
	// RegenerationResult as JSON on stdout.
	Command []string `yaml:"command" json:"command,omitempty"`
	// Endpoint, when set instead of Command, is an HTTP endpoint that
	// accepts a RegenerationSpec and returns a RegenerationResult.
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`
	// Timeout bounds a single regeneration call.
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
	// MaxRetries bounds regeneration attempts for a single artifact within
	// a wave before it is marked failed.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// DefaultAgentConfig returns defaults for the regeneration agent.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Timeout:    "300s",
		MaxRetries: 2,
	}
}

// Config holds all health-cascade configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Scan      ScanConfig      `yaml:"scan"`
	Analyzers AnalyzerConfig  `yaml:"analyzers"`
	Cascade   CascadeLimits   `yaml:"cascade"`
	Execution ExecutionConfig `yaml:"execution"`
	Build     BuildConfig     `yaml:"build"`
	Agent     AgentConfig     `yaml:"agent"`
	Logging   LoggingConfig   `yaml:"logging"`

	// AuditSigningKeyEnv names the environment variable holding the HMAC
	// key used to sign audit log entries. Empty means entries are chained
	// but unsigned.
	AuditSigningKeyEnv string `yaml:"audit_signing_key_env" json:"audit_signing_key_env,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "health",
		Version: "1.0.0",

		Scan:      DefaultScanConfig(),
		Analyzers: DefaultAnalyzerConfig(),
		Cascade:   DefaultCascadeLimits(),
		Build:     DefaultBuildConfig(),
		Agent:     DefaultAgentConfig(),

		Execution: ExecutionConfig{
			AllowedBinaries: []string{
				"go", "git", "grep", "ls", "mkdir", "cp", "mv",
				"npm", "npx", "node", "python", "python3", "pip",
				"cargo", "rustc", "make", "cmake", "golangci-lint",
			},
			DefaultTimeout:   "30s",
			WorkingDirectory: ".",
			AllowedEnvVars:   []string{"PATH", "HOME", "GOPATH", "GOROOT", "GOCACHE", "GOMODCACHE"},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "health.log",
		},

		AuditSigningKeyEnv: "HEALTH_AUDIT_KEY",
	}
}

// Load loads configuration from a YAML file, falling back to defaults for
// anything the file does not specify (and entirely if the file is absent).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.ConfigDebug("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Config("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.ConfigError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.ConfigError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Config("config loaded from %s", path)
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if endpoint := os.Getenv("HEALTH_AGENT_ENDPOINT"); endpoint != "" {
		c.Agent.Endpoint = endpoint
	}
	if workdir := os.Getenv("HEALTH_WORKING_DIR"); workdir != "" {
		c.Execution.WorkingDirectory = workdir
	}
}

// GetAgentTimeout returns the agent call timeout as a duration.
func (c *Config) GetAgentTimeout() time.Duration {
	d, err := time.ParseDuration(c.Agent.Timeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// GetExecutionTimeout returns the default execution timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.DefaultTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Cascade.Validate(); err != nil {
		return fmt.Errorf("cascade limits: %w", err)
	}
	if c.Analyzers.MinCoveragePercent < 0 || c.Analyzers.MinCoveragePercent > 100 {
		return fmt.Errorf("min_coverage_percent must be in [0,100]")
	}
	if c.Analyzers.MaxCyclomaticComplexity < 1 {
		return fmt.Errorf("max_cyclomatic_complexity must be >= 1")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// AuditSigningKey resolves the HMAC signing key from the environment, or
// returns an empty slice if no key is configured.
func (c *Config) AuditSigningKey() []byte {
	if c.AuditSigningKeyEnv == "" {
		return nil
	}
	return []byte(os.Getenv(c.AuditSigningKeyEnv))
}
