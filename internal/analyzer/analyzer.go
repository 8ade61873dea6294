package analyzer

import (
	"context"
	"os/exec"
	"sync"

	"sunwell/internal/config"
	"sunwell/internal/graph"
	"sunwell/internal/logging"
	"sunwell/internal/runner"
)

// Analyzer is a pure adapter: it runs an external tool, parses its output,
// and maps findings back to artifact ids. Analyzers are tolerant of a
// missing tool: Run returns an empty map and no error, after warning once.
type Analyzer interface {
	Name() string
	Run(ctx context.Context, projectRoot string, artifacts []*graph.Artifact) (map[string]Signal, error)
}

// toolchain bundles what every subprocess-backed analyzer needs: an
// executor, the build environment, and the command to run.
type toolchain struct {
	exec    runner.Executor
	env     []string
	command []string
}

func (t toolchain) available() bool {
	if len(t.command) == 0 {
		return false
	}
	_, err := exec.LookPath(t.command[0])
	return err == nil
}

func (t toolchain) run(ctx context.Context, workdir string) (*runner.ExecutionResult, error) {
	cmd := runner.Command{
		Binary:           t.command[0],
		Arguments:        t.command[1:],
		WorkingDirectory: workdir,
		Environment:      t.env,
	}
	return t.exec.Execute(ctx, cmd)
}

// New constructs the six required analyzers, all sharing one executor and
// build environment so every subprocess they launch is resource-limited
// and audit-hookable the same way.
func New(cfg *config.Config, exec runner.Executor, buildEnv []string) []Analyzer {
	return []Analyzer{
		&CoverageAnalyzer{tc: toolchain{exec: exec, env: buildEnv, command: cfg.Analyzers.CoverageCommand}, threshold: cfg.Analyzers.MinCoveragePercent},
		&ComplexityAnalyzer{tc: toolchain{exec: exec, env: buildEnv, command: cfg.Analyzers.ComplexityCommand}, threshold: cfg.Analyzers.MaxCyclomaticComplexity},
		&LintAnalyzer{tc: toolchain{exec: exec, env: buildEnv, command: cfg.Analyzers.LintCommand}},
		&TypesAnalyzer{tc: toolchain{exec: exec, env: buildEnv, command: cfg.Analyzers.TypesCommand}},
		&StalenessAnalyzer{tc: toolchain{exec: exec, env: buildEnv, command: []string{"git", "log", "--format=%at", "-1"}}, stalenessDays: cfg.Analyzers.StalenessDays, coverageThreshold: cfg.Analyzers.MinCoveragePercent},
		&FailureProneAnalyzer{tc: toolchain{exec: exec, env: buildEnv, command: append(append([]string{}, cfg.Analyzers.TestCommand...), "-json")}},
	}
}

// warnedMissing tracks which analyzer names have already logged a
// missing-tool warning, so a repeated scan doesn't spam the log.
var (
	warnedMu      sync.Mutex
	warnedMissing = map[string]bool{}
)

func warnMissingOnce(name string) {
	warnedMu.Lock()
	defer warnedMu.Unlock()
	if warnedMissing[name] {
		return
	}
	warnedMissing[name] = true
	logging.Get(logging.CategoryAnalyzer).Warn("%s: tool not found, contributing no signals", name)
}
