package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"sunwell/internal/runner"
)

// SubprocessAgent invokes a local regeneration agent by writing the spec
// as JSON to its stdin and reading one JSON result from its stdout, using
// the same executor every other subprocess in the system goes through so
// the agent call is resource-limited and audit-hookable identically.
type SubprocessAgent struct {
	exec    runner.Executor
	command []string
	env     []string
}

// NewSubprocessAgent builds a SubprocessAgent that runs command through exec.
func NewSubprocessAgent(exec runner.Executor, command []string, env []string) *SubprocessAgent {
	return &SubprocessAgent{exec: exec, command: command, env: env}
}

func (a *SubprocessAgent) Regenerate(ctx context.Context, spec RegenerationSpec) (*RegenerationResult, error) {
	if len(a.command) == 0 {
		return nil, fmt.Errorf("subprocess agent: no command configured")
	}
	input, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("subprocess agent: encode spec: %w", err)
	}

	cmd := runner.Command{
		Binary:    a.command[0],
		Arguments: a.command[1:],
		Stdin:     string(input),
		Environment: a.env,
	}
	result, err := a.exec.Execute(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("subprocess agent: execute: %w", err)
	}
	if result.IsError() || result.IsNonZeroExit() {
		return nil, &RegenerationFailedError{ArtifactID: spec.ArtifactID, Err: fmt.Errorf("exit %d: %s", result.ExitCode, result.Stderr)}
	}

	var out RegenerationResult
	if err := json.Unmarshal([]byte(result.Stdout), &out); err != nil {
		return nil, fmt.Errorf("subprocess agent: decode result: %w", err)
	}
	return &out, nil
}
