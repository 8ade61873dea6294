// Package verify runs the four independent checks on a wave's touched
// artifacts and reduces them to a single confidence score.
package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sunwell/internal/config"
	"sunwell/internal/contract"
	"sunwell/internal/graph"
	"sunwell/internal/regression"
	"sunwell/internal/runner"
)

// WaveConfidence is the output of verifying one wave.
type WaveConfidence struct {
	WaveNum            int      `json:"wave_num"`
	Artifacts          []string `json:"artifacts"`
	TestsPassed        bool     `json:"tests_passed"`
	TypesClean         bool     `json:"types_clean"`
	LintClean          bool     `json:"lint_clean"`
	ContractsPreserved bool     `json:"contracts_preserved"`
	Confidence         float64  `json:"confidence"`
	Deductions         []string `json:"deductions"`
}

const (
	deductTestsFailed       = 0.4
	deductTypesNotClean     = 0.2
	deductLintNotClean      = 0.1
	deductContractsViolated = 0.3
)

// Verifier runs the four checks through the runner subprocess path plus
// an optional informational regression battery pass.
type Verifier struct {
	Exec runner.Executor
	Env  []string
	Reg  *contract.Registry
}

// NewVerifier builds a Verifier with the default contract registry.
func NewVerifier(exec runner.Executor, env []string) *Verifier {
	return &Verifier{Exec: exec, Env: env, Reg: contract.NewRegistry()}
}

// VerifyWave runs tests_passed, types_clean, lint_clean, and
// contracts_preserved for the given wave's artifacts, then computes the
// fixed confidence formula.
func (v *Verifier) VerifyWave(ctx context.Context, waveNum int, artifacts []*graph.Artifact, frozen map[string]*contract.Contract, cfg *config.Config, projectRoot string) (*WaveConfidence, error) {
	ids := make([]string, len(artifacts))
	for i, a := range artifacts {
		ids[i] = a.ID
	}
	wc := &WaveConfidence{WaveNum: waveNum, Artifacts: ids, Confidence: 1.0}

	wc.TestsPassed = v.runBoolCheck(ctx, cfg.Analyzers.TestCommand, projectRoot)
	if !wc.TestsPassed {
		wc.Confidence -= deductTestsFailed
		wc.Deductions = append(wc.Deductions, "Tests failed")
	}

	wc.TypesClean = v.runBoolCheck(ctx, cfg.Analyzers.TypesCommand, projectRoot)
	if !wc.TypesClean {
		wc.Confidence -= deductTypesNotClean
		wc.Deductions = append(wc.Deductions, "Type check reported errors")
	}

	wc.LintClean = v.runBoolCheck(ctx, cfg.Analyzers.LintCommand, projectRoot)
	if !wc.LintClean {
		wc.Confidence -= deductLintNotClean
		wc.Deductions = append(wc.Deductions, "Lint reported findings")
	}

	wc.ContractsPreserved = v.checkContracts(artifacts, frozen, projectRoot)
	if !wc.ContractsPreserved {
		wc.Confidence -= deductContractsViolated
		wc.Deductions = append(wc.Deductions, "Contract compatibility broken")
	}

	if wc.Confidence < 0 {
		wc.Confidence = 0
	}

	batteryPath := regression.DefaultBatteryPath(projectRoot)
	if battery, err := regression.LoadBattery(batteryPath); err == nil && battery != nil {
		results, err := regression.RunBattery(ctx, battery, projectRoot)
		if err == nil {
			for _, r := range results {
				if !r.Success {
					wc.Deductions = append(wc.Deductions, fmt.Sprintf("Regression battery: %s failed (informational)", r.TaskID))
				}
			}
		}
	}

	return wc, nil
}

func (v *Verifier) runBoolCheck(ctx context.Context, command []string, projectRoot string) bool {
	if len(command) == 0 {
		return true
	}
	cmd := runner.Command{
		Binary:           command[0],
		Arguments:        command[1:],
		WorkingDirectory: projectRoot,
		Environment:      v.Env,
	}
	result, err := v.Exec.Execute(ctx, cmd)
	if err != nil || result == nil {
		return true // tool unavailable/infrastructure error: missing-tool = pass
	}
	return result.Success && result.ExitCode == 0
}

// checkContracts re-extracts the current contract for every artifact with
// a frozen one and checks compatibility. Missing files or failed
// extraction are tolerated as passes, matching the spec's tolerance rule.
func (v *Verifier) checkContracts(artifacts []*graph.Artifact, frozen map[string]*contract.Contract, projectRoot string) bool {
	for _, a := range artifacts {
		frozenContract, ok := frozen[a.ID]
		if !ok || frozenContract == nil {
			continue
		}
		path := a.ProducesFile
		if path == "" {
			continue
		}
		full := path
		if !filepath.IsAbs(full) {
			full = filepath.Join(projectRoot, full)
		}
		src, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		current, err := v.Reg.Extract(path, src)
		if err != nil || current == nil {
			continue
		}
		if !current.IsCompatibleWith(frozenContract) {
			return false
		}
	}
	return true
}
