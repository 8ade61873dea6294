package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/graph"
	"sunwell/internal/runner"
)

// fakeExecutor returns a canned result for any command, recording the
// commands it was asked to run so tests can assert on invocation.
type fakeExecutor struct {
	result *runner.ExecutionResult
	err    error
	seen   []runner.Command
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd runner.Command) (*runner.ExecutionResult, error) {
	f.seen = append(f.seen, cmd)
	return f.result, f.err
}

func (f *fakeExecutor) Capabilities() runner.ExecutorCapabilities {
	return runner.ExecutorCapabilities{Name: "fake"}
}

func (f *fakeExecutor) Validate(cmd runner.Command) error { return nil }

func artifactsFor(ids ...string) []*graph.Artifact {
	out := make([]*graph.Artifact, len(ids))
	for i, id := range ids {
		out[i] = &graph.Artifact{ID: id, ProducesFile: "internal/" + id + "/" + id + ".go"}
	}
	return out
}

func TestCoverageAnalyzer_ZeroThresholdNeverFlags(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, Stdout: "ok  internal/graph  0.010s  coverage: 10.0% of statements\n"}}
	a := &CoverageAnalyzer{tc: toolchain{exec: exec, command: []string{"go", "test", "-cover", "./..."}}, threshold: 0}
	signals, err := a.Run(context.Background(), "/proj", artifactsFor("graph"))
	require.NoError(t, err)
	assert.Empty(t, signals)
	assert.Empty(t, exec.seen, "should never invoke the tool when threshold is 0")
}

func TestCoverageAnalyzer_BelowThresholdFlags(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{
		Success: true,
		Stdout:  "ok  	internal/graph	0.010s	coverage: 40.0% of statements\n",
	}}
	artifacts := artifactsFor("graph")
	a := &CoverageAnalyzer{tc: toolchain{exec: exec, command: []string{"go", "test", "-cover", "./..."}}, threshold: 60}
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	require.Contains(t, signals, "graph")
	assert.Equal(t, SignalLowCoverage, signals["graph"].Kind)
	assert.InDelta(t, (60.0-40.0)/60.0, signals["graph"].Severity, 1e-9)
}

func TestCoverageAnalyzer_MissingToolReturnsNoError(t *testing.T) {
	a := &CoverageAnalyzer{tc: toolchain{command: []string{"definitely-not-a-real-binary-xyz"}}, threshold: 60}
	signals, err := a.Run(context.Background(), "/proj", artifactsFor("graph"))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestComplexityAnalyzer_FlagsOverThreshold(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{
		Success: true,
		Stdout:  "20 graph (*Graph).TopologicalWaves internal/graph/waves.go:11:1\n3 graph New internal/graph/graph.go:30:1\n",
	}}
	a := &ComplexityAnalyzer{tc: toolchain{exec: exec, command: []string{"gocyclo", "-over", "0", "."}}, threshold: 15}
	artifacts := []*graph.Artifact{
		{ID: "waves", ProducesFile: "internal/graph/waves.go"},
		{ID: "graph", ProducesFile: "internal/graph/graph.go"},
	}
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	require.Contains(t, signals, "waves")
	assert.NotContains(t, signals, "graph")
	assert.Equal(t, SignalHighComplexity, signals["waves"].Kind)
}

func TestLintAnalyzer_CountsPerFile(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{
		Success: true,
		Stdout:  "internal/graph/graph.go:10:2: unused variable x\ninternal/graph/graph.go:20:2: shadowed err\n",
	}}
	a := &LintAnalyzer{tc: toolchain{exec: exec, command: []string{"go", "vet", "./..."}}}
	artifacts := artifactsFor("graph")
	artifacts[0].ProducesFile = "internal/graph/graph.go"
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	require.Contains(t, signals, "graph")
	assert.Equal(t, 2, signals["graph"].Evidence["count"])
}

func TestTypesAnalyzer_FlagsCompileErrors(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{
		Success: true, ExitCode: 2,
		Stdout: "internal/graph/graph.go:5:2: undefined: Foo\n",
	}}
	a := &TypesAnalyzer{tc: toolchain{exec: exec, command: []string{"go", "build", "./..."}}}
	artifacts := artifactsFor("graph")
	artifacts[0].ProducesFile = "internal/graph/graph.go"
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	require.Contains(t, signals, "graph")
	assert.Equal(t, SignalMissingTypes, signals["graph"].Kind)
}

func TestFailureProneAnalyzer_FlagsRepeatedFailures(t *testing.T) {
	out := `{"Action":"run","Package":"sunwell/internal/graph","Test":"TestAdd"}
{"Action":"fail","Package":"sunwell/internal/graph","Test":"TestAdd"}
{"Action":"fail","Package":"sunwell/internal/graph","Test":"TestRemove"}
{"Action":"pass","Package":"sunwell/internal/analyzer","Test":"TestScore"}
`
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, Stdout: out}}
	a := &FailureProneAnalyzer{tc: toolchain{exec: exec, command: []string{"go", "test", "./...", "-json"}}}
	artifacts := artifactsFor("graph")
	artifacts[0].ProducesFile = "internal/graph/graph.go"
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	require.Contains(t, signals, "graph")
	assert.Equal(t, 2, signals["graph"].Evidence["failing_tests"])
}

func TestFailureProneAnalyzer_SingleFailureNotFlagged(t *testing.T) {
	out := `{"Action":"fail","Package":"sunwell/internal/graph","Test":"TestAdd"}` + "\n"
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, Stdout: out}}
	a := &FailureProneAnalyzer{tc: toolchain{exec: exec, command: []string{"go", "test", "./...", "-json"}}}
	artifacts := artifactsFor("graph")
	artifacts[0].ProducesFile = "internal/graph/graph.go"
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestStalenessAnalyzer_TripleGate(t *testing.T) {
	oldTimestamp := "1000000000" // 2001, well past any staleness window
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, Stdout: oldTimestamp + "\n"}}
	a := &StalenessAnalyzer{
		tc:                toolchain{exec: exec, command: []string{"git", "log", "--format=%at", "-1"}},
		stalenessDays:     180,
		coverageThreshold: 60,
	}
	a.WithContext(map[string]float64{"graph": 0.2}, map[string]int{"graph": 5})
	artifacts := artifactsFor("graph")
	artifacts[0].ProducesFile = "internal/graph/graph.go"
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	require.Contains(t, signals, "graph")
	assert.Equal(t, SignalStaleCode, signals["graph"].Kind)
}

func TestStalenessAnalyzer_LowFanOutSkipsEvenIfStale(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, Stdout: "1000000000\n"}}
	a := &StalenessAnalyzer{
		tc:                toolchain{exec: exec, command: []string{"git", "log", "--format=%at", "-1"}},
		stalenessDays:     180,
		coverageThreshold: 60,
	}
	a.WithContext(map[string]float64{"graph": 0.2}, map[string]int{"graph": 1})
	artifacts := artifactsFor("graph")
	artifacts[0].ProducesFile = "internal/graph/graph.go"
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	assert.Empty(t, signals)
	assert.Empty(t, exec.seen, "should not even shell out when fan_out gate fails")
}

func TestStalenessAnalyzer_HighCoverageSkips(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, Stdout: "1000000000\n"}}
	a := &StalenessAnalyzer{
		tc:                toolchain{exec: exec, command: []string{"git", "log", "--format=%at", "-1"}},
		stalenessDays:     180,
		coverageThreshold: 60,
	}
	a.WithContext(map[string]float64{"graph": 0.9}, map[string]int{"graph": 10})
	artifacts := artifactsFor("graph")
	artifacts[0].ProducesFile = "internal/graph/graph.go"
	signals, err := a.Run(context.Background(), "/proj", artifacts)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

// stubProvider is a hand-rolled FanOutProvider for Score tests, decoupled
// from any real graph.
type stubProvider struct {
	fanOut map[string]int
	depth  map[string]int
	hasErr error
}

func (s stubProvider) FanOut(id string) (int, error) {
	if s.hasErr != nil {
		return 0, s.hasErr
	}
	return s.fanOut[id], nil
}
func (s stubProvider) Depth(id string) (int, error) {
	if s.hasErr != nil {
		return 0, s.hasErr
	}
	return s.depth[id], nil
}
func (s stubProvider) HasFile(id string) bool { return id != "virtual" }

func TestScore_OrdersBySeverityThenFanOutThenID(t *testing.T) {
	signals := []Signal{
		{ArtifactID: "a", Kind: SignalLowCoverage, Severity: 0.9},
		{ArtifactID: "b", Kind: SignalLowCoverage, Severity: 0.9},
		{ArtifactID: "c", Kind: SignalLowCoverage, Severity: 0.1},
	}
	p := stubProvider{fanOut: map[string]int{"a": 3, "b": 5, "c": 0}}
	scores, err := Score(signals, p)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, "b", scores[0].ArtifactID, "higher fan_out breaks the severity tie")
	assert.Equal(t, "a", scores[1].ArtifactID)
	assert.Equal(t, "c", scores[2].ArtifactID)
}

func TestScore_SkipsVirtualArtifacts(t *testing.T) {
	signals := []Signal{{ArtifactID: "virtual", Kind: SignalLowCoverage, Severity: 1.0}}
	scores, err := Score(signals, stubProvider{})
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestScore_PropagatesProviderError(t *testing.T) {
	signals := []Signal{{ArtifactID: "a", Kind: SignalLowCoverage, Severity: 1.0}}
	_, err := Score(signals, stubProvider{hasErr: errors.New("boom")})
	assert.Error(t, err)
}

func TestScore_FanOutBoostsTotalSeverityAndRisk(t *testing.T) {
	low := []Signal{{ArtifactID: "a", Kind: SignalLowCoverage, Severity: 0.5}}
	high := []Signal{{ArtifactID: "a", Kind: SignalLowCoverage, Severity: 0.5}}

	lowFanOut, err := Score(low, stubProvider{fanOut: map[string]int{"a": 0}})
	require.NoError(t, err)
	highFanOut, err := Score(high, stubProvider{fanOut: map[string]int{"a": 20}})
	require.NoError(t, err)

	assert.Less(t, lowFanOut[0].TotalSeverity, highFanOut[0].TotalSeverity)
	assert.Equal(t, RiskLow, lowFanOut[0].CascadeRisk)
	assert.Equal(t, RiskCritical, highFanOut[0].CascadeRisk)
}

func TestCascadeRiskLabel_Bounds(t *testing.T) {
	assert.Equal(t, RiskLow, cascadeRiskLabel(0.1, 0))
	assert.Equal(t, RiskMedium, cascadeRiskLabel(0.51, 0))
	assert.Equal(t, RiskHigh, cascadeRiskLabel(1.01, 0))
	assert.Equal(t, RiskCritical, cascadeRiskLabel(2.01, 0))
}
