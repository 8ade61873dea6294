package analyzer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"sunwell/internal/graph"
	"sunwell/internal/runner"
)

// StalenessAnalyzer flags artifacts that are simultaneously old, poorly
// covered, and heavily depended-upon: the triple gate from the spec —
// months_stale > 6, coverage < threshold, fan_out > 3 — all three must
// hold, since any one alone is a weak signal of risk (old-and-well-tested
// or new-and-uncovered are both common and benign).
type StalenessAnalyzer struct {
	tc                toolchain
	stalenessDays     int
	coverageThreshold float64

	// coverageByArtifact, when set, lets the caller feed in coverage
	// already computed by CoverageAnalyzer instead of re-running it.
	coverageByArtifact map[string]float64
	fanOutByArtifact   map[string]int
}

func (a *StalenessAnalyzer) Name() string { return "staleness" }

// WithContext attaches the coverage and fan-out facts the gate needs;
// the engine calls this after the Coverage analyzer and the graph have
// already produced them, since Staleness alone can't derive either.
func (a *StalenessAnalyzer) WithContext(coverage map[string]float64, fanOut map[string]int) *StalenessAnalyzer {
	a.coverageByArtifact = coverage
	a.fanOutByArtifact = fanOut
	return a
}

func (a *StalenessAnalyzer) Run(ctx context.Context, projectRoot string, artifacts []*graph.Artifact) (map[string]Signal, error) {
	signals := make(map[string]Signal)
	if !a.tc.available() {
		warnMissingOnce(a.Name())
		return signals, nil
	}

	thresholdMonths := float64(a.stalenessDays) / 30.0

	for _, art := range artifacts {
		if art.ProducesFile == "" {
			continue
		}
		fanOut := a.fanOutByArtifact[art.ID]
		if fanOut <= 3 {
			continue
		}
		coverage := a.coverageByArtifact[art.ID]
		if coverage >= a.coverageThreshold/100 {
			continue
		}

		cmd := runner.Command{
			Binary:           "git",
			Arguments:        []string{"log", "--format=%at", "-1", "--", art.ProducesFile},
			WorkingDirectory: projectRoot,
			Environment:      a.tc.env,
		}
		result, err := a.tc.exec.Execute(ctx, cmd)
		if err != nil || result == nil || !result.Success {
			continue
		}
		ts := strings.TrimSpace(result.Stdout)
		if ts == "" {
			continue
		}
		unixSec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			continue
		}
		monthsStale := time.Since(time.Unix(unixSec, 0)).Hours() / (24 * 30)
		if monthsStale <= thresholdMonths {
			continue
		}

		signals[art.ID] = Signal{
			ArtifactID: art.ID,
			Kind:       SignalStaleCode,
			Severity:   minClamp1(monthsStale / 12 * float64(fanOut) / 10),
			Evidence: map[string]interface{}{
				"months_stale": monthsStale,
				"coverage":     coverage,
				"fan_out":      fanOut,
			},
		}
	}
	return signals, nil
}
