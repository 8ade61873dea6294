package analyzer

import (
	"context"
	"regexp"
	"strconv"

	"sunwell/internal/graph"
)

// coverageLineRE matches `go test -cover` package summary lines:
//
//	ok  	sunwell/internal/graph	0.012s	coverage: 82.3% of statements
var coverageLineRE = regexp.MustCompile(`^(?:ok|FAIL)\s+(\S+)\s+.*coverage:\s+([\d.]+)%\s+of statements`)

// CoverageAnalyzer flags artifacts whose package coverage falls below the
// configured threshold.
type CoverageAnalyzer struct {
	tc        toolchain
	threshold float64 // percent, e.g. 60.0
}

func (a *CoverageAnalyzer) Name() string { return "coverage" }

func (a *CoverageAnalyzer) Run(ctx context.Context, projectRoot string, artifacts []*graph.Artifact) (map[string]Signal, error) {
	signals := make(map[string]Signal)
	if a.threshold <= 0 {
		// coverage_threshold = 0 never emits low_coverage.
		return signals, nil
	}
	if !a.tc.available() {
		warnMissingOnce(a.Name())
		return signals, nil
	}

	result, err := a.tc.run(ctx, projectRoot)
	if err != nil {
		return signals, nil
	}

	dirIndex := byDir(projectRoot, artifacts)
	for _, line := range splitLines(result.Output()) {
		m := coverageLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pct, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if pct >= a.threshold {
			continue
		}
		ids := matchPackageSuffix(dirIndex, m[1])
		severity := minClamp1((a.threshold - pct) / a.threshold)
		for _, id := range ids {
			signals[id] = Signal{
				ArtifactID: id,
				Kind:       SignalLowCoverage,
				Severity:   severity,
				Evidence: map[string]interface{}{
					"coverage":  pct / 100,
					"threshold": a.threshold / 100,
				},
			}
		}
	}
	return signals, nil
}
