package analyzer

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	"sunwell/internal/graph"
)

// goTestEvent mirrors the subset of `go test -json` action records this
// analyzer cares about. The full schema has more fields (Elapsed, Output
// text lines, etc.) but only Action/Package/Test matter for counting
// failures per package.
type goTestEvent struct {
	Action  string `json:"Action"`
	Package string `json:"Package"`
	Test    string `json:"Test"`
}

// FailureProneAnalyzer flags artifacts whose package has failed more than
// once in the test run just executed. A single failure is often a stray
// flake; repeated failures across distinct tests in the same package is
// the pattern that actually predicts cascade breakage.
type FailureProneAnalyzer struct {
	tc toolchain
}

func (a *FailureProneAnalyzer) Name() string { return "failure_prone" }

func (a *FailureProneAnalyzer) Run(ctx context.Context, projectRoot string, artifacts []*graph.Artifact) (map[string]Signal, error) {
	signals := make(map[string]Signal)
	if !a.tc.available() {
		warnMissingOnce(a.Name())
		return signals, nil
	}

	result, err := a.tc.run(ctx, projectRoot)
	if err != nil && result == nil {
		return signals, nil
	}

	failures := make(map[string]int)
	scanner := bufio.NewScanner(strings.NewReader(result.Output()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(strings.TrimSpace(line), "{") {
			continue
		}
		var ev goTestEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Action == "fail" && ev.Test != "" {
			failures[ev.Package]++
		}
	}

	dirIndex := byDir(projectRoot, artifacts)
	for pkg, count := range failures {
		if count <= 1 {
			continue
		}
		ids := matchPackageSuffix(dirIndex, pkg)
		for _, id := range ids {
			signals[id] = Signal{
				ArtifactID: id,
				Kind:       SignalFailureProne,
				Severity:   minClamp1(float64(count) / 5),
				Evidence: map[string]interface{}{
					"failing_tests": count,
					"package":       pkg,
				},
			}
		}
	}
	return signals, nil
}
