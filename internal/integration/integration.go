// Package integration verifies that the integrations an artifact declares
// against its dependencies actually exist in source, independent of the
// weakness cascade. engine.VerifyIntegrations runs it standalone and
// publishes a pass or fail event per check; the wave executor does not
// call it.
package integration

import (
	"fmt"

	"sunwell/internal/graph"
)

// IntegrationResult is the outcome of checking one RequiredIntegration.
type IntegrationResult struct {
	Check     graph.RequiredIntegration `json:"check"`
	Satisfied bool                      `json:"satisfied"`
	Detail    string                    `json:"detail"`
}

// StubLocation marks a placeholder left in generated code: an empty
// function body, a TODO/FIXME comment, or an explicit not-implemented
// panic.
type StubLocation struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
}

// TaskVerificationResult aggregates every integration check and stub scan
// for one artifact's produced files.
type TaskVerificationResult struct {
	ArtifactID   string               `json:"artifact_id"`
	Integrations []*IntegrationResult `json:"integrations"`
	Stubs        []StubLocation       `json:"stubs"`
	Complete     bool                 `json:"complete"`
}

// unsatisfiedSummary renders a short explanation of why a task isn't
// complete, for inclusion in events and audit entries.
func unsatisfiedSummary(r *TaskVerificationResult) string {
	if r.Complete {
		return "all integrations satisfied, no stubs detected"
	}
	var failing int
	for _, i := range r.Integrations {
		if !i.Satisfied {
			failing++
		}
	}
	return fmt.Sprintf("%d integration(s) unsatisfied, %d stub(s) detected", failing, len(r.Stubs))
}
