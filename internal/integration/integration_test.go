package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/graph"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return name
}

func TestVerifyIntegration_ImportSatisfied(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "consumer.go", "package x\n\nimport \"sunwell/internal/widget\"\n\nfunc Use() { widget.Do() }\n")

	v := NewVerifier(dir)
	result, err := v.VerifyIntegration(graph.RequiredIntegration{
		TargetArtifactID: "widget",
		Kind:             graph.IntegrationImport,
		TargetFile:       rel,
	})
	require.NoError(t, err)
	assert.True(t, result.Satisfied)
}

func TestVerifyIntegration_ImportMissingFallsBackAndFails(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "consumer.go", "package x\n\nfunc Use() {}\n")

	v := NewVerifier(dir)
	result, err := v.VerifyIntegration(graph.RequiredIntegration{
		TargetArtifactID: "widget",
		Kind:             graph.IntegrationImport,
		TargetFile:       rel,
	})
	require.NoError(t, err)
	assert.False(t, result.Satisfied)
}

func TestVerifyIntegration_CallSatisfied(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "consumer.go", "package x\n\nfunc Use() { DoTheThing() }\n")

	v := NewVerifier(dir)
	result, err := v.VerifyIntegration(graph.RequiredIntegration{
		Kind:                graph.IntegrationCall,
		TargetFile:          rel,
		ContractExpectation: "DoTheThing",
	})
	require.NoError(t, err)
	assert.True(t, result.Satisfied)
}

func TestVerifyIntegration_InheritSatisfiedViaEmbed(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "consumer.go", "package x\n\ntype Sub struct {\n\tBase\n}\n")

	v := NewVerifier(dir)
	result, err := v.VerifyIntegration(graph.RequiredIntegration{
		TargetArtifactID: "Base",
		Kind:             graph.IntegrationInherit,
		TargetFile:       rel,
	})
	require.NoError(t, err)
	assert.True(t, result.Satisfied)
}

func TestVerifyIntegration_PatternFallbackForNonGoFile(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "routes.yaml", "routes:\n  - path: /health\n")

	v := NewVerifier(dir)
	result, err := v.VerifyIntegration(graph.RequiredIntegration{
		Kind:                graph.IntegrationRoute,
		TargetFile:          rel,
		VerificationPattern: `/health`,
	})
	require.NoError(t, err)
	assert.True(t, result.Satisfied)
}

func TestVerifyIntegration_MissingTargetFileIsUnsatisfied(t *testing.T) {
	v := NewVerifier(t.TempDir())
	result, err := v.VerifyIntegration(graph.RequiredIntegration{TargetFile: "nope.go", Kind: graph.IntegrationImport})
	require.NoError(t, err)
	assert.False(t, result.Satisfied)
}

func TestDetectStubs_FindsTodoAndEmptyFunction(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "half_done.go", "package x\n\n// TODO: finish this\nfunc Stub() {\n}\n\nfunc Done() {\n\tprintln(\"ok\")\n}\n")

	v := NewVerifier(dir)
	stubs, err := v.DetectStubs(rel)
	require.NoError(t, err)

	var patterns []string
	for _, s := range stubs {
		patterns = append(patterns, s.Pattern)
	}
	assert.Contains(t, patterns, "TODO")
	assert.Contains(t, patterns, "empty-function-body")
}

func TestDetectStubs_NotImplementedPanic(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "stub.go", "package x\n\nfunc F() {\n\tpanic(\"not implemented\")\n}\n")

	v := NewVerifier(dir)
	stubs, err := v.DetectStubs(rel)
	require.NoError(t, err)

	found := false
	for _, s := range stubs {
		if s.Pattern == "not-implemented-panic" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectStubs_CleanFileHasNoStubs(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "clean.go", "package x\n\nfunc F() {\n\tprintln(\"done\")\n}\n")

	v := NewVerifier(dir)
	stubs, err := v.DetectStubs(rel)
	require.NoError(t, err)
	assert.Empty(t, stubs)
}

func TestVerifyTaskComplete_AggregatesIntegrationsAndStubs(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "consumer.go", "package x\n\nimport \"sunwell/internal/widget\"\n\nfunc Use() { widget.Do() }\n\n// TODO: cleanup\n")

	v := NewVerifier(dir)
	artifact := &graph.Artifact{
		ID:           "consumer",
		ProducesFile: rel,
		Integrations: []graph.RequiredIntegration{
			{TargetArtifactID: "widget", Kind: graph.IntegrationImport, TargetFile: rel},
		},
	}

	result, err := v.VerifyTaskComplete(artifact, []string{rel})
	require.NoError(t, err)
	assert.False(t, result.Complete)
	require.Len(t, result.Integrations, 1)
	assert.True(t, result.Integrations[0].Satisfied)
	assert.NotEmpty(t, result.Stubs)
}

func TestVerifyTaskComplete_CompleteWhenNothingWrong(t *testing.T) {
	dir := t.TempDir()
	rel := writeFile(t, dir, "consumer.go", "package x\n\nimport \"sunwell/internal/widget\"\n\nfunc Use() { widget.Do() }\n")

	v := NewVerifier(dir)
	artifact := &graph.Artifact{
		ID:           "consumer",
		ProducesFile: rel,
		Integrations: []graph.RequiredIntegration{
			{TargetArtifactID: "widget", Kind: graph.IntegrationImport, TargetFile: rel},
		},
	}

	result, err := v.VerifyTaskComplete(artifact, []string{rel})
	require.NoError(t, err)
	assert.True(t, result.Complete)
}

func TestUnsatisfiedSummary_ReportsCounts(t *testing.T) {
	r := &TaskVerificationResult{
		Integrations: []*IntegrationResult{{Satisfied: false}, {Satisfied: true}},
		Stubs:        []StubLocation{{File: "a.go", Line: 1}},
	}
	summary := unsatisfiedSummary(r)
	assert.Contains(t, summary, "1 integration(s) unsatisfied")
	assert.Contains(t, summary, "1 stub(s) detected")
}
