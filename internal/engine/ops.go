package engine

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sunwell/internal/analyzer"
	"sunwell/internal/audit"
	"sunwell/internal/cascade"
	"sunwell/internal/contract"
	"sunwell/internal/eventbus"
	"sunwell/internal/graph"
	"sunwell/internal/integration"
	"sunwell/internal/logging"
	"sunwell/internal/scan"
	"sunwell/internal/wave"
)

// Scan discovers artifacts under the project root, merges them into the
// persisted graph, runs every configured analyzer, and scores the result.
func (e *Engine) Scan(ctx context.Context, ignorePatterns []string) (*WeaknessReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.publish(eventbus.EventScanStart, map[string]string{"project_root": e.projectRoot})

	scanCfg := e.cfg.Scan
	scanCfg.IgnorePatterns = append(append([]string{}, scanCfg.IgnorePatterns...), ignorePatterns...)

	modulePath, err := modulePathOf(e.projectRoot)
	if err != nil {
		return nil, e.fail("scan", err, nil)
	}

	discovered, err := scan.Discover(ctx, e.projectRoot, modulePath, scanCfg)
	if err != nil {
		return nil, e.fail("scan", err, nil)
	}
	mergeGraph(e.graph, discovered.Graph)
	if err := e.graph.Save(graphPath(e.projectRoot)); err != nil {
		return nil, e.fail("scan", err, nil)
	}

	artifacts := e.graph.All()
	signals, coverageByArtifact, err := e.runAnalyzers(ctx, artifacts)
	if err != nil {
		return nil, e.fail("scan", err, nil)
	}

	scores, err := analyzer.Score(signals, analyzer.GraphProvider{Graph: e.graph})
	if err != nil {
		return nil, e.fail("scan", err, nil)
	}
	_ = coverageByArtifact

	report := buildWeaknessReport(e.projectRoot, discovered.FilesParsed, scores)

	e.publish(eventbus.EventScanComplete, map[string]interface{}{
		"files_scanned":  report.FilesScanned,
		"critical_count": report.CriticalCount,
		"high_count":     report.HighCount,
		"medium_count":   report.MediumCount,
		"low_count":      report.LowCount,
	})
	e.auditAppend(ctx, "scan", report)
	if err := appendWeaknessHistory(e.projectRoot, report); err != nil {
		logging.Get(logging.CategoryEngine).Warn("failed to append weakness history: %v", err)
	}

	return report, nil
}

// runAnalyzers runs every configured analyzer over artifacts, wiring the
// staleness analyzer's coverage/fan-out context from the coverage
// analyzer's results and the graph, since staleness can't derive either
// fact on its own.
func (e *Engine) runAnalyzers(ctx context.Context, artifacts []*graph.Artifact) ([]analyzer.Signal, map[string]float64, error) {
	var signals []analyzer.Signal
	var coverageSignals map[string]analyzer.Signal

	for _, a := range e.analyzers {
		if _, ok := a.(*analyzer.StalenessAnalyzer); ok {
			continue
		}
		found, err := a.Run(ctx, e.projectRoot, artifacts)
		if err != nil {
			logging.Get(logging.CategoryEngine).Warn("analyzer %s: %v", a.Name(), err)
			continue
		}
		if a.Name() == "coverage" {
			coverageSignals = found
		}
		for _, s := range found {
			signals = append(signals, s)
		}
	}

	coverageByArtifact := make(map[string]float64, len(artifacts))
	fanOutByArtifact := make(map[string]int, len(artifacts))
	for _, art := range artifacts {
		coverageByArtifact[art.ID] = 1.0 // no below-threshold signal means assumed adequately covered
		if fo, err := e.graph.FanOut(art.ID); err == nil {
			fanOutByArtifact[art.ID] = fo
		}
	}
	for id, s := range coverageSignals {
		if pct, ok := s.Evidence["coverage"].(float64); ok {
			coverageByArtifact[id] = pct
		}
	}

	for _, a := range e.analyzers {
		stale, ok := a.(*analyzer.StalenessAnalyzer)
		if !ok {
			continue
		}
		found, err := stale.WithContext(coverageByArtifact, fanOutByArtifact).Run(ctx, e.projectRoot, artifacts)
		if err != nil {
			logging.Get(logging.CategoryEngine).Warn("analyzer staleness: %v", err)
			continue
		}
		for _, s := range found {
			signals = append(signals, s)
		}
	}

	return signals, coverageByArtifact, nil
}

func buildWeaknessReport(projectRoot string, filesParsed int, scores []analyzer.WeaknessScore) *WeaknessReport {
	report := &WeaknessReport{ProjectRoot: projectRoot, FilesScanned: filesParsed, Scores: scores}
	for _, s := range scores {
		switch s.CascadeRisk {
		case analyzer.RiskCritical:
			report.CriticalCount++
		case analyzer.RiskHigh:
			report.HighCount++
		case analyzer.RiskMedium:
			report.MediumCount++
		default:
			report.LowCount++
		}
	}
	return report
}

// Preview computes the cascade preview rooted at weakArtifactID against
// the current graph. IncludeDeltas is accepted but reserved; the returned
// preview's Deltas is always nil.
func (e *Engine) Preview(ctx context.Context, weakArtifactID string, options PreviewOptions) (*cascade.Preview, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.graph.Get(weakArtifactID); err != nil {
		return nil, e.fail("plan", err, map[string]string{"artifact_id": weakArtifactID})
	}

	artifacts := e.graph.All()
	signals, _, err := e.runAnalyzers(ctx, artifacts)
	if err != nil {
		return nil, e.fail("plan", err, map[string]string{"artifact_id": weakArtifactID})
	}
	scores, err := analyzer.Score(signals, analyzer.GraphProvider{Graph: e.graph})
	if err != nil {
		return nil, e.fail("plan", err, map[string]string{"artifact_id": weakArtifactID})
	}

	preview, err := e.planner.Preview(ctx, e.graph, weakArtifactID, scores, e.projectRoot)
	if err != nil {
		return nil, e.fail("plan", err, map[string]string{"artifact_id": weakArtifactID})
	}
	if preview.CascadeTooLarge {
		return preview, &OpError{
			Kind:    KindCascadeTooLarge,
			Message: fmt.Sprintf("cascade rooted at %s exceeds configured limits", weakArtifactID),
			Phase:   "plan",
			Context: map[string]string{"artifact_id": weakArtifactID},
		}
	}

	e.publish(eventbus.EventCascadePreview, map[string]interface{}{
		"weak_node":      preview.WeakNode,
		"total_impacted": preview.TotalImpacted,
		"wave_count":     len(preview.Waves),
		"risk":           preview.RiskAssessment,
	})
	e.auditAppend(ctx, "cascade_preview", preview)
	return preview, nil
}

// StartCascade begins executing a previously computed preview under the
// given policy and returns a handle the caller drives with
// AdvanceCascade/ApproveWave/Abort.
func (e *Engine) StartCascade(ctx context.Context, preview *cascade.Preview, policy CascadePolicy) (*CascadeHandle, error) {
	if preview == nil || preview.WeakNode == "" {
		return nil, &OpError{Kind: KindInvalidPolicy, Message: "preview must name a weak node", Phase: "execute"}
	}

	e.mu.Lock()
	if _, exists := e.sessions[preview.WeakNode]; exists {
		e.mu.Unlock()
		return nil, &OpError{Kind: KindInvalidPolicy, Message: fmt.Sprintf("cascade %s is already running", preview.WeakNode), Phase: "execute"}
	}
	e.mu.Unlock()

	exec, err := e.waveExecutor.Run(ctx, preview, e.cfg, wave.Policy{AutoApprove: policy.AutoApprove})
	if err != nil {
		return nil, e.fail("execute", err, map[string]string{"artifact_id": preview.WeakNode})
	}

	e.mu.Lock()
	e.sessions[preview.WeakNode] = &cascadeSession{preview: preview, exec: exec}
	e.mu.Unlock()

	return &CascadeHandle{id: preview.WeakNode, eng: e}, nil
}

// AdvanceCascade resumes a paused session's waves until it next pauses,
// completes, or aborts, and returns the resulting state.
func (e *Engine) AdvanceCascade(ctx context.Context, handle *CascadeHandle) (*CascadeState, error) {
	session, err := e.session(handle)
	if err != nil {
		return nil, err
	}

	if !session.exec.Completed() && !session.exec.Aborted() && !session.exec.PausedForApproval() {
		if err := e.waveExecutor.Resume(ctx, session.exec, session.preview, e.cfg); err != nil {
			return nil, e.fail("execute", err, map[string]string{"artifact_id": handle.id})
		}
	} else if session.exec.PausedForApproval() {
		return nil, &OpError{Kind: KindInvalidPolicy, Message: "cascade is paused for approval; call ApproveWave first", Phase: "execute", Context: map[string]string{"artifact_id": handle.id}}
	}

	return stateOf(session.exec, len(session.preview.Waves)), nil
}

// ApproveWave clears a paused session's pause flag and resumes it through
// the wave loop until the next pause/complete/abort.
func (e *Engine) ApproveWave(ctx context.Context, handle *CascadeHandle) error {
	session, err := e.session(handle)
	if err != nil {
		return err
	}
	if session.exec.Aborted() || session.exec.Completed() {
		return &OpError{Kind: KindInvalidPolicy, Message: "cascade is already terminal", Phase: "execute", Context: map[string]string{"artifact_id": handle.id}}
	}
	session.exec.ApproveWave()
	if err := e.waveExecutor.Resume(ctx, session.exec, session.preview, e.cfg); err != nil {
		return e.fail("execute", err, map[string]string{"artifact_id": handle.id})
	}
	return nil
}

// Abort cancels a running or paused session, rolling back every touched
// file to its pre-cascade snapshot.
func (e *Engine) Abort(ctx context.Context, handle *CascadeHandle, reason string) error {
	session, err := e.session(handle)
	if err != nil {
		return err
	}
	if session.exec.Aborted() || session.exec.Completed() {
		return nil // idempotent: already terminal
	}
	if err := e.waveExecutor.Abort(ctx, session.exec, session.preview, reason); err != nil {
		return e.fail("execute", err, map[string]string{"artifact_id": handle.id})
	}
	return nil
}

func (e *Engine) session(handle *CascadeHandle) (*cascadeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	session, ok := e.sessions[handle.id]
	if !ok {
		return nil, &OpError{Kind: KindArtifactNotFound, Message: fmt.Sprintf("no running cascade for %s", handle.id), Phase: "execute", Context: map[string]string{"artifact_id": handle.id}}
	}
	return session, nil
}

func stateOf(exec *wave.CascadeExecution, totalWaves int) *CascadeState {
	confidences := exec.WaveConfidences()
	var sum float64
	for _, c := range confidences {
		sum += c.Confidence
	}
	overall := 0.0
	if len(confidences) > 0 {
		overall = sum / float64(len(confidences))
	}
	return &CascadeState{
		CascadeID:         exec.CascadeID(),
		CurrentWave:       exec.CurrentWave(),
		TotalWaves:        totalWaves,
		PausedForApproval: exec.PausedForApproval(),
		EscalatedToHuman:  exec.EscalatedToHuman(),
		Completed:         exec.Completed(),
		Aborted:           exec.Aborted(),
		AbortReason:       exec.AbortReason(),
		OverallConfidence: overall,
		WaveConfidences:   confidences,
	}
}

// VerifyIntegrations checks every required integration and detects stubs
// for the named artifact, or for the whole graph when artifactID is
// empty.
func (e *Engine) VerifyIntegrations(ctx context.Context, artifactID string) (*IntegrationReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var targets []*graph.Artifact
	if artifactID == "" {
		targets = e.graph.All()
	} else {
		art, err := e.graph.Get(artifactID)
		if err != nil {
			return nil, e.fail("verify", err, map[string]string{"artifact_id": artifactID})
		}
		targets = []*graph.Artifact{art}
	}

	report := &IntegrationReport{}
	for _, art := range targets {
		if art.IsVirtual() {
			continue
		}
		result, err := e.integVerifier.VerifyTaskComplete(art, []string{art.ProducesFile})
		if err != nil {
			logging.Get(logging.CategoryEngine).Warn("verify integrations for %s: %v", art.ID, err)
			continue
		}
		result.ArtifactID = art.ID
		report.Results = append(report.Results, result)
		for _, ir := range result.Integrations {
			evType := eventbus.EventIntegrationCheckPass
			if !ir.Satisfied {
				evType = eventbus.EventIntegrationCheckFail
			}
			e.publish(evType, map[string]string{
				"edge_id": art.ID + "->" + ir.Check.TargetArtifactID,
				"kind":    string(ir.Check.Kind),
			})
		}
		for _, stub := range result.Stubs {
			e.publish(eventbus.EventStubDetected, map[string]interface{}{
				"artifact_id": art.ID,
				"file":        stub.File,
				"line":        stub.Line,
				"stub_kind":   stub.Pattern,
			})
		}
	}
	e.auditAppend(ctx, "verify_integrations", report)
	return report, nil
}

// ExtractContract extracts the artifact's current public interface.
func (e *Engine) ExtractContract(ctx context.Context, artifactID string) (*contract.Contract, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	art, err := e.graph.Get(artifactID)
	if err != nil {
		return nil, e.fail("plan", err, map[string]string{"artifact_id": artifactID})
	}
	if art.IsVirtual() {
		return nil, &OpError{Kind: KindContractExtractionFailed, Message: "artifact has no backing file", Phase: "plan", Context: map[string]string{"artifact_id": artifactID}}
	}
	path := art.ProducesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.projectRoot, path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, e.fail("plan", err, map[string]string{"artifact_id": artifactID})
	}
	c, err := e.contracts.Extract(art.ProducesFile, src)
	if err != nil {
		return nil, e.fail("plan", err, map[string]string{"artifact_id": artifactID})
	}
	if c == nil {
		return nil, &OpError{Kind: KindContractExtractionFailed, Message: fmt.Sprintf("no extractor registered for %s", art.ProducesFile), Phase: "plan", Context: map[string]string{"artifact_id": artifactID}}
	}
	c.ArtifactID = artifactID
	e.auditAppend(ctx, "extract_contract", c)
	return c, nil
}

// ExportAudit renders the audit log entries in range r as bytes in the
// requested format ("json" or "jsonl"; anything else defaults to jsonl).
func (e *Engine) ExportAudit(ctx context.Context, r audit.Range, format string) ([]byte, error) {
	entries, err := e.auditLog.Query(ctx, r)
	if err != nil {
		return nil, e.fail("audit", err, nil)
	}
	if format == "json" {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, e.fail("audit", err, nil)
		}
		return data, nil
	}
	var buf strings.Builder
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, e.fail("audit", err, nil)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return []byte(buf.String()), nil
}

// VerifyAuditIntegrity re-walks the hash chain and reports whether it is
// intact, and how many entries verified before any break.
func (e *Engine) VerifyAuditIntegrity(ctx context.Context) (bool, int, error) {
	ok, n, err := e.auditLog.VerifyIntegrity(ctx)
	if err != nil {
		return ok, n, e.fail("audit", err, nil)
	}
	if !ok {
		return ok, n, &OpError{Kind: KindAuditIntegrityBroken, Message: fmt.Sprintf("audit chain broken after entry %d", n), Phase: "audit"}
	}
	return ok, n, nil
}

func (e *Engine) publish(t eventbus.EventType, data interface{}) {
	if _, err := e.bus.Publish(t, data); err != nil {
		logging.Get(logging.CategoryEngine).Warn("failed to publish %s: %v", t, err)
	}
}

func (e *Engine) auditAppend(ctx context.Context, action string, details interface{}) {
	payload, err := json.Marshal(details)
	sum := md5.Sum(payload)
	if err != nil {
		sum = md5.Sum([]byte(action))
	}
	if _, err := e.auditLog.Append(ctx, "engine", action, details, sum, sum); err != nil {
		logging.Get(logging.CategoryEngine).Error("audit append failed for %s: %v", action, err)
	}
}

// fail classifies err into an OpError and records the failure in the
// audit log before returning it.
func (e *Engine) fail(phase string, err error, ctxFields map[string]string) *OpError {
	opErr := classify(phase, err, ctxFields)
	e.auditAppend(context.Background(), "op_error", opErr)
	return opErr
}

func modulePathOf(projectRoot string) (string, error) {
	f, err := os.Open(filepath.Join(projectRoot, "go.mod"))
	if err != nil {
		return "", fmt.Errorf("engine: read go.mod: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module")), nil
		}
	}
	return "", fmt.Errorf("engine: no module directive in go.mod")
}

// mergeGraph folds discovered's artifacts into dst: new artifacts are
// added, existing ones have their requires/produces_file updated, and
// manually declared metadata (integrations, tier, tags, contract_declared)
// is preserved across a rescan since discovery never populates it.
func mergeGraph(dst *graph.Graph, discovered *graph.Graph) {
	arts := discovered.All()
	for _, a := range arts {
		if _, err := dst.Get(a.ID); err != nil {
			if addErr := dst.Add(&graph.Artifact{ID: a.ID, ProducesFile: a.ProducesFile}); addErr != nil {
				logging.Get(logging.CategoryEngine).Warn("merge graph: add %s: %v", a.ID, addErr)
			}
		}
	}
	for _, a := range arts {
		existing, err := dst.Get(a.ID)
		if err != nil {
			continue
		}
		existing.ProducesFile = a.ProducesFile
		existing.Requires = a.Requires
		if err := dst.Update(existing); err != nil {
			logging.Get(logging.CategoryEngine).Warn("merge graph: wire requires for %s: %v", a.ID, err)
		}
	}
}

// appendWeaknessHistory appends one summary line per scan to the
// project's trend file.
func appendWeaknessHistory(projectRoot string, report *WeaknessReport) error {
	path := filepath.Join(healthDir(projectRoot), "weakness-history.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	summary := struct {
		Timestamp     time.Time `json:"timestamp"`
		FilesScanned  int       `json:"files_scanned"`
		CriticalCount int       `json:"critical_count"`
		HighCount     int       `json:"high_count"`
		MediumCount   int       `json:"medium_count"`
		LowCount      int       `json:"low_count"`
	}{
		Timestamp:     time.Now(),
		FilesScanned:  report.FilesScanned,
		CriticalCount: report.CriticalCount,
		HighCount:     report.HighCount,
		MediumCount:   report.MediumCount,
		LowCount:      report.LowCount,
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
