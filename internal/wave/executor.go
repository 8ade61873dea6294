package wave

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"sunwell/internal/agent"
	"sunwell/internal/audit"
	"sunwell/internal/cascade"
	"sunwell/internal/config"
	"sunwell/internal/contract"
	"sunwell/internal/diff"
	"sunwell/internal/eventbus"
	"sunwell/internal/graph"
	"sunwell/internal/logging"
	"sunwell/internal/verify"
)

type waveStartData struct {
	Wave    int      `json:"wave"`
	Members []string `json:"members"`
}

type waveGeneratedData struct {
	Wave   int      `json:"wave"`
	Failed []string `json:"failed,omitempty"`
}

type artifactRegeneratedData struct {
	Wave       int    `json:"wave"`
	ArtifactID string `json:"artifact_id"`
	Added      int    `json:"added_lines"`
	Removed    int    `json:"removed_lines"`
}

type cascadeAbortedData struct {
	Reason string `json:"reason"`
}

// Policy parameterizes one cascade's run beyond the config-wide cascade
// limits: whether waves advance on their own or pause for a human to
// approve each one, as chosen by the caller starting the cascade.
type Policy struct {
	AutoApprove bool
}

// Executor drives one CascadeExecution through its waves, calling the
// regeneration agent, the verifier, and the audit/event sinks at the
// points the protocol requires.
type Executor struct {
	Graph       *graph.Graph
	Agent       agent.Agent
	Verifier    *verify.Verifier
	Bus         *eventbus.Bus
	Audit       audit.Log
	Limits      config.CascadeLimits
	ProjectRoot string
	SnapshotDir string
}

// NewExecutor builds an Executor with its fixed collaborators.
func NewExecutor(g *graph.Graph, ag agent.Agent, v *verify.Verifier, bus *eventbus.Bus, log audit.Log, limits config.CascadeLimits, projectRoot string) *Executor {
	return &Executor{
		Graph:       g,
		Agent:       ag,
		Verifier:    v,
		Bus:         bus,
		Audit:       log,
		Limits:      limits,
		ProjectRoot: projectRoot,
	}
}

// Run drives the cascade preview's waves through to completion, a pause
// for approval, or an abort. It snapshots every impacted file before wave
// 0 begins and restores them all if the cascade is aborted.
func (ex *Executor) Run(ctx context.Context, preview *cascade.Preview, cfg *config.Config, policy Policy) (*CascadeExecution, error) {
	exec := NewCascadeExecution(preview.WeakNode, len(preview.Waves), ex.Limits.MinWaveConfidence, ex.Limits.MaxConsecutiveLowConfidence, policy.AutoApprove)

	snap, err := diff.NewSnapshot(ex.snapshotDir(preview.WeakNode), ex.impactedPaths(preview))
	if err != nil {
		return nil, fmt.Errorf("wave executor: snapshot: %w", err)
	}

	if err := ex.runFrom(ctx, exec, preview, cfg, snap, 0); err != nil {
		return exec, err
	}
	return exec, nil
}

// Resume continues a paused execution starting at its current wave.
func (ex *Executor) Resume(ctx context.Context, exec *CascadeExecution, preview *cascade.Preview, cfg *config.Config) error {
	if exec.Aborted() || exec.Completed() {
		return fmt.Errorf("wave executor: resume called on a %s execution", terminalState(exec))
	}
	if exec.PausedForApproval() {
		return fmt.Errorf("wave executor: resume called while still paused for approval")
	}
	snap, err := diff.NewSnapshot(ex.snapshotDir(preview.WeakNode), ex.impactedPaths(preview))
	if err != nil {
		return fmt.Errorf("wave executor: snapshot: %w", err)
	}
	return ex.runFrom(ctx, exec, preview, cfg, snap, exec.CurrentWave())
}

func terminalState(exec *CascadeExecution) string {
	if exec.Aborted() {
		return "aborted"
	}
	return "completed"
}

func (ex *Executor) runFrom(ctx context.Context, exec *CascadeExecution, preview *cascade.Preview, cfg *config.Config, snap *diff.Snapshot, startWave int) error {
	for k := startWave; k < len(preview.Waves); k++ {
		members := preview.Waves[k]
		ex.publish(eventbus.EventWaveStart, waveStartData{Wave: k, Members: members})

		artifacts, failed := ex.regenerateWave(ctx, k, members, preview, cfg)
		ex.publish(eventbus.EventWaveGenerated, waveGeneratedData{Wave: k, Failed: failed})

		conf, err := ex.Verifier.VerifyWave(ctx, k, artifacts, preview.Contracts, cfg, ex.ProjectRoot)
		if err != nil {
			ex.abort(ctx, exec, snap, fmt.Sprintf("wave %d verification error: %v", k, err))
			return err
		}

		exec.RecordWaveCompletion(conf)
		ex.publish(eventbus.EventWaveScored, conf)
		ex.auditAppend(ctx, "wave_scored", conf)

		if exec.Aborted() {
			return nil
		}
		if exec.PausedForApproval() {
			ex.publish(eventbus.EventCascadePaused, map[string]int{"wave": k})
			ex.auditAppend(ctx, "cascade_paused", map[string]int{"wave": k})
			return nil
		}
	}

	if exec.Completed() {
		snap.Drop()
		ex.publish(eventbus.EventCascadeComplete, map[string]string{"weak_node": preview.WeakNode})
		ex.auditAppend(ctx, "cascade_complete", map[string]string{"weak_node": preview.WeakNode})
	}
	return nil
}

// regenerateWave calls the agent for every artifact in the wave, any
// order, bounded by MaxConcurrentRegenerations. A single artifact's
// failure doesn't stop the rest of the wave.
func (ex *Executor) regenerateWave(ctx context.Context, waveNum int, members []string, preview *cascade.Preview, cfg *config.Config) ([]*graph.Artifact, []string) {
	mode := agent.ModeRegenerate
	if waveNum > 0 {
		mode = agent.ModeUpdateCompatibility
	}

	var (
		mu        sync.Mutex
		artifacts []*graph.Artifact
		failed    []string
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(ex.Limits.MaxConcurrentRegenerations)
	for _, id := range members {
		id := id
		art, err := ex.Graph.Get(id)
		if err != nil {
			continue
		}
		mu.Lock()
		artifacts = append(artifacts, art)
		mu.Unlock()
		if art.IsVirtual() {
			continue
		}
		grp.Go(func() error {
			var frozen *contract.Contract
			if preview.Contracts != nil {
				frozen = preview.Contracts[id]
			}
			spec := agent.RegenerationSpec{
				ArtifactID:     id,
				TargetFile:     art.ProducesFile,
				Mode:           mode,
				Description:    fmt.Sprintf("regenerate %s as part of cascade rooted at %s", id, preview.WeakNode),
				FrozenContract: frozen,
			}
			result, err := ex.Agent.Regenerate(gctx, spec)
			if err != nil {
				logging.Get(logging.CategoryWave).Warn("regeneration failed for %s: %v", id, err)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				return nil
			}
			path := art.ProducesFile
			if !filepath.IsAbs(path) {
				path = filepath.Join(ex.ProjectRoot, path)
			}
			before, _ := os.ReadFile(path) // absent file reads as "": whole content is additions
			if err := os.WriteFile(path, []byte(result.Content), 0644); err != nil {
				logging.Get(logging.CategoryWave).Warn("writing regenerated content for %s: %v", id, err)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				return nil
			}
			added, removed := diff.ComputeDiff(path, path, string(before), result.Content).Stats()
			ex.publish(eventbus.EventArtifactRegenerated, artifactRegeneratedData{Wave: waveNum, ArtifactID: id, Added: added, Removed: removed})
			ex.auditAppend(gctx, "artifact_regenerated", artifactRegeneratedData{Wave: waveNum, ArtifactID: id, Added: added, Removed: removed})
			return nil
		})
	}
	grp.Wait()
	return artifacts, failed
}

func (ex *Executor) abort(ctx context.Context, exec *CascadeExecution, snap *diff.Snapshot, reason string) {
	exec.Abort(reason)
	if err := snap.Restore(); err != nil {
		logging.Get(logging.CategoryWave).Error("failed to restore snapshot after abort: %v", err)
	}
	ex.publish(eventbus.EventCascadeAborted, cascadeAbortedData{Reason: reason})
	ex.auditAppend(ctx, "cascade_aborted", cascadeAbortedData{Reason: reason})
}

// Abort aborts a running execution from outside the wave loop (a caller
// deciding to cancel a paused cascade), restoring every touched file.
func (ex *Executor) Abort(ctx context.Context, exec *CascadeExecution, preview *cascade.Preview, reason string) error {
	snap, err := diff.NewSnapshot(ex.snapshotDir(preview.WeakNode), ex.impactedPaths(preview))
	if err != nil {
		return fmt.Errorf("wave executor: snapshot for abort: %w", err)
	}
	ex.abort(ctx, exec, snap, reason)
	return nil
}

func (ex *Executor) snapshotDir(cascadeID string) string {
	if ex.SnapshotDir != "" {
		return ex.SnapshotDir
	}
	return filepath.Join(ex.ProjectRoot, ".health", "snapshots", cascadeID)
}

func (ex *Executor) impactedPaths(preview *cascade.Preview) []string {
	ids := append([]string{preview.WeakNode}, preview.TransitiveDependents...)
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		art, err := ex.Graph.Get(id)
		if err != nil || art.IsVirtual() {
			continue
		}
		path := art.ProducesFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(ex.ProjectRoot, path)
		}
		paths = append(paths, path)
	}
	return paths
}

func (ex *Executor) publish(t eventbus.EventType, data interface{}) {
	if ex.Bus == nil {
		return
	}
	if _, err := ex.Bus.Publish(t, data); err != nil {
		logging.Get(logging.CategoryWave).Warn("failed to publish %s: %v", t, err)
	}
}

func (ex *Executor) auditAppend(ctx context.Context, action string, details interface{}) {
	if ex.Audit == nil {
		return
	}
	if _, err := ex.Audit.Append(ctx, "wave-executor", action, details, [16]byte{}, [16]byte{}); err != nil {
		logging.Get(logging.CategoryWave).Warn("failed to audit %s: %v", action, err)
	}
}
