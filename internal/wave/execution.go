// Package wave drives a cascade preview's waves to completion, one at a
// time, through regeneration, verification, and the confidence-gated
// pause/resume/abort state machine. The state machine and the executor
// that drives it are kept in one package deliberately: CascadeExecution's
// invariants (current_wave, paused_for_approval, escalated_to_human) must
// only change through the three methods below, and splitting them apart
// would let unrelated code reach in and mutate the fields directly.
package wave

import (
	"sunwell/internal/verify"
)

// CascadeExecution is the pure state of one cascade run. Its zero value is
// not meaningful; build with NewCascadeExecution.
type CascadeExecution struct {
	cascadeID                   string
	totalWaves                  int
	confidenceThreshold         float64
	maxConsecutiveLowConfidence int
	autoApprove                 bool

	currentWave              int
	consecutiveLowConfidence int
	waveConfidences          []*verify.WaveConfidence
	pausedForApproval        bool
	escalatedToHuman         bool
	completed                bool
	aborted                  bool
	abortReason              string
}

// NewCascadeExecution builds the execution state for a cascade with
// totalWaves waves, gated at confidenceThreshold, escalating to a human
// after maxConsecutiveLowConfidence waves in a row fall short.
func NewCascadeExecution(cascadeID string, totalWaves int, confidenceThreshold float64, maxConsecutiveLowConfidence int, autoApprove bool) *CascadeExecution {
	return &CascadeExecution{
		cascadeID:                   cascadeID,
		totalWaves:                  totalWaves,
		confidenceThreshold:         confidenceThreshold,
		maxConsecutiveLowConfidence: maxConsecutiveLowConfidence,
		autoApprove:                 autoApprove,
	}
}

func (e *CascadeExecution) CascadeID() string             { return e.cascadeID }
func (e *CascadeExecution) CurrentWave() int              { return e.currentWave }
func (e *CascadeExecution) PausedForApproval() bool       { return e.pausedForApproval }
func (e *CascadeExecution) EscalatedToHuman() bool        { return e.escalatedToHuman }
func (e *CascadeExecution) Completed() bool               { return e.completed }
func (e *CascadeExecution) Aborted() bool                 { return e.aborted }
func (e *CascadeExecution) AbortReason() string           { return e.abortReason }
func (e *CascadeExecution) ConsecutiveLowConfidence() int { return e.consecutiveLowConfidence }

func (e *CascadeExecution) WaveConfidences() []*verify.WaveConfidence {
	return append([]*verify.WaveConfidence(nil), e.waveConfidences...)
}

// RecordWaveCompletion folds a wave's confidence score into the
// execution's running state, deciding whether the cascade pauses for
// approval, escalates to a human, or is free to continue.
func (e *CascadeExecution) RecordWaveCompletion(conf *verify.WaveConfidence) {
	if e.aborted || e.completed {
		return
	}

	e.waveConfidences = append(e.waveConfidences, conf)

	if conf.Confidence < e.confidenceThreshold {
		e.consecutiveLowConfidence++
		if e.consecutiveLowConfidence >= e.maxConsecutiveLowConfidence {
			e.escalatedToHuman = true
			e.autoApprove = false
			e.pausedForApproval = true
		} else {
			e.pausedForApproval = true
		}
	} else {
		e.consecutiveLowConfidence = 0
		if !e.autoApprove {
			e.pausedForApproval = true
		}
	}

	e.currentWave++
	if e.currentWave >= e.totalWaves {
		e.completed = true
	}
}

// ApproveWave clears paused_for_approval (but not escalated_to_human) so
// the Executor's Resume can proceed to the next wave.
func (e *CascadeExecution) ApproveWave() {
	if e.aborted || e.completed {
		return
	}
	e.pausedForApproval = false
}

// Abort is idempotent: calling it on an already-aborted or already
// completed execution is a no-op.
func (e *CascadeExecution) Abort(reason string) {
	if e.aborted || e.completed {
		return
	}
	e.aborted = true
	e.abortReason = reason
	e.pausedForApproval = false
}
