package engine

import (
	"errors"
	"fmt"

	"sunwell/internal/contract"
	"sunwell/internal/graph"
)

// ErrorKind classifies an OpError at the public-operation boundary. It is
// a closed enumeration, not an open hierarchy: new kinds require a
// matching branch in classify.
type ErrorKind string

const (
	KindArtifactNotFound         ErrorKind = "artifact_not_found"
	KindInvalidPolicy            ErrorKind = "invalid_policy"
	KindCascadeTooLarge          ErrorKind = "cascade_too_large"
	KindDuplicateID              ErrorKind = "duplicate_id"
	KindDanglingRequires         ErrorKind = "dangling_requires"
	KindCycleDetected            ErrorKind = "cycle_detected"
	KindContractExtractionFailed ErrorKind = "contract_extraction_failed"
	KindEscalated                ErrorKind = "escalated"
	KindAborted                  ErrorKind = "aborted"
	KindAuditAppendFailed        ErrorKind = "audit_append_failed"
	KindAuditIntegrityBroken     ErrorKind = "audit_integrity_broken"
	KindInternal                 ErrorKind = "internal"
)

// OpError is the typed failure every public Engine method returns on the
// error path. It satisfies the error interface so callers that only care
// about Error() still work; callers that want the taxonomy use errors.As.
type OpError struct {
	Kind    ErrorKind
	Message string
	Phase   string
	Context map[string]string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s (phase=%s)", e.Kind, e.Message, e.Phase)
}

func newOpError(kind ErrorKind, phase string, err error, ctxFields map[string]string) *OpError {
	return &OpError{Kind: kind, Message: err.Error(), Phase: phase, Context: ctxFields}
}

// classify maps an internal error, via errors.As against the sentinel
// types each domain package exposes, to the closed ErrorKind taxonomy.
// Anything unrecognized becomes KindInternal rather than leaking the
// domain-internal error shape across the engine boundary.
func classify(phase string, err error, ctxFields map[string]string) *OpError {
	if err == nil {
		return nil
	}
	var notFound *graph.NotFoundError
	if errors.As(err, &notFound) {
		return newOpError(KindArtifactNotFound, phase, err, ctxFields)
	}
	var dup *graph.DuplicateIDError
	if errors.As(err, &dup) {
		return newOpError(KindDuplicateID, phase, err, ctxFields)
	}
	var dangling *graph.DanglingRequiresError
	if errors.As(err, &dangling) {
		return newOpError(KindDanglingRequires, phase, err, ctxFields)
	}
	var cycle *graph.CycleDetectedError
	if errors.As(err, &cycle) {
		return newOpError(KindCycleDetected, phase, err, ctxFields)
	}
	var extractFailed *contract.ExtractionFailedError
	if errors.As(err, &extractFailed) {
		return newOpError(KindContractExtractionFailed, phase, err, ctxFields)
	}
	return newOpError(KindInternal, phase, err, ctxFields)
}
