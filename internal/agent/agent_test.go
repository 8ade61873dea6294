package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/runner"
)

type fakeExecutor struct {
	result *runner.ExecutionResult
	err    error
	seen   []runner.Command
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd runner.Command) (*runner.ExecutionResult, error) {
	f.seen = append(f.seen, cmd)
	return f.result, f.err
}
func (f *fakeExecutor) Capabilities() runner.ExecutorCapabilities { return runner.ExecutorCapabilities{Name: "fake"} }
func (f *fakeExecutor) Validate(cmd runner.Command) error         { return nil }

func TestSubprocessAgent_SendsSpecOnStdinAndParsesResult(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, ExitCode: 0, Stdout: `{"content":"package x\n"}`}}
	a := NewSubprocessAgent(exec, []string{"my-agent"}, nil)

	spec := RegenerationSpec{ArtifactID: "x", Mode: ModeRegenerate}
	result, err := a.Regenerate(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "package x\n", result.Content)

	require.Len(t, exec.seen, 1)
	var sentSpec RegenerationSpec
	require.NoError(t, json.Unmarshal([]byte(exec.seen[0].Stdin), &sentSpec))
	assert.Equal(t, "x", sentSpec.ArtifactID)
}

func TestSubprocessAgent_NonZeroExitIsRegenerationFailed(t *testing.T) {
	exec := &fakeExecutor{result: &runner.ExecutionResult{Success: true, ExitCode: 1, Stderr: "boom"}}
	a := NewSubprocessAgent(exec, []string{"my-agent"}, nil)

	_, err := a.Regenerate(context.Background(), RegenerationSpec{ArtifactID: "x"})
	require.Error(t, err)
	var failed *RegenerationFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestSubprocessAgent_NoCommandConfigured(t *testing.T) {
	a := NewSubprocessAgent(&fakeExecutor{}, nil, nil)
	_, err := a.Regenerate(context.Background(), RegenerationSpec{})
	assert.Error(t, err)
}

func TestHTTPAgent_PostsAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var spec RegenerationSpec
		require.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
		assert.Equal(t, "x", spec.ArtifactID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":"hello"}`))
	}))
	defer srv.Close()

	a := NewHTTPAgent(srv.URL, time.Second)
	result, err := a.Regenerate(context.Background(), RegenerationSpec{ArtifactID: "x"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Content)
}

func TestHTTPAgent_ErrorStatusIsRegenerationFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("server exploded"))
	}))
	defer srv.Close()

	a := NewHTTPAgent(srv.URL, time.Second)
	_, err := a.Regenerate(context.Background(), RegenerationSpec{ArtifactID: "x"})
	require.Error(t, err)
	var failed *RegenerationFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestHTTPAgent_NoEndpointConfigured(t *testing.T) {
	a := NewHTTPAgent("", time.Second)
	_, err := a.Regenerate(context.Background(), RegenerationSpec{})
	assert.Error(t, err)
}

type flakyAgent struct {
	failuresBeforeSuccess int
	calls                 int
}

func (f *flakyAgent) Regenerate(ctx context.Context, spec RegenerationSpec) (*RegenerationResult, error) {
	f.calls++
	if f.calls <= f.failuresBeforeSuccess {
		return nil, errors.New("transient failure")
	}
	return &RegenerationResult{Content: "ok"}, nil
}

func TestRetryAgent_RetriesUntilSuccess(t *testing.T) {
	inner := &flakyAgent{failuresBeforeSuccess: 2}
	a := NewRetryAgent(inner, 3)
	a.retryDelay = func(int) time.Duration { return time.Millisecond }

	result, err := a.Regenerate(context.Background(), RegenerationSpec{})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryAgent_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyAgent{failuresBeforeSuccess: 100}
	a := NewRetryAgent(inner, 2)
	a.retryDelay = func(int) time.Duration { return time.Millisecond }

	_, err := a.Regenerate(context.Background(), RegenerationSpec{})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls) // initial + 2 retries
}
