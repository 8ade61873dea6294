// Package engine is the single seam the CLI depends on: every public
// operation (scan, preview, cascade lifecycle, integration/contract
// verification, audit export) is a method on Engine, wiring together the
// graph, analyzers, cascade planner, wave executor, verifiers, event bus,
// and audit log constructed once at New.
package engine

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sunwell/internal/agent"
	"sunwell/internal/analyzer"
	"sunwell/internal/cascade"
	"sunwell/internal/config"
	"sunwell/internal/contract"
	"sunwell/internal/eventbus"
	"sunwell/internal/graph"
	"sunwell/internal/integration"
	"sunwell/internal/logging"
	"sunwell/internal/runner"
	"sunwell/internal/scan"
	"sunwell/internal/verify"
	"sunwell/internal/wave"

	auditpkg "sunwell/internal/audit"
)

// WeaknessReport is the output of Scan: every artifact's weakness score,
// plus the counts used to populate the scan_complete event.
type WeaknessReport struct {
	ProjectRoot   string                   `json:"project_root"`
	FilesScanned  int                      `json:"files_scanned"`
	Scores        []analyzer.WeaknessScore `json:"scores"`
	CriticalCount int                      `json:"critical_count"`
	HighCount     int                      `json:"high_count"`
	MediumCount   int                      `json:"medium_count"`
	LowCount      int                      `json:"low_count"`
}

// PreviewOptions parameterizes Preview. IncludeDeltas is reserved (§9.2);
// the resulting preview's Deltas field is always nil.
type PreviewOptions struct {
	IncludeDeltas bool
}

// CascadePolicy parameterizes StartCascade beyond the configured cascade
// limits.
type CascadePolicy struct {
	AutoApprove bool
}

// CascadeState is the snapshot AdvanceCascade returns: enough to decide
// whether to keep driving, wait for approval, or report a terminal state.
type CascadeState struct {
	CascadeID         string                   `json:"cascade_id"`
	CurrentWave       int                      `json:"current_wave"`
	TotalWaves        int                      `json:"total_waves"`
	PausedForApproval bool                     `json:"paused_for_approval"`
	EscalatedToHuman  bool                     `json:"escalated_to_human"`
	Completed         bool                     `json:"completed"`
	Aborted           bool                     `json:"aborted"`
	AbortReason       string                   `json:"abort_reason,omitempty"`
	OverallConfidence float64                  `json:"overall_confidence"`
	WaveConfidences   []*verify.WaveConfidence `json:"wave_confidences"`
}

// IntegrationReport is the output of VerifyIntegrations.
type IntegrationReport struct {
	Results []*integration.TaskVerificationResult `json:"results"`
}

// cascadeSession is everything the engine keeps in memory for one
// in-flight cascade, keyed by cascade id (the weak node it is rooted at).
type cascadeSession struct {
	preview *cascade.Preview
	exec    *wave.CascadeExecution
}

// CascadeHandle is the caller's reference to a started cascade. It
// implements io.Closer: closing it releases the engine's in-memory
// bookkeeping for the session. It does not touch the on-disk rollback
// snapshot, which is keyed by cascade id and outlives the handle so a
// cascade paused in one process can be resumed in the next.
type CascadeHandle struct {
	id     string
	eng    *Engine
	closed bool
}

// ID returns the cascade id (the weak node the cascade is rooted at).
func (h *CascadeHandle) ID() string { return h.id }

// Close releases the engine's in-memory session for this handle. It is
// safe to call more than once.
func (h *CascadeHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.eng.mu.Lock()
	delete(h.eng.sessions, h.id)
	h.eng.mu.Unlock()
	return nil
}

// Engine holds every collaborator constructed once at New and passed
// nowhere as package-level state, the one exception being the
// process-global convenience logging package itself.
type Engine struct {
	cfg         *config.Config
	projectRoot string

	mu       sync.Mutex
	graph    *graph.Graph
	sessions map[string]*cascadeSession

	executor      runner.Executor
	buildEnv      []string
	analyzers     []analyzer.Analyzer
	planner       *cascade.Planner
	waveVerifier  *verify.Verifier
	integVerifier *integration.Verifier
	waveExecutor  *wave.Executor
	contracts     *contract.Registry
	bus           *eventbus.Bus
	auditLog      *auditpkg.FileLog
	agent         agent.Agent

	busCancel context.CancelFunc
}

// New wires every collaborator for one project root. It loads a persisted
// graph if one exists under projectRoot/.health/graph.json, or starts
// from an empty graph otherwise (the first Scan populates it).
func New(cfg *config.Config, projectRoot string) (*Engine, error) {
	if err := os.MkdirAll(healthDir(projectRoot), 0755); err != nil {
		return nil, fmt.Errorf("engine: create state dir: %w", err)
	}

	auditLog, err := auditpkg.OpenFileLog(auditpkg.DefaultLogPath(projectRoot), cfg.AuditSigningKey())
	if err != nil {
		return nil, fmt.Errorf("engine: open audit log: %w", err)
	}

	bus := eventbus.New(eventbus.DefaultBufferSize)
	busCtx, busCancel := context.WithCancel(context.Background())
	go auditpkg.RunSubscriber(busCtx, bus, auditLog)

	buildEnv := buildEnvironment(cfg)
	execFactory := runner.NewExecutorFactory(runner.ExecutorConfig{
		DefaultWorkingDir:  cfg.Execution.WorkingDirectory,
		DefaultTimeout:     cfg.GetExecutionTimeout(),
		MaxTimeout:         cfg.GetExecutionTimeout() * 10,
		AllowedEnvironment: cfg.Execution.AllowedEnvVars,
		MaxOutputBytes:     10 * 1024 * 1024,
	})
	rawExec, err := execFactory.CreateFromConfig(runner.SandboxNone)
	if err != nil {
		return nil, fmt.Errorf("engine: build executor: %w", err)
	}
	exec := rawExec.(*runner.DirectExecutor)
	exec.SetAuditCallback(func(ev runner.AuditEvent) {
		auditSubprocessEvent(auditLog, ev)
	})

	g, err := loadOrEmptyGraph(graphPath(projectRoot))
	if err != nil {
		return nil, err
	}

	ag, err := buildAgent(cfg, exec)
	if err != nil {
		return nil, err
	}

	waveVerifier := verify.NewVerifier(exec, buildEnv)

	eng := &Engine{
		cfg:           cfg,
		projectRoot:   projectRoot,
		graph:         g,
		sessions:      make(map[string]*cascadeSession),
		executor:      exec,
		buildEnv:      buildEnv,
		analyzers:     analyzer.New(cfg, exec, buildEnv),
		planner:       cascade.NewPlanner(cfg.Cascade),
		waveVerifier:  waveVerifier,
		integVerifier: integration.NewVerifier(projectRoot),
		contracts:     contract.NewRegistry(),
		bus:           bus,
		auditLog:      auditLog,
		agent:         ag,
		busCancel:     busCancel,
	}
	eng.waveExecutor = wave.NewExecutor(g, ag, waveVerifier, bus, auditLog, cfg.Cascade, projectRoot)
	return eng, nil
}

// Close releases the engine's process-wide resources: the audit log file
// handle and the event bus's subscriber goroutine.
func (e *Engine) Close() error {
	e.busCancel()
	e.bus.Close()
	return e.auditLog.Close()
}

func healthDir(projectRoot string) string { return filepath.Join(projectRoot, ".health") }
func graphPath(projectRoot string) string { return filepath.Join(healthDir(projectRoot), "graph.json") }

func loadOrEmptyGraph(path string) (*graph.Graph, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return graph.New(), nil
		}
		return nil, fmt.Errorf("engine: stat graph: %w", err)
	}
	g, err := graph.Load(path)
	if err != nil {
		return nil, fmt.Errorf("engine: load graph: %w", err)
	}
	return g, nil
}

func buildEnvironment(cfg *config.Config) []string {
	env := make([]string, 0, len(cfg.Execution.AllowedEnvVars)+len(cfg.Build.EnvVars))
	for _, name := range cfg.Execution.AllowedEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, fmt.Sprintf("%s=%s", name, v))
		}
	}
	for k, v := range cfg.Build.EnvVars {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func buildAgent(cfg *config.Config, exec runner.Executor) (agent.Agent, error) {
	var base agent.Agent
	switch {
	case cfg.Agent.Endpoint != "":
		base = agent.NewHTTPAgent(cfg.Agent.Endpoint, cfg.GetAgentTimeout())
	case len(cfg.Agent.Command) > 0:
		base = agent.NewSubprocessAgent(exec, cfg.Agent.Command, nil)
	default:
		return nil, fmt.Errorf("engine: no regeneration agent configured (set agent.command or agent.endpoint)")
	}
	return agent.NewRetryAgent(base, cfg.Agent.MaxRetries), nil
}

// auditSubprocessEvent translates one runner-level execution event into
// the domain audit chain, the same "tool invocation, chained into the
// cascade's audit trail" treatment every other subprocess gets.
func auditSubprocessEvent(log auditpkg.Log, ev runner.AuditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	sum := md5.Sum(payload)
	action := "tool_" + string(ev.Type)
	if _, err := log.Append(context.Background(), "runner", action, ev, sum, sum); err != nil {
		logging.Get(logging.CategoryEngine).Warn("failed to audit tool event: %v", err)
	}
}
