package runner

import (
	"fmt"
)

// ExecutorFactory creates executors based on configuration.
type ExecutorFactory struct {
	config ExecutorConfig
}

// NewExecutorFactory creates a new executor factory.
func NewExecutorFactory(config ExecutorConfig) *ExecutorFactory {
	return &ExecutorFactory{config: config}
}

// CreateDirect creates a direct executor (no sandboxing).
func (f *ExecutorFactory) CreateDirect() *DirectExecutor {
	return NewDirectExecutorWithConfig(f.config)
}

// CreateFromConfig creates an executor for the requested sandbox mode.
// Only SandboxNone is implemented; other modes are rejected rather than
// silently downgraded to a direct run.
func (f *ExecutorFactory) CreateFromConfig(sandboxMode SandboxMode) (Executor, error) {
	switch sandboxMode {
	case SandboxNone, "":
		return f.CreateDirect(), nil
	default:
		return nil, fmt.Errorf("unsupported sandbox mode: %s", sandboxMode)
	}
}

