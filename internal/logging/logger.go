// Package logging provides category-scoped structured logging on top of
// zap. Every component logs through a named category so that a single
// config file can turn a category's debug output on or off without
// touching code, and so log lines carry the component they came from.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logical subsystem for filtering and file routing.
type Category string

const (
	CategoryBoot        Category = "boot"
	CategoryCLI         Category = "cli"
	CategoryConfig      Category = "config"
	CategoryBuild       Category = "build"
	CategoryRunner      Category = "runner"
	CategoryScan        Category = "scan"
	CategoryGraph       Category = "graph"
	CategoryContract    Category = "contract"
	CategoryAnalyzer    Category = "analyzer"
	CategoryCascade     Category = "cascade"
	CategoryWave        Category = "wave"
	CategoryVerify      Category = "verify"
	CategoryIntegration Category = "integration"
	CategoryAudit       Category = "audit"
	CategoryEventBus    Category = "eventbus"
	CategoryAgent       Category = "agent"
	CategoryEngine      Category = "engine"
)

// KnownCategories lists every category a component actually logs
// through, the set config.LoggingConfig.Validate checks its
// per-category toggles against.
func KnownCategories() []Category {
	return []Category{
		CategoryBoot, CategoryCLI, CategoryConfig, CategoryBuild,
		CategoryRunner, CategoryScan, CategoryGraph, CategoryContract,
		CategoryAnalyzer, CategoryCascade, CategoryWave, CategoryVerify,
		CategoryIntegration, CategoryAudit, CategoryEventBus, CategoryAgent,
		CategoryEngine,
	}
}

var (
	mu         sync.RWMutex
	base       *zap.Logger
	loggers    = make(map[Category]*Logger)
	debugMode  bool
	categories map[string]bool
	initOnce   sync.Once
)

// Logger wraps a category-scoped zap sugared logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

// Initialize sets up logging for a workspace. Logs are written under
// <workspaceRoot>/.health/logs/health-<date>.log as well as stderr.
// debug enables Debug-level output; enabledCategories, if non-nil,
// restricts debug output to the named categories (info/warn/error always
// pass through).
func Initialize(workspaceRoot string, debug bool, enabledCategories map[string]bool) error {
	mu.Lock()
	defer mu.Unlock()

	debugMode = debug
	categories = enabledCategories
	logDir := filepath.Join(workspaceRoot, ".health", "logs")

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("health-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level)
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), zapcore.WarnLevel)

	base = zap.New(zapcore.NewTee(fileCore, consoleCore))
	loggers = make(map[Category]*Logger)
	return nil
}

func ensureInitialized() {
	initOnce.Do(func() {
		mu.Lock()
		if base == nil {
			base = zap.NewNop()
		}
		mu.Unlock()
	})
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// IsCategoryEnabled reports whether debug-level output is enabled for a
// category. Info/Warn/Error are always enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !debugMode {
		return false
	}
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// IsDebugMode reports whether debug logging is enabled at all.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if !IsCategoryEnabled(l.category) {
		return
	}
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger annotated with structured fields, preserving the
// category for enablement checks.
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(fields...)}
}

// Timer measures and logs the duration of an operation when stopped.
type Timer struct {
	logger *Logger
	label  string
	start  time.Time
}

// StartTimer begins timing an operation under a category.
func StartTimer(category Category, label string) *Timer {
	return &Timer{logger: Get(category), label: label, start: time.Now()}
}

// Stop logs the elapsed duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("%s took %s", t.label, elapsed)
	return elapsed
}

// CloseAll flushes all category loggers.
func CloseAll() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// The categories below get short top-level convenience wrappers because
// they are used from packages that predate the per-category Get() idiom
// (config, build, runner) or from the CLI entrypoint. Other categories are
// addressed via logging.Get(logging.CategoryX) directly.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Config(format string, args ...interface{})      { Get(CategoryConfig).Info(format, args...) }
func ConfigDebug(format string, args ...interface{}) { Get(CategoryConfig).Debug(format, args...) }
func ConfigError(format string, args ...interface{}) { Get(CategoryConfig).Error(format, args...) }

func BuildDebug(format string, args ...interface{}) { Get(CategoryBuild).Debug(format, args...) }

func Runner(format string, args ...interface{})      { Get(CategoryRunner).Info(format, args...) }
func RunnerDebug(format string, args ...interface{}) { Get(CategoryRunner).Debug(format, args...) }
func RunnerWarn(format string, args ...interface{})  { Get(CategoryRunner).Warn(format, args...) }
func RunnerError(format string, args ...interface{}) { Get(CategoryRunner).Error(format, args...) }

func CLI(format string, args ...interface{})      { Get(CategoryCLI).Info(format, args...) }
func CLIDebug(format string, args ...interface{}) { Get(CategoryCLI).Debug(format, args...) }
func CLIError(format string, args ...interface{}) { Get(CategoryCLI).Error(format, args...) }
