// Package build assembles environments for subprocesses that run
// `go build`/`go test`/`go vet`. Nothing else in this module calls it: the
// engine builds the analyzer and verifier environment with its own
// buildEnvironment, and runner.DirectExecutor adds its allowlisted
// variables itself.
package build

import (
	"os"
	"path/filepath"
	"strings"

	"sunwell/internal/config"
	"sunwell/internal/logging"
)

// BuildConfig holds project-specific build configuration.
// This is loaded from the workspace config's "build" section.
type BuildConfig struct {
	// EnvVars are additional environment variables for builds.
	// Key examples: CGO_CFLAGS, CGO_LDFLAGS, CGO_ENABLED, CC, CXX
	EnvVars map[string]string `json:"env_vars,omitempty"`

	// GoFlags are additional flags for go build/test commands.
	GoFlags []string `json:"go_flags,omitempty"`

	// CGOPackages lists packages that require CGO (for documentation/detection).
	CGOPackages []string `json:"cgo_packages,omitempty"`
}

// DefaultBuildConfig returns sensible defaults.
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		EnvVars:     make(map[string]string),
		GoFlags:     []string{},
		CGOPackages: []string{},
	}
}

// GetBuildEnv returns the proper environment for go build/test/vet commands.
// It merges:
// 1. Current process environment (filtered to essentials)
// 2. Whitelisted env vars from the execution config
// 3. Project-specific build config (CGO_CFLAGS, etc.)
func GetBuildEnv(cfg *config.Config, workspaceRoot string) []string {
	logging.BuildDebug("building environment for workspace: %s", workspaceRoot)

	env := getBaseGoEnv()

	if cfg != nil {
		for _, key := range cfg.Execution.AllowedEnvVars {
			if val := os.Getenv(key); val != "" {
				env = append(env, key+"="+val)
				logging.BuildDebug("added whitelisted env: %s", key)
			}
		}
	}

	buildCfg := loadBuildConfig(cfg, workspaceRoot)
	for key, val := range buildCfg.EnvVars {
		env = append(env, key+"="+val)
		logging.BuildDebug("added build config env: %s=%s", key, val)
	}

	if !hasEnvKey(env, "CGO_CFLAGS") {
		if cgoFlags := detectCGOFlags(workspaceRoot); cgoFlags != "" {
			env = append(env, "CGO_CFLAGS="+cgoFlags)
			logging.BuildDebug("auto-detected CGO_CFLAGS: %s", cgoFlags)
		}
	}

	logging.BuildDebug("final build environment has %d vars", len(env))
	return env
}

// GetBuildEnvForTest returns environment for go test commands; it is
// GetBuildEnv under another name.
func GetBuildEnvForTest(cfg *config.Config, workspaceRoot string) []string {
	return GetBuildEnv(cfg, workspaceRoot)
}

// GetBuildEnvForCompile returns environment for a cross-compiled regeneration
// check, when the agent targets an OS/arch other than the host's.
func GetBuildEnvForCompile(cfg *config.Config, workspaceRoot string, targetOS, targetArch string) []string {
	env := GetBuildEnv(cfg, workspaceRoot)

	if targetOS != "" {
		env = setEnvKey(env, "GOOS", targetOS)
	}
	if targetArch != "" {
		env = setEnvKey(env, "GOARCH", targetArch)
	}

	return env
}

// getBaseGoEnv returns essential Go environment variables.
func getBaseGoEnv() []string {
	env := []string{}

	// Always include PATH for finding go binary
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	}

	// Go-specific essential vars
	essentialVars := []string{
		"GOPATH",
		"GOROOT",
		"GOCACHE",
		"GOMODCACHE",
		"HOME",        // Required on Unix
		"USERPROFILE", // Required on Windows
		"LOCALAPPDATA", // Required for GOCACHE default on Windows
		"TEMP",        // Required for go build temp files
		"TMP",
		"TMPDIR",
	}

	for _, key := range essentialVars {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}

	// Ensure GOCACHE is set - Go requires this for builds
	// If not set in environment, provide a sensible default
	if !hasEnvKey(env, "GOCACHE") {
		gocache := deriveGOCACHE()
		if gocache != "" {
			env = append(env, "GOCACHE="+gocache)
			logging.BuildDebug("Derived GOCACHE: %s", gocache)
		}
	}

	return env
}

// deriveGOCACHE determines a sensible GOCACHE path when not explicitly set.
// This prevents "GOCACHE is not defined" errors in subprocess builds.
func deriveGOCACHE() string {
	// Try standard locations in order of preference

	// 1. Check if LocalAppData is available (Windows standard)
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, "go-build")
	}

	// 2. Check USERPROFILE (Windows fallback)
	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		return filepath.Join(userProfile, ".cache", "go-build")
	}

	// 3. Check HOME (Unix standard)
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".cache", "go-build")
	}

	// 4. Use temp directory as last resort
	if tmp := os.Getenv("TEMP"); tmp != "" {
		return filepath.Join(tmp, "go-build")
	}
	if tmp := os.Getenv("TMP"); tmp != "" {
		return filepath.Join(tmp, "go-build")
	}
	if tmp := os.Getenv("TMPDIR"); tmp != "" {
		return filepath.Join(tmp, "go-build")
	}

	// Give up - Go will error but at least we tried
	return ""
}

// loadBuildConfig merges the workspace's configured build settings with
// environment auto-detection.
func loadBuildConfig(cfg *config.Config, workspaceRoot string) *BuildConfig {
	result := DefaultBuildConfig()

	if cfg != nil {
		for k, v := range cfg.Build.EnvVars {
			result.EnvVars[k] = v
		}
		result.GoFlags = append(result.GoFlags, cfg.Build.GoFlags...)
		result.CGOPackages = append(result.CGOPackages, cfg.Build.CGOPackages...)
	}

	absRoot := workspaceRoot
	if !filepath.IsAbs(workspaceRoot) {
		if abs, err := filepath.Abs(workspaceRoot); err == nil {
			absRoot = abs
		}
	}

	headers := filepath.Join(absRoot, "include")
	if _, err := os.Stat(headers); err == nil {
		if _, has := result.EnvVars["CGO_CFLAGS"]; !has {
			result.EnvVars["CGO_CFLAGS"] = "-I" + headers
			logging.BuildDebug("detected include dir at: %s", headers)
		}
	}

	return result
}

// detectCGOFlags attempts to auto-detect required CGO_CFLAGS.
// This is a fallback when no explicit config is provided.
func detectCGOFlags(workspaceRoot string) string {
	var flags []string

	// Resolve to absolute path for reliable detection
	absRoot := workspaceRoot
	if !filepath.IsAbs(workspaceRoot) {
		if abs, err := filepath.Abs(workspaceRoot); err == nil {
			absRoot = abs
		}
	}

	// Check common header locations
	headerDirs := []string{
		"sqlite_headers",
		"include",
		"vendor/include",
		"third_party/include",
	}

	for _, dir := range headerDirs {
		fullPath := filepath.Join(absRoot, dir)
		if info, err := os.Stat(fullPath); err == nil && info.IsDir() {
			flags = append(flags, "-I"+fullPath)
		}
	}

	if len(flags) > 0 {
		return strings.Join(flags, " ")
	}
	return ""
}

// hasEnvKey checks if an environment key is already set.
func hasEnvKey(env []string, key string) bool {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

// setEnvKey sets or updates an environment variable.
func setEnvKey(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = key + "=" + value
			return env
		}
	}
	return append(env, key+"="+value)
}

// MergeEnv merges additional environment variables into base env.
// Later values override earlier ones.
func MergeEnv(base []string, additional ...string) []string {
	result := make([]string, len(base))
	copy(result, base)

	for _, add := range additional {
		parts := strings.SplitN(add, "=", 2)
		if len(parts) == 2 {
			result = setEnvKey(result, parts[0], parts[1])
		}
	}

	return result
}
