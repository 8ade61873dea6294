package build

import (
	"os"
	"path/filepath"
	"testing"

	"sunwell/internal/config"
)

func clearEnvVars(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestDeriveGOCACHE_Precedence(t *testing.T) {
	keys := []string{"LOCALAPPDATA", "USERPROFILE", "HOME", "TEMP", "TMP", "TMPDIR"}

	t.Run("none", func(t *testing.T) {
		clearEnvVars(t, keys...)
		if got := deriveGOCACHE(); got != "" {
			t.Fatalf("deriveGOCACHE() = %q, want empty", got)
		}
	})

	t.Run("localappdata", func(t *testing.T) {
		clearEnvVars(t, keys...)
		localAppData := t.TempDir()
		userProfile := t.TempDir()
		home := t.TempDir()
		temp := t.TempDir()

		t.Setenv("LOCALAPPDATA", localAppData)
		t.Setenv("USERPROFILE", userProfile)
		t.Setenv("HOME", home)
		t.Setenv("TEMP", temp)

		want := filepath.Join(localAppData, "go-build")
		if got := deriveGOCACHE(); got != want {
			t.Fatalf("deriveGOCACHE() = %q, want %q", got, want)
		}
	})

	t.Run("userprofile", func(t *testing.T) {
		clearEnvVars(t, keys...)
		userProfile := t.TempDir()
		home := t.TempDir()
		temp := t.TempDir()

		t.Setenv("USERPROFILE", userProfile)
		t.Setenv("HOME", home)
		t.Setenv("TEMP", temp)

		want := filepath.Join(userProfile, ".cache", "go-build")
		if got := deriveGOCACHE(); got != want {
			t.Fatalf("deriveGOCACHE() = %q, want %q", got, want)
		}
	})

	t.Run("home", func(t *testing.T) {
		clearEnvVars(t, keys...)
		home := t.TempDir()
		temp := t.TempDir()

		t.Setenv("HOME", home)
		t.Setenv("TEMP", temp)

		want := filepath.Join(home, ".cache", "go-build")
		if got := deriveGOCACHE(); got != want {
			t.Fatalf("deriveGOCACHE() = %q, want %q", got, want)
		}
	})

	t.Run("temp", func(t *testing.T) {
		clearEnvVars(t, keys...)
		temp := t.TempDir()

		t.Setenv("TEMP", temp)

		want := filepath.Join(temp, "go-build")
		if got := deriveGOCACHE(); got != want {
			t.Fatalf("deriveGOCACHE() = %q, want %q", got, want)
		}
	})
}

func TestEnvKeyHelpers(t *testing.T) {
	env := []string{"FOO=1", "BAR=2"}

	if !hasEnvKey(env, "FOO") {
		t.Fatalf("hasEnvKey(env, FOO) = false, want true")
	}
	if hasEnvKey(env, "BA") {
		t.Fatalf("hasEnvKey(env, BA) = true, want false")
	}

	updated := setEnvKey(append([]string{}, env...), "FOO", "3")
	if !hasEnvKey(updated, "FOO") {
		t.Fatalf("setEnvKey did not retain FOO key")
	}
	if updated[0] != "FOO=3" {
		t.Fatalf("setEnvKey updated[0] = %q, want %q", updated[0], "FOO=3")
	}

	added := setEnvKey(append([]string{}, env...), "BAZ", "9")
	if !hasEnvKey(added, "BAZ") {
		t.Fatalf("setEnvKey did not add BAZ key")
	}

	merged := MergeEnv(env, "BAR=7", "BAZ=9")
	if !hasEnvKey(merged, "BAR") || !hasEnvKey(merged, "BAZ") {
		t.Fatalf("MergeEnv missing expected keys: %v", merged)
	}
	for _, entry := range merged {
		if entry == "BAR=2" {
			t.Fatalf("MergeEnv did not override BAR: %v", merged)
		}
	}
}

func TestDetectCGOFlags(t *testing.T) {
	root := t.TempDir()

	dirs := []string{
		filepath.Join(root, "include"),
		filepath.Join(root, "vendor", "include"),
		filepath.Join(root, "third_party", "include"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdirAll(%q): %v", dir, err)
		}
	}

	got := detectCGOFlags(root)
	want := "-I" + dirs[0] + " " + "-I" + dirs[1] + " " + "-I" + dirs[2]
	if got != want {
		t.Fatalf("detectCGOFlags() = %q, want %q", got, want)
	}
}

func TestLoadBuildConfig(t *testing.T) {
	root := t.TempDir()
	headers := filepath.Join(root, "include")
	if err := os.MkdirAll(headers, 0o755); err != nil {
		t.Fatalf("mkdirAll(%q): %v", headers, err)
	}

	t.Run("detects_include_dir", func(t *testing.T) {
		cfg := loadBuildConfig(nil, root)
		if got, want := cfg.EnvVars["CGO_CFLAGS"], "-I"+headers; got != want {
			t.Fatalf("cfg.EnvVars[CGO_CFLAGS] = %q, want %q", got, want)
		}
	})

	t.Run("config_overrides_detection", func(t *testing.T) {
		userCfg := &config.Config{
			Build: config.BuildConfig{
				EnvVars: map[string]string{
					"CGO_CFLAGS": "-Icustom",
				},
				CGOPackages: []string{"custompkg"},
			},
		}
		cfg := loadBuildConfig(userCfg, root)
		if got, want := cfg.EnvVars["CGO_CFLAGS"], "-Icustom"; got != want {
			t.Fatalf("cfg.EnvVars[CGO_CFLAGS] = %q, want %q", got, want)
		}

		found := false
		for _, pkg := range cfg.CGOPackages {
			if pkg == "custompkg" {
				found = true
			}
		}
		if !found {
			t.Fatalf("cfg.CGOPackages missing custompkg: %v", cfg.CGOPackages)
		}
	})
}
