// Command health is the CLI entry point for the cascade engine: scan a
// project for weak artifacts, preview a cascade, drive it wave by wave,
// and inspect the resulting audit trail and integration state.
//
// Each verb lives in its own cmd_*.go file:
//   - cmd_scan.go             - scanCmd
//   - cmd_preview.go          - previewCmd
//   - cmd_fix.go              - fixCmd
//   - cmd_extract_contract.go - extractContractCmd
//   - cmd_audit.go            - auditCmd (audit verify, audit export)
//   - cmd_integrations.go     - integrationsCmd (integrations verify)
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sunwell/internal/config"
	"sunwell/internal/engine"
	"sunwell/internal/logging"
)

var (
	jsonOutput   bool
	configPath   string
	workspaceDir string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "health",
	Short: "Integration-aware code-health cascade engine",
	Long: `health scans a project for weak artifacts, plans a regeneration
cascade rooted at one of them, and drives that cascade wave by wave with
confidence gating, integration verification, and a hash-chained audit log
of every decision along the way.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspaceDir
		if ws == "" {
			var err error
			ws, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
		}
		abs, err := filepath.Abs(ws)
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		workspaceDir = abs

		cp := configPath
		if cp == "" {
			cp = filepath.Join(workspaceDir, ".health", "config.yaml")
		} else if !filepath.IsAbs(cp) {
			cp = filepath.Join(workspaceDir, cp)
		}

		cfg, err = config.Load(cp)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := logging.Initialize(workspaceDir, cfg.Logging.DebugMode, cfg.Logging.Categories); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize logging: %v\n", err)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default .health/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "project root (default: current directory)")

	rootCmd.AddCommand(
		scanCmd,
		previewCmd,
		fixCmd,
		extractContractCmd,
		auditCmd,
		integrationsCmd,
	)
}

func newEngine() (*engine.Engine, error) {
	return engine.New(cfg, workspaceDir)
}

// exitCode maps a command's returned error to the process exit code the
// engine's error taxonomy designates for it.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var opErr *engine.OpError
	if errors.As(err, &opErr) {
		switch opErr.Kind {
		case engine.KindAborted:
			return 3
		case engine.KindAuditIntegrityBroken:
			return 4
		default:
			return 1
		}
	}
	return 1
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var opErr *engine.OpError
		if !errors.As(err, &opErr) {
			os.Exit(2) // cobra arg parsing / usage error
		}
		os.Exit(exitCode(err))
	}
}
