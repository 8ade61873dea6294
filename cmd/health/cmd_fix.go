package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sunwell/internal/cascade"
	"sunwell/internal/engine"
)

var (
	fixYes                 bool
	fixDryRun              bool
	fixWaveByWave          bool
	fixConfidenceThreshold float64
)

var fixCmd = &cobra.Command{
	Use:   "fix ARTIFACT_ID",
	Short: "Plan and execute a regeneration cascade for a weak artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if fixConfidenceThreshold > 0 {
			cfg.Cascade.MinWaveConfidence = fixConfidenceThreshold
		}

		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx := cmd.Context()
		preview, err := eng.Preview(ctx, args[0], engine.PreviewOptions{})
		if err != nil {
			return err
		}

		if fixDryRun {
			return printFixPlan(preview)
		}

		if !fixYes && !confirmFix(preview) {
			fmt.Println("aborted: not confirmed")
			return nil
		}

		handle, err := eng.StartCascade(ctx, preview, engine.CascadePolicy{AutoApprove: !fixWaveByWave})
		if err != nil {
			return err
		}
		defer handle.Close()

		var state *engine.CascadeState
		for {
			state, err = eng.AdvanceCascade(ctx, handle)
			if err != nil {
				return err
			}
			if state.Completed || state.Aborted || state.EscalatedToHuman {
				break
			}
			if state.PausedForApproval {
				if fixWaveByWave && !fixYes && !confirmWave(state) {
					reason := "operator declined wave approval"
					if err := eng.Abort(ctx, handle, reason); err != nil {
						return err
					}
					return &engine.OpError{Kind: engine.KindAborted, Message: reason, Phase: "execute", Context: map[string]string{"artifact_id": args[0]}}
				}
				if err := eng.ApproveWave(ctx, handle); err != nil {
					return err
				}
				continue
			}
			break
		}

		if err := printFixResult(state); err != nil {
			return err
		}
		if state.Aborted {
			return &engine.OpError{Kind: engine.KindAborted, Message: state.AbortReason, Phase: "execute", Context: map[string]string{"artifact_id": args[0]}}
		}
		return nil
	},
}

func init() {
	fixCmd.Flags().BoolVar(&fixYes, "yes", false, "proceed without interactive confirmation")
	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "print the cascade plan without executing it")
	fixCmd.Flags().BoolVar(&fixWaveByWave, "wave-by-wave", false, "pause for approval after every wave")
	fixCmd.Flags().Float64Var(&fixConfidenceThreshold, "confidence-threshold", 0, "override the minimum wave confidence gate")
}

func confirmFix(preview *cascade.Preview) bool {
	return confirm(fmt.Sprintf("this will touch %d artifacts, proceed? [y/N] ", preview.TotalImpacted))
}

func confirmWave(state *engine.CascadeState) bool {
	return confirm(fmt.Sprintf("wave %d/%d confidence %.2f, approve next wave? [y/N] ", state.CurrentWave, state.TotalWaves, state.OverallConfidence))
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return line == "y\n" || line == "Y\n" || line == "yes\n"
}

func printFixPlan(preview *cascade.Preview) error {
	data, err := json.MarshalIndent(preview, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printFixResult(state *engine.CascadeState) error {
	if jsonOutput {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	switch {
	case state.Aborted:
		fmt.Printf("cascade aborted: %s\n", state.AbortReason)
	case state.EscalatedToHuman:
		fmt.Println("cascade escalated to human review")
	case state.Completed:
		fmt.Printf("cascade complete: %d waves, overall confidence %.2f\n", state.TotalWaves, state.OverallConfidence)
	default:
		fmt.Printf("cascade paused at wave %d/%d\n", state.CurrentWave, state.TotalWaves)
	}
	return nil
}
