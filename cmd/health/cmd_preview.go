package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"sunwell/internal/engine"
)

var previewIncludeContracts bool

var previewCmd = &cobra.Command{
	Use:   "preview ARTIFACT_ID",
	Short: "Preview the cascade rooted at a weak artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		preview, err := eng.Preview(cmd.Context(), args[0], engine.PreviewOptions{})
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(preview, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("weak node: %s\n", preview.WeakNode)
		fmt.Printf("direct dependents: %d, transitive: %d, total impacted: %d\n",
			len(preview.DirectDependents), len(preview.TransitiveDependents), preview.TotalImpacted)
		fmt.Printf("estimated effort: %s, risk: %s\n", preview.EstimatedEffort, preview.RiskAssessment)
		for i, wave := range preview.Waves {
			fmt.Printf("  wave %d: %v\n", i+1, wave)
		}
		if previewIncludeContracts {
			for id, c := range preview.Contracts {
				fmt.Printf("  contract %s: %d exports\n", id, len(c.Exports))
			}
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().BoolVar(&previewIncludeContracts, "include-contracts", false, "print extracted contracts for every impacted artifact")
}
