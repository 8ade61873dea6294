package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var integrationsCmd = &cobra.Command{
	Use:   "integrations",
	Short: "Verify required integrations and detect stub implementations",
}

var integrationsVerifyCmd = &cobra.Command{
	Use:   "verify [ARTIFACT_ID]",
	Short: "Verify integrations for one artifact, or the whole graph if omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var artifactID string
		if len(args) == 1 {
			artifactID = args[0]
		}

		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		report, err := eng.VerifyIntegrations(cmd.Context(), artifactID)
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		for _, r := range report.Results {
			fmt.Printf("%s: complete=%t\n", r.ArtifactID, r.Complete)
			for _, ir := range r.Integrations {
				status := "ok"
				if !ir.Satisfied {
					status = "MISSING"
				}
				fmt.Printf("  [%s] %s -> %s\n", status, ir.Check.Kind, ir.Check.TargetArtifactID)
			}
			for _, s := range r.Stubs {
				fmt.Printf("  stub: %s:%d (%s)\n", s.File, s.Line, s.Pattern)
			}
		}
		return nil
	},
}

func init() {
	integrationsCmd.AddCommand(integrationsVerifyCmd)
}
