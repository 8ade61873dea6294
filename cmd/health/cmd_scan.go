package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"sunwell/internal/analyzer"
)

var scanIgnore []string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover artifacts and score every weakness in the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		report, err := eng.Scan(cmd.Context(), scanIgnore)
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

		fmt.Printf("scanned %d files, %d artifacts\n", report.FilesScanned, len(report.Scores))
		fmt.Printf("critical=%d high=%d medium=%d low=%d\n", report.CriticalCount, report.HighCount, report.MediumCount, report.LowCount)
		for _, s := range topScores(report.Scores, 10) {
			fmt.Printf("  %-8s %-6.1f %s\n", s.CascadeRisk, s.TotalSeverity, s.ArtifactID)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringArrayVar(&scanIgnore, "ignore", nil, "additional ignore pattern (repeatable)")
}

// topScores returns the n highest-scoring entries, highest first, without
// mutating the caller's slice.
func topScores(scores []analyzer.WeaknessScore, n int) []analyzer.WeaknessScore {
	sorted := append([]analyzer.WeaknessScore{}, scores...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].TotalSeverity > sorted[j-1].TotalSeverity; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
