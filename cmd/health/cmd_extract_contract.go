package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var extractContractCmd = &cobra.Command{
	Use:   "extract-contract ARTIFACT_ID",
	Short: "Extract an artifact's current public interface",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		c, err := eng.ExtractContract(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(c, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%s (%s)\n", c.ArtifactID, c.FilePath)
		fmt.Printf("  interface hash: %s\n", c.InterfaceHash)
		for _, e := range c.Exports {
			fmt.Printf("  export: %s\n", e)
		}
		return nil
	},
}
