package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/trialscope/internal/artifact"
)

var storageCheckCmd = &cobra.Command{
	Use:   "storage-check",
	Short: "Verify the artifact storage backend is reachable and writable",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := artifact.SelfTest(cmd.Context(), env.Artifacts); err != nil {
			cmd.PrintErrf("storage check failed: %v\n", err)
			return err
		}
		cmd.Println("storage check passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storageCheckCmd)
}
