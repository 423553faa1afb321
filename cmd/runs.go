package main

import (
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.Store.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			cmd.Println("No runs recorded.")
			return nil
		}

		for _, rec := range records {
			end := "-"
			if rec.EndTime != nil {
				end = rec.EndTime.Format("2006-01-02 15:04")
			}
			cmd.Printf("%s  %-9s  %-30s  started %s  ended %s\n",
				rec.ID, rec.Status, rec.Params.Disease,
				rec.StartTime.Format("2006-01-02 15:04"), end)
			if rec.Error != "" {
				cmd.Printf("    error: %s\n", rec.Error)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to list")
	rootCmd.AddCommand(runsCmd)
}
