package main

import (
	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one Gmail poll cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("poll"); err != nil {
			return err
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Poller.RunOnce(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
