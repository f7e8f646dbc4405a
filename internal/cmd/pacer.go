package cmd

import "github.com/spf13/cobra"

var pacerCmd = &cobra.Command{
	Use:   "pacer",
	Short: "Inspect and manage persisted pacer state",
}

func init() {
	pacerCmd.AddCommand(pacerStateCmd)
	pacerCmd.AddCommand(pacerEventsCmd)
	pacerCmd.AddCommand(pacerResetCmd)
	rootCmd.AddCommand(pacerCmd)
}
