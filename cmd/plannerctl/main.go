// Command plannerctl submits and follows itinerary runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "plannerctl",
	Short:         "Submit and follow itinerary planning runs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(submitCmd, statusCmd, watchCmd, runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "planner server URL")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindEnv("server", "PLANNER_SERVER")
}
