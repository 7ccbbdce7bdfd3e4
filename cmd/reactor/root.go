package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reactor",
	Short: "Reactor is an autonomous ReAct task-execution agent",
	Long: `Reactor runs a ReAct loop: it alternates between querying a language
model for a reasoning step and executing exactly one tool call decoded
from the model's output, until the finish tool is called or the step
budget runs out.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a yaml config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every run event")
}
