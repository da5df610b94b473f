// Spike — Query Orchestration Engine for analytics and SEO data.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "spike",
	Short: "Spike — natural-language query engine for analytics and SEO data.",
	Long: `Spike answers natural-language questions about website performance.
It classifies each question, routes it to the analytics and SEO data
agents, and synthesizes their findings into a single grounded answer.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, queryCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
