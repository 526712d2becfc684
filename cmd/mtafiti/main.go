// Mtafiti is a multi-stage research report generator.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mtafiti",
	Short: "Research report generator driven by a staged LLM pipeline",
	Long: `Mtafiti turns a research topic into a structured markdown report.
A fixed chain of role-scoped pipeline stages decomposes the topic, collects
information, writes the report, designs an outline, and expands it into the
final document. Serves an HTML UI, a JSON API, and a WebSocket progress stream.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, generateCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
