// Command mcpcore runs the JSON-RPC dispatch core over a stdio or HTTP
// envelope transport, and manages the API keys that guard it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mcpcore",
	Short: "JSON-RPC 2.0 dispatch core for Model Context Protocol servers",
	Long: `mcpcore runs the JSON-RPC dispatch, transport, and authentication
core as a standalone process. It ships with a minimal demo backend so
the binary is runnable on its own; real hosts embed pkg/server,
pkg/transport, pkg/auth, and pkg/middleware directly instead of this CLI.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.config/mcpcore/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("mcpcore\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		return nil
	},
}
