// Package main implements the pmback CLI: a terminal runner for a 1-back
// continuous recognition task with embedded prospective-memory cues.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// flagConfig is the path to the YAML config file; empty means the
	// default under the user config dir.
	flagConfig string
	// flagVariant selects a protocol preset, overriding the config file.
	flagVariant string
	// flagSeed fixes the sequence RNG for reproducible sessions.
	flagSeed int64
	// flagCategories restricts the session to a subset of categories.
	flagCategories []string
	// flagAssets overrides the stimulus root directory.
	flagAssets string
	// flagObserver enables the local observer HTTP listener.
	flagObserver bool

	// version information (set via ldflags during build)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pmback",
	Short: "Terminal runner for a 1-back task with prospective-memory cues",
	Long: `pmback presents blocks of timed image trials in the terminal. Each block
opens with a short set of cue images to remember; during the trials the
participant reports immediate repeats and reappearing cue images. Results
are scored per block and summarized at the end of the session.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default: $XDG_CONFIG_HOME/pmback/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagVariant, "variant", "", "protocol preset: classic, extended or brief")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "sequence RNG seed (0 = derive from clock)")
	rootCmd.PersistentFlags().StringSliceVar(&flagCategories, "category", nil, "restrict the session to these categories")
	rootCmd.PersistentFlags().StringVar(&flagAssets, "assets", "", "stimulus root directory")
	rootCmd.PersistentFlags().BoolVar(&flagObserver, "observer", false, "serve /health, /metrics and a session snapshot on the observer port")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pmback\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}
