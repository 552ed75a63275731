package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coglabtools/pmback/internal/assets"
	"github.com/coglabtools/pmback/internal/trials"
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate trial sequences without running a session",
	Long: `Generate every block of the configured session and print a report:
trial and cue counts, adjacent repeat pairs, and any pool warnings. Useful
for checking a stimulus directory before putting a participant in front of
the screen.

Examples:
  # Check the default protocol against a stimulus directory
  pmback gen --assets ./stimuli

  # Inspect the exact sequences a seeded session would present
  pmback gen --assets ./stimuli --seed 42 --show-trials`,
	RunE: runGen,
}

var flagShowTrials bool

func init() {
	genCmd.Flags().BoolVar(&flagShowTrials, "show-trials", false, "print every trial of every block")
}

func runGen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lib, err := assets.NewLibrary(cfg.Assets.Root, cfg.Assets.CacheSize, zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open stimulus library: %w", err)
	}
	defer lib.Close()

	seed := seedFor(cfg)
	gen, err := trials.NewGenerator(lib, generatorConfig(cfg), rand.New(rand.NewSource(seed)))
	if err != nil {
		return fmt.Errorf("invalid sequence parameters: %w", err)
	}

	fmt.Printf("seed: %d\n", seed)

	failures := 0
	for _, cat := range cfg.Protocol.Categories {
		for block := 0; block < cfg.Protocol.BlocksPerCategory; block++ {
			set, err := gen.Block(trials.Category(cat), block)
			if err != nil {
				failures++
				fmt.Printf("\n%s block %d: ERROR: %v\n", cat, block+1, err)
				continue
			}
			printBlockReport(set)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d block(s) could not be generated", failures)
	}
	return nil
}

func printBlockReport(set *trials.Set) {
	fmt.Printf("\n%s block %d: %d trials, %d cue slots, %d repeat pairs\n",
		set.Category, set.Block+1, len(set.Trials), set.CueTrials(), set.AdjacentMatches())

	for _, c := range set.Cues {
		fmt.Printf("  cue: %s\n", c.ImageRef)
	}
	for _, w := range set.Warnings {
		fmt.Printf("  warning: %s: %s\n", w.Code, w.Message)
	}

	if flagShowTrials {
		for i, t := range set.Trials {
			marker := ""
			if i > 0 && set.Trials[i-1].ID == t.ID {
				marker = "  (repeat)"
			}
			if t.IsCue {
				marker = "  (cue)"
			}
			fmt.Printf("  %3d  %s%s\n", i, t.ImageRef, marker)
		}
	}
}
