package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coglabtools/pmback/internal/assets"
	"github.com/coglabtools/pmback/internal/config"
	"github.com/coglabtools/pmback/internal/export"
	"github.com/coglabtools/pmback/internal/logging"
	"github.com/coglabtools/pmback/internal/metrics"
	"github.com/coglabtools/pmback/internal/observer"
	"github.com/coglabtools/pmback/internal/scoring"
	"github.com/coglabtools/pmback/internal/session"
	"github.com/coglabtools/pmback/internal/trials"
	"github.com/coglabtools/pmback/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full session",
	Long: `Run a full session: for every category, present the configured number
of blocks, score each block when it completes and show the session summary
at the end.

Examples:
  # Run with the default protocol
  pmback run --assets ./stimuli

  # Reproducible short session
  pmback run --assets ./stimuli --variant brief --seed 42

  # Single category with the observer endpoint enabled
  PMBACK_OBSERVER_ENABLED=true pmback run --assets ./stimuli --category neutral`,
	RunE: runSession,
}

// loadConfig loads the config file and applies the CLI overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	if flagVariant != "" {
		if err := cfg.ApplyVariant(flagVariant); err != nil {
			return nil, err
		}
	}
	if flagSeed != 0 {
		cfg.Protocol.Seed = flagSeed
	}
	if len(flagCategories) > 0 {
		cfg.Protocol.Categories = flagCategories
	}
	if flagAssets != "" {
		cfg.Assets.Root = flagAssets
	}
	if flagObserver {
		cfg.Observer.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedFor resolves the sequence seed: an explicit seed reproduces a
// session, otherwise the clock decides.
func seedFor(cfg *config.Config) int64 {
	if cfg.Protocol.Seed != 0 {
		return cfg.Protocol.Seed
	}
	return time.Now().UnixNano()
}

func generatorConfig(cfg *config.Config) trials.Config {
	return trials.Config{
		TrialsPerBlock: cfg.Protocol.TrialsPerBlock,
		CuesPerBlock:   cfg.Protocol.CuesPerBlock,
		RepeatsByBlock: cfg.Protocol.RepeatsByBlock,
	}
}

func sessionTiming(cfg *config.Config) session.Timing {
	return session.Timing{
		Cue:             cfg.Timing.Cue.Duration(),
		CueFixation:     cfg.Timing.CueFixation.Duration(),
		Trial:           cfg.Timing.Trial.Duration(),
		CueTrial:        cfg.Timing.CueTrial.Duration(),
		Fixation:        cfg.Timing.Fixation.Duration(),
		ResponseAdvance: cfg.Timing.ResponseAdvance.Duration(),
	}
}

func sessionPlan(cfg *config.Config) []session.PlanEntry {
	plan := make([]session.PlanEntry, 0, len(cfg.Protocol.Categories))
	for _, cat := range cfg.Protocol.Categories {
		plan = append(plan, session.PlanEntry{
			Category: trials.Category(cat),
			Blocks:   cfg.Protocol.BlocksPerCategory,
		})
	}
	return plan
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	lib, err := assets.NewLibrary(cfg.Assets.Root, cfg.Assets.CacheSize, logger)
	if err != nil {
		return fmt.Errorf("failed to open stimulus library: %w", err)
	}
	defer lib.Close()

	if cfg.Assets.Watch {
		if err := lib.Watch(); err != nil {
			logger.Warn("stimulus watcher unavailable", zap.Error(err))
		}
	}

	seed := seedFor(cfg)
	gen, err := trials.NewGenerator(lib, generatorConfig(cfg), rand.New(rand.NewSource(seed)))
	if err != nil {
		return fmt.Errorf("invalid sequence parameters: %w", err)
	}

	met := metrics.New()

	var obs *observer.Server
	if cfg.Observer.Enabled {
		obs, err = observer.NewServer(met, logger, observer.Config{
			Host: cfg.Observer.Host,
			Port: cfg.Observer.Port,
		})
		if err != nil {
			return fmt.Errorf("failed to create observer server: %w", err)
		}
		go func() {
			if err := obs.Start(); err != nil {
				logger.Warn("observer server stopped", zap.Error(err))
			}
		}()
	}

	exp := export.New(cfg.Export.URL, cfg.Export.Timeout.Duration(), logger)

	sessionID := uuid.NewString()
	relay := ui.NewRelay()

	// The export runs off the controller's finalization path so the final
	// results view is never blocked on the network.
	var exports sync.WaitGroup

	ctrl, err := session.NewController(session.Options{
		SessionID: sessionID,
		Plan:      sessionPlan(cfg),
		Timing:    sessionTiming(cfg),
		Source:    gen,
		Scheduler: session.TimerScheduler{},
		Logger:    logger,
		Metrics:   met,
		Notify: func(snap session.Snapshot) {
			relay.Notify(snap)
			if obs != nil {
				obs.Update(snap)
			}
		},
		OnFinal: func(sum scoring.Summary) {
			if !exp.Enabled() {
				return
			}
			exports.Add(1)
			go func() {
				defer exports.Done()
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Export.Timeout.Duration())
				defer cancel()
				exp.Submit(ctx, sum)
			}()
		},
		Preload: func(refs []string) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Assets.PreloadTimeout.Duration())
			defer cancel()
			lib.Preload(ctx, refs)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger.Info("session starting",
		zap.String("session_id", sessionID),
		zap.Int64("seed", seed),
		zap.Strings("categories", cfg.Protocol.Categories),
		zap.Int("blocks_per_category", cfg.Protocol.BlocksPerCategory),
		zap.Int("trials_per_block", cfg.Protocol.TrialsPerBlock))

	model := ui.NewModel(ctrl, ui.Keys{
		Repeat:  cfg.Keys.Repeat,
		Cue:     cfg.Keys.Cue,
		Advance: cfg.Keys.Advance,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	relay.Attach(p)

	_, runErr := p.Run()

	// Score whatever was presented if the program exited mid-session.
	ctrl.EndNow()
	relay.Close()
	exports.Wait()

	if obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(ctx); err != nil {
			logger.Warn("observer shutdown failed", zap.Error(err))
		}
	}

	if runErr != nil {
		return fmt.Errorf("presentation failed: %w", runErr)
	}

	if sum := ctrl.Snapshot().Summary; sum != nil {
		logger.Info("session complete",
			zap.String("session_id", sum.SessionID),
			zap.String("nback_accuracy", sum.NBackAccuracy),
			zap.String("pm_cue_accuracy", sum.PMCueAccuracy),
			zap.Int("total_images", sum.TotalImages))
	}
	return nil
}
