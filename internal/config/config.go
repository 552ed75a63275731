// Package config provides configuration loading for pmback.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coglabtools/pmback/internal/logging"
)

// Config is the full runner configuration.
type Config struct {
	Protocol ProtocolConfig `koanf:"protocol"`
	Timing   TimingConfig   `koanf:"timing"`
	Keys     KeysConfig     `koanf:"keys"`
	Assets   AssetsConfig   `koanf:"assets"`
	Export   ExportConfig   `koanf:"export"`
	Observer ObserverConfig `koanf:"observer"`
	Logging  logging.Config `koanf:"logging"`
}

// ProtocolConfig selects the experimental protocol variant and its sequence
// parameters.
type ProtocolConfig struct {
	// Variant names a protocol preset. The source protocol exists in several
	// revisions; they are configuration variants here, not separate code
	// paths. See Variants.
	Variant string `koanf:"variant"`

	Categories        []string `koanf:"categories"`
	BlocksPerCategory int      `koanf:"blocks_per_category"`
	TrialsPerBlock    int      `koanf:"trials_per_block"`
	CuesPerBlock      int      `koanf:"cues_per_block"`
	RepeatsByBlock    []int    `koanf:"repeats_by_block"`

	// Seed fixes the trial-sequence randomness. Zero means time-seeded.
	Seed int64 `koanf:"seed"`
}

// TimingConfig holds the presentation dwell durations.
type TimingConfig struct {
	Cue             Duration `koanf:"cue"`
	CueFixation     Duration `koanf:"cue_fixation"`
	Trial           Duration `koanf:"trial"`
	CueTrial        Duration `koanf:"cue_trial"`
	Fixation        Duration `koanf:"fixation"`
	ResponseAdvance Duration `koanf:"response_advance"`
}

// KeysConfig maps the three meaningful keys. All other keys are ignored
// during the experiment.
type KeysConfig struct {
	Repeat  string `koanf:"repeat"`
	Cue     string `koanf:"cue"`
	Advance string `koanf:"advance"`
}

// AssetsConfig locates and caches the stimulus images.
type AssetsConfig struct {
	Root           string   `koanf:"root"`
	CacheSize      int      `koanf:"cache_size"`
	Watch          bool     `koanf:"watch"`
	PreloadTimeout Duration `koanf:"preload_timeout"`
}

// ExportConfig is the optional fire-and-forget result post.
type ExportConfig struct {
	URL     string   `koanf:"url"`
	Timeout Duration `koanf:"timeout"`
}

// ObserverConfig is the optional local HTTP listener for watching a running
// session (health, metrics, session snapshot).
type ObserverConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

// NewDefaultConfig returns the canonical protocol with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Protocol: ProtocolConfig{
			Variant:           "classic",
			Categories:        []string{"pleasant", "neutral", "unpleasant"},
			BlocksPerCategory: 3,
			TrialsPerBlock:    70,
			CuesPerBlock:      6,
			RepeatsByBlock:    []int{8, 9, 10},
		},
		Timing: TimingConfig{
			Cue:             Duration(2000 * time.Millisecond),
			CueFixation:     Duration(1000 * time.Millisecond),
			Trial:           Duration(1000 * time.Millisecond),
			CueTrial:        Duration(2500 * time.Millisecond),
			Fixation:        Duration(500 * time.Millisecond),
			ResponseAdvance: Duration(200 * time.Millisecond),
		},
		Keys: KeysConfig{
			Repeat:  "f",
			Cue:     "j",
			Advance: " ",
		},
		Assets: AssetsConfig{
			Root:           "stimuli",
			CacheSize:      256,
			Watch:          false,
			PreloadTimeout: Duration(5000 * time.Millisecond),
		},
		Export: ExportConfig{
			Timeout: Duration(10 * time.Second),
		},
		Observer: ObserverConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    9187,
		},
		Logging: *logging.NewDefaultConfig(),
	}
}

// Variants are the named protocol presets corresponding to the source
// protocol's revisions.
var Variants = map[string]ProtocolConfig{
	"classic": {
		BlocksPerCategory: 3,
		TrialsPerBlock:    70,
		CuesPerBlock:      6,
		RepeatsByBlock:    []int{8, 9, 10},
	},
	"extended": {
		BlocksPerCategory: 5,
		TrialsPerBlock:    70,
		CuesPerBlock:      6,
		RepeatsByBlock:    []int{8, 9, 10, 11, 12},
	},
	"brief": {
		BlocksPerCategory: 3,
		TrialsPerBlock:    30,
		CuesPerBlock:      6,
		RepeatsByBlock:    []int{4, 5, 6},
	},
}

// ApplyVariant overwrites the sequence parameters with a named preset,
// keeping categories and seed.
func (c *Config) ApplyVariant(name string) error {
	preset, ok := Variants[name]
	if !ok {
		return fmt.Errorf("unknown protocol variant %q", name)
	}
	c.Protocol.Variant = name
	c.Protocol.BlocksPerCategory = preset.BlocksPerCategory
	c.Protocol.TrialsPerBlock = preset.TrialsPerBlock
	c.Protocol.CuesPerBlock = preset.CuesPerBlock
	c.Protocol.RepeatsByBlock = append([]int(nil), preset.RepeatsByBlock...)
	return nil
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	p := c.Protocol
	if len(p.Categories) == 0 {
		return errors.New("protocol.categories cannot be empty")
	}
	if p.BlocksPerCategory <= 0 {
		return fmt.Errorf("protocol.blocks_per_category must be positive, got %d", p.BlocksPerCategory)
	}
	if p.TrialsPerBlock <= 0 {
		return fmt.Errorf("protocol.trials_per_block must be positive, got %d", p.TrialsPerBlock)
	}
	if p.CuesPerBlock < 0 {
		return fmt.Errorf("protocol.cues_per_block cannot be negative, got %d", p.CuesPerBlock)
	}
	if len(p.RepeatsByBlock) == 0 {
		return errors.New("protocol.repeats_by_block cannot be empty")
	}

	for _, d := range []struct {
		name string
		val  Duration
	}{
		{"timing.cue", c.Timing.Cue},
		{"timing.cue_fixation", c.Timing.CueFixation},
		{"timing.trial", c.Timing.Trial},
		{"timing.cue_trial", c.Timing.CueTrial},
		{"timing.fixation", c.Timing.Fixation},
		{"timing.response_advance", c.Timing.ResponseAdvance},
	} {
		if d.val.Duration() <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	for _, k := range []struct {
		name string
		val  string
	}{
		{"keys.repeat", c.Keys.Repeat},
		{"keys.cue", c.Keys.Cue},
		{"keys.advance", c.Keys.Advance},
	} {
		if len([]rune(k.val)) != 1 {
			return fmt.Errorf("%s must be a single character, got %q", k.name, k.val)
		}
	}
	if c.Keys.Repeat == c.Keys.Cue || c.Keys.Repeat == c.Keys.Advance || c.Keys.Cue == c.Keys.Advance {
		return errors.New("response and advance keys must be distinct")
	}

	if c.Assets.Root == "" {
		return errors.New("assets.root cannot be empty")
	}
	if c.Assets.CacheSize <= 0 {
		return fmt.Errorf("assets.cache_size must be positive, got %d", c.Assets.CacheSize)
	}

	if c.Export.URL != "" {
		u, err := url.Parse(c.Export.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("export.url %q is not an absolute URL", c.Export.URL)
		}
	}

	if c.Observer.Enabled && (c.Observer.Port < 1 || c.Observer.Port > 65535) {
		return fmt.Errorf("observer.port %d out of range", c.Observer.Port)
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}
