package trials

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrEmptyPool indicates the category has no base images at all.
	ErrEmptyPool = errors.New("stimulus pool is empty")

	// ErrPoolTooSmall indicates the category has fewer base images than the
	// block needs.
	ErrPoolTooSmall = errors.New("stimulus pool smaller than block size")

	// ErrNoCueSlot indicates no insertion position satisfied the cue
	// adjacency constraints. Does not occur at realistic block sizes.
	ErrNoCueSlot = errors.New("no valid cue insertion position")
)

// Config holds the per-block sequence parameters.
type Config struct {
	// TrialsPerBlock is the total sequence length including repeats and cues.
	TrialsPerBlock int

	// CuesPerBlock is the number of PM cue trials inserted per block.
	CuesPerBlock int

	// RepeatsByBlock is the fixed table of forced 1-back repeats, indexed by
	// block number. Blocks past the end of the table reuse the last entry.
	RepeatsByBlock []int
}

// Validate checks that every block leaves room for base images.
func (c Config) Validate() error {
	if c.TrialsPerBlock <= 0 {
		return fmt.Errorf("trials_per_block must be positive, got %d", c.TrialsPerBlock)
	}
	if c.CuesPerBlock < 0 {
		return fmt.Errorf("cues_per_block cannot be negative, got %d", c.CuesPerBlock)
	}
	if len(c.RepeatsByBlock) == 0 {
		return errors.New("repeats_by_block table is empty")
	}
	for i, r := range c.RepeatsByBlock {
		if r < 0 {
			return fmt.Errorf("repeats_by_block[%d] cannot be negative, got %d", i, r)
		}
		base := c.TrialsPerBlock - c.CuesPerBlock - r
		if base < 1 {
			return fmt.Errorf("block %d leaves no room for base images (%d trials, %d cues, %d repeats)",
				i, c.TrialsPerBlock, c.CuesPerBlock, r)
		}
		// Each repeat duplicates a distinct base image, so the base
		// sequence must be at least as long as the repeat count.
		if r > base {
			return fmt.Errorf("block %d wants %d repeats from only %d base images",
				i, r, base)
		}
	}
	return nil
}

// RepeatsFor returns the forced-repeat count for a block, clamped to the
// last table entry for blocks past the end.
func (c Config) RepeatsFor(block int) int {
	if block < 0 {
		block = 0
	}
	if block >= len(c.RepeatsByBlock) {
		return c.RepeatsByBlock[len(c.RepeatsByBlock)-1]
	}
	return c.RepeatsByBlock[block]
}

// Generator produces trial sets from a stimulus pool. All randomness flows
// through the injected rand source so sequences are reproducible under a
// fixed seed.
type Generator struct {
	pool Pool
	cfg  Config
	rng  *rand.Rand
}

// NewGenerator creates a generator. A nil rng gets a time-seeded source.
func NewGenerator(pool Pool, cfg Config, rng *rand.Rand) (*Generator, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{pool: pool, cfg: cfg, rng: rng}, nil
}

// Block generates the trial set for one block of a category.
//
// The sequence is built in three passes: shuffle and truncate the base pool,
// duplicate forced repeats directly after a randomly chosen occurrence of
// their source trial, then insert cue trials at positions where no two cues
// end adjacent and no repeat pair is split.
func (g *Generator) Block(cat Category, block int) (*Set, error) {
	repeats := g.cfg.RepeatsFor(block)
	baseCount := g.cfg.TrialsPerBlock - g.cfg.CuesPerBlock - repeats

	images := g.pool.Images(cat)
	if len(images) == 0 {
		return nil, fmt.Errorf("category %q: %w", cat, ErrEmptyPool)
	}
	if len(images) < baseCount {
		return nil, fmt.Errorf("category %q needs %d base images, pool has %d: %w",
			cat, baseCount, len(images), ErrPoolTooSmall)
	}

	set := &Set{Category: cat, Block: block}

	base := make([]string, len(images))
	copy(base, images)
	g.rng.Shuffle(len(base), func(i, j int) { base[i], base[j] = base[j], base[i] })
	base = base[:baseCount]

	seq := make([]Trial, 0, g.cfg.TrialsPerBlock)
	for _, ref := range base {
		seq = append(seq, Trial{ID: refID(ref), Category: cat, ImageRef: ref})
	}

	seq = g.insertRepeats(seq, base, repeats)

	cues, warnings := g.selectCues(cat, block)
	set.Warnings = append(set.Warnings, warnings...)

	for _, cue := range cues {
		pos, err := g.cuePosition(seq)
		if err != nil {
			return nil, err
		}
		t := Trial{ID: cue.ID, Category: cat, IsCue: true, ImageRef: cue.ImageRef}
		seq = append(seq[:pos], append([]Trial{t}, seq[pos:]...)...)
	}

	set.Cues = cues
	set.Trials = seq
	return set, nil
}

// insertRepeats duplicates `repeats` distinct source trials, each placed
// directly after a randomly chosen existing occurrence of its ID. Insertion
// lands at index >= 1 by construction, so position 0 is never a repeat.
func (g *Generator) insertRepeats(seq []Trial, base []string, repeats int) []Trial {
	sources := g.rng.Perm(len(base))[:repeats]
	for _, si := range sources {
		id := refID(base[si])
		var occ []int
		for i, t := range seq {
			if t.ID == id {
				occ = append(occ, i)
			}
		}
		at := occ[g.rng.Intn(len(occ))] + 1
		dup := seq[at-1]
		seq = append(seq[:at], append([]Trial{dup}, seq[at:]...)...)
	}
	return seq
}

// selectCues picks the block's cue set, falling back to block 0's cues when
// the pool is short. The shortfall is reported as a warning, not an error.
func (g *Generator) selectCues(cat Category, block int) ([]Cue, []Warning) {
	var warnings []Warning

	refs := g.pool.Cues(cat, block)
	if len(refs) < g.cfg.CuesPerBlock && block != 0 {
		fallback := g.pool.Cues(cat, 0)
		if len(fallback) > len(refs) {
			warnings = append(warnings, Warning{
				Code: WarnCueFallback,
				Message: fmt.Sprintf("category %s block %d has %d cue images, reusing block 0 cue set",
					cat, block, len(refs)),
			})
			refs = fallback
		}
	}

	shuffled := make([]string, len(refs))
	copy(shuffled, refs)
	g.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	n := g.cfg.CuesPerBlock
	if len(shuffled) < n {
		warnings = append(warnings, Warning{
			Code: WarnCueShortfall,
			Message: fmt.Sprintf("category %s block %d runs with %d of %d cues",
				cat, block, len(shuffled), n),
		})
		n = len(shuffled)
	}

	cues := make([]Cue, 0, n)
	for _, ref := range shuffled[:n] {
		cues = append(cues, Cue{ID: refID(ref), ImageRef: ref})
	}
	return cues, warnings
}

// cuePosition picks a random insertion index where the cue neither lands
// adjacent to another cue trial nor splits an adjacent equal-ID pair.
func (g *Generator) cuePosition(seq []Trial) (int, error) {
	var valid []int
	for pos := 0; pos <= len(seq); pos++ {
		if pos > 0 && seq[pos-1].IsCue {
			continue
		}
		if pos < len(seq) && seq[pos].IsCue {
			continue
		}
		if pos > 0 && pos < len(seq) && seq[pos-1].ID == seq[pos].ID {
			continue
		}
		valid = append(valid, pos)
	}
	if len(valid) == 0 {
		return 0, ErrNoCueSlot
	}
	return valid[g.rng.Intn(len(valid))], nil
}

// refID derives the trial ID from an image ref. The bare filename ties the
// repeated presentations of one image together regardless of path layout.
func refID(ref string) string {
	name := filepath.Base(ref)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
