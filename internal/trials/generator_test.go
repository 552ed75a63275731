package trials

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePool is an in-memory Pool with configurable image and cue sets.
type fakePool struct {
	images map[Category][]string
	cues   map[string][]string // key: fmt.Sprintf("%s/%d", cat, block)
}

func (p *fakePool) Images(cat Category) []string { return p.images[cat] }

func (p *fakePool) Cues(cat Category, block int) []string {
	return p.cues[fmt.Sprintf("%s/%d", cat, block)]
}

func newFakePool(baseImages, cuesPerBlock, blocks int) *fakePool {
	p := &fakePool{
		images: make(map[Category][]string),
		cues:   make(map[string][]string),
	}
	for _, cat := range []Category{CategoryPleasant, CategoryNeutral, CategoryUnpleasant} {
		for i := 1; i <= baseImages; i++ {
			p.images[cat] = append(p.images[cat], fmt.Sprintf("%s/%s%d.jpg", cat, cat, i))
		}
		for b := 0; b < blocks; b++ {
			key := fmt.Sprintf("%s/%d", cat, b)
			for i := 1; i <= cuesPerBlock; i++ {
				p.cues[key] = append(p.cues[key], fmt.Sprintf("%s/block%d/%scue%d.jpg", cat, b, cat, i))
			}
		}
	}
	return p
}

func defaultConfig() Config {
	return Config{
		TrialsPerBlock: 70,
		CuesPerBlock:   6,
		RepeatsByBlock: []int{8, 9, 10},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", defaultConfig(), false},
		{"zero trials", Config{TrialsPerBlock: 0, CuesPerBlock: 6, RepeatsByBlock: []int{8}}, true},
		{"negative cues", Config{TrialsPerBlock: 70, CuesPerBlock: -1, RepeatsByBlock: []int{8}}, true},
		{"empty repeat table", Config{TrialsPerBlock: 70, CuesPerBlock: 6}, true},
		{"no room for base images", Config{TrialsPerBlock: 10, CuesPerBlock: 6, RepeatsByBlock: []int{4}}, true},
		{"more repeats than base images", Config{TrialsPerBlock: 12, CuesPerBlock: 6, RepeatsByBlock: []int{5}}, true},
		{"repeats equal base images", Config{TrialsPerBlock: 14, CuesPerBlock: 6, RepeatsByBlock: []int{4}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_RepeatsFor(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 8, cfg.RepeatsFor(0))
	assert.Equal(t, 9, cfg.RepeatsFor(1))
	assert.Equal(t, 10, cfg.RepeatsFor(2))
	// Blocks past the table reuse the last entry.
	assert.Equal(t, 10, cfg.RepeatsFor(7))
	assert.Equal(t, 8, cfg.RepeatsFor(-1))
}

func TestGenerator_BlockInvariants(t *testing.T) {
	pool := newFakePool(80, 6, 3)
	cfg := defaultConfig()

	for seed := int64(0); seed < 20; seed++ {
		for block := 0; block < 3; block++ {
			gen, err := NewGenerator(pool, cfg, rand.New(rand.NewSource(seed)))
			require.NoError(t, err)

			set, err := gen.Block(CategoryNeutral, block)
			require.NoError(t, err)

			assert.Len(t, set.Trials, cfg.TrialsPerBlock, "seed %d block %d", seed, block)
			assert.Equal(t, cfg.CuesPerBlock, set.CueTrials(), "seed %d block %d", seed, block)
			assert.Equal(t, cfg.RepeatsFor(block), set.AdjacentMatches(), "seed %d block %d", seed, block)
			assert.Len(t, set.Cues, cfg.CuesPerBlock)
			assert.False(t, set.Degraded())

			// No two adjacent cue trials.
			for i := 1; i < len(set.Trials); i++ {
				if set.Trials[i].IsCue {
					assert.False(t, set.Trials[i-1].IsCue,
						"seed %d block %d: adjacent cues at %d", seed, block, i)
				}
			}

			// Every repeated ID appears exactly twice.
			counts := make(map[string]int)
			for _, tr := range set.Trials {
				if !tr.IsCue {
					counts[tr.ID]++
				}
			}
			for id, n := range counts {
				assert.LessOrEqual(t, n, 2, "seed %d block %d: id %s presented %d times", seed, block, id, n)
			}
		}
	}
}

func TestGenerator_Reproducible(t *testing.T) {
	pool := newFakePool(80, 6, 3)
	cfg := defaultConfig()

	a, err := NewGenerator(pool, cfg, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := NewGenerator(pool, cfg, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	setA, err := a.Block(CategoryPleasant, 1)
	require.NoError(t, err)
	setB, err := b.Block(CategoryPleasant, 1)
	require.NoError(t, err)

	assert.Equal(t, setA.Trials, setB.Trials)
	assert.Equal(t, setA.Cues, setB.Cues)
}

func TestGenerator_RepeatSourcesDistinct(t *testing.T) {
	pool := newFakePool(80, 6, 3)
	gen, err := NewGenerator(pool, defaultConfig(), rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	set, err := gen.Block(CategoryUnpleasant, 2)
	require.NoError(t, err)

	// Each repeated ID appears exactly twice: no source reused, no triples.
	counts := make(map[string]int)
	for _, tr := range set.Trials {
		if !tr.IsCue {
			counts[tr.ID]++
		}
	}
	for id, n := range counts {
		assert.LessOrEqual(t, n, 2, "id %s presented %d times", id, n)
	}
}

func TestGenerator_CueFallback(t *testing.T) {
	pool := newFakePool(80, 6, 1) // cues only for block 0
	gen, err := NewGenerator(pool, defaultConfig(), rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	set, err := gen.Block(CategoryNeutral, 1)
	require.NoError(t, err)

	require.True(t, set.Degraded())
	require.Len(t, set.Warnings, 1)
	assert.Equal(t, WarnCueFallback, set.Warnings[0].Code)
	// The block still runs with a full cue complement.
	assert.Equal(t, 6, set.CueTrials())
}

func TestGenerator_CueShortfall(t *testing.T) {
	pool := newFakePool(80, 4, 1) // only 4 cue images anywhere
	gen, err := NewGenerator(pool, defaultConfig(), rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	set, err := gen.Block(CategoryNeutral, 0)
	require.NoError(t, err)

	require.True(t, set.Degraded())
	assert.Equal(t, WarnCueShortfall, set.Warnings[0].Code)
	assert.Equal(t, 4, set.CueTrials())
	assert.Len(t, set.Trials, 68) // degraded block is shorter, never aborted
}

func TestGenerator_PoolErrors(t *testing.T) {
	empty := &fakePool{images: map[Category][]string{}, cues: map[string][]string{}}
	gen, err := NewGenerator(empty, defaultConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = gen.Block(CategoryPleasant, 0)
	assert.ErrorIs(t, err, ErrEmptyPool)

	small := newFakePool(10, 6, 3)
	gen, err = NewGenerator(small, defaultConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = gen.Block(CategoryPleasant, 0)
	assert.ErrorIs(t, err, ErrPoolTooSmall)
}

func TestSet_ImageRefs(t *testing.T) {
	pool := newFakePool(80, 6, 3)
	gen, err := NewGenerator(pool, defaultConfig(), rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	set, err := gen.Block(CategoryPleasant, 0)
	require.NoError(t, err)

	refs := set.ImageRefs()
	seen := make(map[string]struct{})
	for _, r := range refs {
		_, dup := seen[r]
		assert.False(t, dup, "duplicate ref %s", r)
		seen[r] = struct{}{}
	}
	// Distinct refs: base images + cues (repeats reuse a base ref).
	assert.Len(t, refs, 70-8)
}
