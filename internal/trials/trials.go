// Package trials builds the randomized trial sequence for one block of the
// task: a shuffled pool of base images with a controlled number of forced
// 1-back repeats and prospective-memory cue insertions.
package trials

// Category identifies the affective category of a stimulus pool.
type Category string

const (
	CategoryPleasant   Category = "pleasant"
	CategoryNeutral    Category = "neutral"
	CategoryUnpleasant Category = "unpleasant"
)

// Trial is a single presentation slot in a block. Two trials sharing an ID at
// adjacent positions constitute a 1-back match.
type Trial struct {
	ID       string
	Category Category
	IsCue    bool
	ImageRef string
}

// Cue is a to-be-remembered target shown before the block starts. The same
// image later appears among the trials as a cue trial.
type Cue struct {
	ID       string
	ImageRef string
}

// WarningCode classifies a non-fatal generation degradation.
type WarningCode string

const (
	// WarnCueFallback means the block's cue pool was short and the first
	// block's cue set was reused instead.
	WarnCueFallback WarningCode = "cue_fallback"

	// WarnCueShortfall means fewer cues than configured could be placed.
	WarnCueShortfall WarningCode = "cue_shortfall"
)

// Warning reports a degraded-mode substitution made during generation.
// Callers decide whether to log it; generation never logs on its own.
type Warning struct {
	Code    WarningCode
	Message string
}

// Set is the generated content of one block: the pre-block cue list and the
// ordered trial sequence. Immutable once the block starts.
type Set struct {
	Category Category
	Block    int
	Cues     []Cue
	Trials   []Trial
	Warnings []Warning
}

// Degraded reports whether generation had to substitute or drop anything.
func (s *Set) Degraded() bool {
	return len(s.Warnings) > 0
}

// AdjacentMatches counts adjacent equal-ID pairs, the 1-back targets of the
// block.
func (s *Set) AdjacentMatches() int {
	n := 0
	for i := 1; i < len(s.Trials); i++ {
		if s.Trials[i].ID == s.Trials[i-1].ID {
			n++
		}
	}
	return n
}

// CueTrials counts trials flagged as PM cues.
func (s *Set) CueTrials() int {
	n := 0
	for _, t := range s.Trials {
		if t.IsCue {
			n++
		}
	}
	return n
}

// ImageRefs returns the distinct image references of the set, cue images
// included, in presentation order. Used to drive asset preloading.
func (s *Set) ImageRefs() []string {
	seen := make(map[string]struct{}, len(s.Trials)+len(s.Cues))
	refs := make([]string, 0, len(s.Trials)+len(s.Cues))
	for _, c := range s.Cues {
		if _, ok := seen[c.ImageRef]; !ok {
			seen[c.ImageRef] = struct{}{}
			refs = append(refs, c.ImageRef)
		}
	}
	for _, t := range s.Trials {
		if _, ok := seen[t.ImageRef]; !ok {
			seen[t.ImageRef] = struct{}{}
			refs = append(refs, t.ImageRef)
		}
	}
	return refs
}

// Pool supplies stimulus image references per category. Implemented by the
// asset library; tests use an in-memory fake.
type Pool interface {
	// Images returns the base stimulus refs for a category.
	Images(cat Category) []string

	// Cues returns the cue image refs for a category and block.
	Cues(cat Category, block int) []string
}
