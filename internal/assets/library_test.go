package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglabtools/pmback/internal/trials"
)

// writeTree lays out a small stimulus tree:
//
//	root/neutral/neutral1.jpg .. neutral5.jpg
//	root/neutral/block0/neutralcue1.jpg, neutralcue2.jpg
func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "neutral")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "block0"), 0o755))

	for i := 1; i <= 5; i++ {
		path := filepath.Join(root, StimulusRef(trials.CategoryNeutral, i, ".jpg"))
		require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	}
	for i := 1; i <= 2; i++ {
		path := filepath.Join(root, CueRef(trials.CategoryNeutral, 0, i, ".jpg"))
		require.NoError(t, os.WriteFile(path, []byte("cue"), 0o644))
	}
	// Files that must not be picked up as stimuli.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "neutral_extra.jpg"), []byte("x"), 0o644))
	return root
}

func newLibrary(t *testing.T, root string) *Library {
	t.Helper()
	l, err := NewLibrary(root, 16, nil)
	require.NoError(t, err)
	return l
}

func TestLibrary_Images(t *testing.T) {
	l := newLibrary(t, writeTree(t))

	refs := l.Images(trials.CategoryNeutral)
	require.Len(t, refs, 5)
	assert.Equal(t, filepath.Join("neutral", "neutral1.jpg"), refs[0])

	// Unknown category degrades to an empty pool, not an error.
	assert.Empty(t, l.Images(trials.CategoryPleasant))
}

func TestLibrary_Cues(t *testing.T) {
	l := newLibrary(t, writeTree(t))

	refs := l.Cues(trials.CategoryNeutral, 0)
	require.Len(t, refs, 2)
	assert.Equal(t, filepath.Join("neutral", "block0", "neutralcue1.jpg"), refs[0])

	// A block folder that does not exist yields an empty cue pool; the
	// generator falls back to block 0 from here.
	assert.Empty(t, l.Cues(trials.CategoryNeutral, 3))
}

func TestIsStimulus(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   bool
	}{
		{"neutral3.jpg", "neutral", true},
		{"neutral12.PNG", "neutral", true},
		{"neutralcue1.jpg", "neutralcue", true},
		{"neutral.jpg", "neutral", false},
		{"neutral_extra.jpg", "neutral", false},
		{"pleasant3.jpg", "neutral", false},
		{"neutral3.txt", "neutral", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isStimulus(tt.name, tt.prefix))
		})
	}
}

func TestLibrary_ImageAndCache(t *testing.T) {
	l := newLibrary(t, writeTree(t))
	ref := filepath.Join("neutral", "neutral1.jpg")

	data, err := l.Image(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
	assert.True(t, l.Cached(ref))

	_, err = l.Image(filepath.Join("neutral", "neutral99.jpg"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibrary_Preload(t *testing.T) {
	l := newLibrary(t, writeTree(t))

	refs := l.Images(trials.CategoryNeutral)
	refs = append(refs, filepath.Join("neutral", "missing.jpg"))

	loaded := l.Preload(context.Background(), refs)
	assert.Equal(t, 5, loaded, "the missing image is skipped, not fatal")
	for _, ref := range refs[:5] {
		assert.True(t, l.Cached(ref))
	}
}

func TestLibrary_PreloadHonorsDeadline(t *testing.T) {
	l := newLibrary(t, writeTree(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loaded := l.Preload(ctx, l.Images(trials.CategoryNeutral))
	assert.Equal(t, 0, loaded)
}

func TestLibrary_WatcherEvictsChangedFiles(t *testing.T) {
	root := writeTree(t)
	l := newLibrary(t, root)
	require.NoError(t, l.Watch())
	defer l.Close()

	ref := filepath.Join("neutral", "neutral2.jpg")
	_, err := l.Image(ref)
	require.NoError(t, err)
	require.True(t, l.Cached(ref))

	require.NoError(t, os.WriteFile(filepath.Join(root, ref), []byte("new"), 0o644))

	assert.Eventually(t, func() bool { return !l.Cached(ref) },
		2*time.Second, 10*time.Millisecond, "write event should evict the cached bytes")
}

func TestLibrary_CloseWithoutWatch(t *testing.T) {
	l := newLibrary(t, writeTree(t))
	assert.NoError(t, l.Close())
}
