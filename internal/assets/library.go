// Package assets locates, preloads and caches the stimulus images. Image
// refs follow a deterministic naming convention: base stimuli live at
// <root>/<category>/<category><index>.<ext> and cue images at
// <root>/<category>/block<block>/<category>cue<index>.<ext>.
//
// Loading is best-effort throughout: a missing or unreadable image never
// stops the experiment, the presentation renders a placeholder instead.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/coglabtools/pmback/internal/trials"
)

// ErrNotFound indicates an image ref that resolves to no readable file.
var ErrNotFound = errors.New("image not found")

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// Library serves stimulus images from a directory tree with an LRU byte
// cache in front of disk. It implements trials.Pool.
type Library struct {
	root  string
	log   *zap.Logger
	cache *lru.Cache[string, []byte]

	mu      sync.Mutex
	watcher *watcher
}

// NewLibrary creates a library over the stimulus root.
func NewLibrary(root string, cacheSize int, log *zap.Logger) (*Library, error) {
	if root == "" {
		return nil, errors.New("asset root is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset cache: %w", err)
	}
	return &Library{root: root, log: log, cache: cache}, nil
}

// StimulusRef returns the conventional ref of a base stimulus.
func StimulusRef(cat trials.Category, index int, ext string) string {
	return filepath.Join(string(cat), fmt.Sprintf("%s%d%s", cat, index, ext))
}

// CueRef returns the conventional ref of a cue image.
func CueRef(cat trials.Category, block, index int, ext string) string {
	return filepath.Join(string(cat), fmt.Sprintf("block%d", block),
		fmt.Sprintf("%scue%d%s", cat, index, ext))
}

// Images returns the base stimulus refs of a category, sorted by filename.
// An unreadable directory yields an empty pool; the generator reports that
// as its own error.
func (l *Library) Images(cat trials.Category) []string {
	dir := filepath.Join(l.root, string(cat))
	entries, err := os.ReadDir(dir)
	if err != nil {
		l.log.Warn("stimulus directory unreadable", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	var refs []string
	for _, e := range entries {
		if e.IsDir() || !isStimulus(e.Name(), string(cat)) {
			continue
		}
		refs = append(refs, filepath.Join(string(cat), e.Name()))
	}
	sort.Strings(refs)
	return refs
}

// Cues returns the cue refs of a category and block, sorted by filename.
func (l *Library) Cues(cat trials.Category, block int) []string {
	dir := filepath.Join(l.root, string(cat), fmt.Sprintf("block%d", block))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	prefix := string(cat) + "cue"
	var refs []string
	for _, e := range entries {
		if e.IsDir() || !isStimulus(e.Name(), prefix) {
			continue
		}
		refs = append(refs, filepath.Join(string(cat), fmt.Sprintf("block%d", block), e.Name()))
	}
	sort.Strings(refs)
	return refs
}

// isStimulus matches <prefix><digits>.<imageExt>.
func isStimulus(name, prefix string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if !imageExts[ext] {
		return false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(stem, prefix) {
		return false
	}
	digits := stem[len(prefix):]
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Image returns the bytes of an image ref, from cache or disk.
func (l *Library) Image(ref string) ([]byte, error) {
	if data, ok := l.cache.Get(ref); ok {
		return data, nil
	}
	data, err := os.ReadFile(filepath.Join(l.root, ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	l.cache.Add(ref, data)
	return data, nil
}

// Preload warms the cache with the given refs, stopping at the context
// deadline. Failures are logged and skipped; the count of loaded images is
// returned for the caller's bookkeeping only.
func (l *Library) Preload(ctx context.Context, refs []string) int {
	loaded := 0
	for _, ref := range refs {
		select {
		case <-ctx.Done():
			l.log.Warn("preload timed out",
				zap.Int("loaded", loaded),
				zap.Int("total", len(refs)))
			return loaded
		default:
		}
		if _, err := l.Image(ref); err != nil {
			l.log.Warn("preload skipped image", zap.String("ref", ref), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded
}

// Cached reports whether a ref is currently cached. Used by tests and the
// observer endpoint.
func (l *Library) Cached(ref string) bool {
	return l.cache.Contains(ref)
}

// evict drops a ref from the cache. Called by the watcher when the file
// changes on disk.
func (l *Library) evict(ref string) {
	l.cache.Remove(ref)
}

// Close stops the change watcher if one is running.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		err := l.watcher.close()
		l.watcher = nil
		return err
	}
	return nil
}
