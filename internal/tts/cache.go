package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vhfbalise/runner/internal/clock"
	"github.com/vhfbalise/runner/internal/metrics"
)

// Store is the subset of internal/store.Store the cache needs, kept as an
// interface so this package stays independent of the storage layer.
type Store interface {
	LookupAudioCache(ctx context.Context, cacheKey string) (audioPath string, found bool, err error)
	StoreAudioCache(ctx context.Context, cacheKey, audioPath string) error
}

// Cache implements the content-addressed get_or_synthesize contract from
// spec.md §4.5 / original_source/app/tts/cache.py: identical utterances
// synthesize exactly once, and an entry whose file has vanished is
// evicted and re-synthesized rather than served as a broken path.
type Cache struct {
	dir    string
	engine Engine
	store  Store
	log    zerolog.Logger

	// keyLocks serializes concurrent requests for the same cache key so
	// synthesis never runs twice for one key (spec §4.5: "a per-key lock
	// ... suffices").
	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

func NewCache(dir string, engine Engine, store Store, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tts cache: create dir: %w", err)
	}
	return &Cache{dir: dir, engine: engine, store: store, log: log, keyLocks: make(map[string]*sync.Mutex)}, nil
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	return l
}

// GetOrSynthesize implements the four-step contract from spec.md §4.5:
// cache hit with a live file short-circuits; a hit whose file vanished is
// evicted and falls through; otherwise synthesis runs and the result is
// indexed. The cache key is derived here, from the engine/model/voice
// identity and the text itself (spec §4.1's audio-cache-key), never from
// caller-supplied identifiers like a tx-id — two unrelated transmissions
// that happen to render the same text in the same voice must collide on
// one cache entry.
func (c *Cache) GetOrSynthesize(ctx context.Context, text, voiceID string, params map[string]any) (string, error) {
	modelVersion, err := c.engine.ModelVersion(voiceID)
	if err != nil {
		return "", fmt.Errorf("tts cache: model version: %w", err)
	}
	cacheKey := clock.Hash(c.engine.EngineID(), c.engine.EngineVersion(), modelVersion, voiceID, params, Locale, text)

	keyLock := c.lockFor(cacheKey)
	keyLock.Lock()
	defer keyLock.Unlock()

	if path, found, err := c.store.LookupAudioCache(ctx, cacheKey); err != nil {
		return "", fmt.Errorf("tts cache: lookup: %w", err)
	} else if found {
		metrics.TTSSynthesisTotal.WithLabelValues("hit").Inc()
		return path, nil
	}
	metrics.TTSSynthesisTotal.WithLabelValues("miss").Inc()

	outputPath := filepath.Join(c.dir, cacheKey+".wav")
	if err := c.engine.Synthesize(ctx, text, voiceID, outputPath, params); err != nil {
		return "", fmt.Errorf("tts cache: synthesize: %w", err)
	}

	if err := c.store.StoreAudioCache(ctx, cacheKey, outputPath); err != nil {
		return "", fmt.Errorf("tts cache: index: %w", err)
	}
	c.log.Info().Str("cache_key", cacheKey).Str("voice", voiceID).Msg("synthesized and cached new utterance")
	return outputPath, nil
}
