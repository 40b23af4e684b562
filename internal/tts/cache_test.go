package tts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhfbalise/runner/internal/clock"
)

type fakeEngine struct {
	synthesizeCalls int32
}

func (f *fakeEngine) EngineID() string      { return "fake" }
func (f *fakeEngine) EngineVersion() string { return "1.0" }
func (f *fakeEngine) ListVoices() []Voice   { return nil }
func (f *fakeEngine) ModelVersion(string) (string, error) { return "v1", nil }

func (f *fakeEngine) Synthesize(ctx context.Context, text, voiceID, outputPath string, params map[string]any) error {
	atomic.AddInt32(&f.synthesizeCalls, 1)
	return os.WriteFile(outputPath, []byte("fake-wav:"+text), 0o644)
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemStore() *memStore { return &memStore{entries: make(map[string]string)} }

func (m *memStore) LookupAudioCache(ctx context.Context, cacheKey string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.entries[cacheKey]
	if !ok {
		return "", false, nil
	}
	if _, err := os.Stat(path); err != nil {
		delete(m.entries, cacheKey)
		return "", false, nil
	}
	return path, true, nil
}

func (m *memStore) StoreAudioCache(ctx context.Context, cacheKey, audioPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey] = audioPath
	return nil
}

func TestGetOrSynthesizeCachesOnSecondCall(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	store := newMemStore()
	c, err := NewCache(dir, engine, store, zerolog.Nop())
	require.NoError(t, err)

	path1, err := c.GetOrSynthesize(context.Background(), "bonjour", "fr_FR-siwis-medium", nil)
	require.NoError(t, err)
	path2, err := c.GetOrSynthesize(context.Background(), "bonjour", "fr_FR-siwis-medium", nil)
	require.NoError(t, err)

	assert.Equal(t, path1, path2)
	assert.EqualValues(t, 1, engine.synthesizeCalls)
}

func TestGetOrSynthesizeResynthesizesAfterFileDeleted(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	store := newMemStore()
	c, err := NewCache(dir, engine, store, zerolog.Nop())
	require.NoError(t, err)

	path, err := c.GetOrSynthesize(context.Background(), "bonjour", "voice", nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = c.GetOrSynthesize(context.Background(), "bonjour", "voice", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, engine.synthesizeCalls)
}

func TestGetOrSynthesizeWritesUnderDerivedCacheKeyFilename(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	store := newMemStore()
	c, err := NewCache(dir, engine, store, zerolog.Nop())
	require.NoError(t, err)

	path, err := c.GetOrSynthesize(context.Background(), "bonjour", "voice", nil)
	require.NoError(t, err)

	wantKey := clock.Hash(engine.EngineID(), engine.EngineVersion(), "v1", "voice", map[string]any(nil), Locale, "bonjour")
	assert.Equal(t, filepath.Join(dir, wantKey+".wav"), path)
}

// TestGetOrSynthesizeIgnoresCallerIdentity is the audio-cache-key's core
// guarantee (spec §4.1/S6): two unrelated callers asking for the same
// engine/voice/params/text collide on one synthesis, even though nothing
// ties them together except the rendered text itself.
func TestGetOrSynthesizeIgnoresCallerIdentity(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	store := newMemStore()
	c, err := NewCache(dir, engine, store, zerolog.Nop())
	require.NoError(t, err)

	// Two different channels/measurements rendering to the same text and
	// voice must share one cache entry and one synthesis call.
	pathChannelA, err := c.GetOrSynthesize(context.Background(), "vent 10 km/h", "fr_FR-tom-medium", nil)
	require.NoError(t, err)
	pathChannelB, err := c.GetOrSynthesize(context.Background(), "vent 10 km/h", "fr_FR-tom-medium", nil)
	require.NoError(t, err)

	assert.Equal(t, pathChannelA, pathChannelB)
	assert.EqualValues(t, 1, engine.synthesizeCalls)

	// A different voice for the same text is a different utterance.
	_, err = c.GetOrSynthesize(context.Background(), "vent 10 km/h", "fr_FR-siwis-medium", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, engine.synthesizeCalls)
}
