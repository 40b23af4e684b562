package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhfbalise/runner/internal/clock"
	"github.com/vhfbalise/runner/internal/provider"
	"github.com/vhfbalise/runner/internal/ptt"
	"github.com/vhfbalise/runner/internal/scheduler"
	"github.com/vhfbalise/runner/internal/sequencer"
	"github.com/vhfbalise/runner/internal/store"
	"github.com/vhfbalise/runner/internal/tts"
)

// fakeClock gives tests full control over "now" without real sleeps.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time                       { return c.now }
func (c *fakeClock) Sleep(time.Duration)                   {}
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// fakeProvider answers FetchMeasurementsBulk from a mutable in-memory
// table so tests can simulate a fresh reading or a stale one on the
// re-fetch step.
type fakeProvider struct {
	id           string
	measurements map[string]*provider.Measurement
}

func (p *fakeProvider) ID() string                  { return p.id }
func (p *fakeProvider) RequiresCredentials() bool    { return false }
func (p *fakeProvider) SetCredentials(map[string]string) {}
func (p *fakeProvider) FetchMeasurementsBulk(ctx context.Context, stationIDs []string) (map[string]*provider.Measurement, error) {
	out := make(map[string]*provider.Measurement, len(stationIDs))
	for _, id := range stationIDs {
		out[id] = p.measurements[id]
	}
	return out, nil
}

// fakeEngine avoids shelling out to piper: it writes a deterministic
// marker file instead of real audio, and counts synthesis calls so tests
// can assert on cache reuse.
type fakeEngine struct {
	synthesizeCalls int
}

func (*fakeEngine) EngineID() string      { return "fake" }
func (*fakeEngine) EngineVersion() string { return "1" }
func (*fakeEngine) ListVoices() []tts.Voice { return nil }
func (*fakeEngine) ModelVersion(voiceID string) (string, error) { return "1", nil }
func (e *fakeEngine) Synthesize(ctx context.Context, text, voiceID, outputPath string, params map[string]any) error {
	e.synthesizeCalls++
	return os.WriteFile(outputPath, []byte("fake-wav:"+text), 0o644)
}

type testHarness struct {
	store    *store.Store
	registry *provider.Registry
	sched    *scheduler.Scheduler
	cache    *tts.Cache
	engine   *fakeEngine
	seq      *sequencer.Sequencer
	driver   *ptt.MockDriver
	clk      *fakeClock
	runner   *Runner
}

func newHarness(t *testing.T, p *fakeProvider) *testHarness {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(context.Background(), filepath.Join(dir, "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := provider.NewRegistry(zerolog.Nop(), p)
	clk := &fakeClock{now: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	sched := scheduler.New(st, registry, clk, zerolog.Nop())

	engine := &fakeEngine{}
	cache, err := tts.NewCache(filepath.Join(dir, "audio_cache"), engine, ttsStoreAdapter{st}, zerolog.Nop())
	require.NoError(t, err)

	driver := ptt.NewMockDriver()
	seq := sequencer.New(driver, zerolog.Nop())

	r := New(Deps{
		Store: st, Registry: registry, Scheduler: sched, TTSCache: cache,
		Sequencer: seq, PTTDriver: driver, Clock: clk, Log: zerolog.Nop(),
	})

	return &testHarness{store: st, registry: registry, sched: sched, cache: cache, engine: engine, seq: seq, driver: driver, clk: clk, runner: r}
}

func seedChannel(t *testing.T, st *store.Store, providerID string) *store.Channel {
	t.Helper()
	c := &store.Channel{
		Name:                     "Lac Test",
		ProviderID:               providerID,
		StationID:                "123",
		StationNameCache:         "Lac Test",
		MeasurementPeriodSeconds: 600,
		OffsetsSeconds:           []int{0},
		MinIntervalSeconds:       300,
		TemplateText:             "{station_name}: vent {wind_avg_kmh} km/h",
		TTSEngineID:              "fake",
		VoiceID:                  "fr_FR-siwis-medium",
		LeadMS:                   0,
		TailMS:                   0,
		Enabled:                  true,
	}
	require.NoError(t, st.UpsertChannel(context.Background(), c))
	return c
}

func measurement(t time.Time) *provider.Measurement {
	return &provider.Measurement{MeasurementAt: t, WindAvgKmh: 15, WindMaxKmh: 20}
}

// TestHappyPathKeysPTTExactlyOnce covers spec.md §8's S1: a fresh
// measurement plans a row, the tick executes it, and PTT is keyed exactly
// once around playback.
func TestHappyPathKeysPTTExactlyOnce(t *testing.T) {
	p := &fakeProvider{id: "ffvl", measurements: map[string]*provider.Measurement{}}
	h := newHarness(t, p)
	ctx := context.Background()

	c := seedChannel(t, h.store, "ffvl")
	p.measurements[c.StationID] = measurement(h.clk.now)

	settings := defaultSettings(t, h.store)

	h.runner.tick(ctx, settings)

	row, err := h.store.LastSentForChannel(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, row.Status)
	assert.NotEmpty(t, h.driver.Calls(), "ptt must have been toggled")
	assert.False(t, h.driver.Active(), "ptt must end inactive")
}

// TestStaleMeasurementAbortsWithoutKeyingPTT covers S2: a measurement
// older than the channel's measurement period never reaches the air.
func TestStaleMeasurementAbortsWithoutKeyingPTT(t *testing.T) {
	p := &fakeProvider{id: "ffvl", measurements: map[string]*provider.Measurement{}}
	h := newHarness(t, p)
	ctx := context.Background()

	c := seedChannel(t, h.store, "ffvl")
	staleTime := h.clk.now.Add(-20 * time.Minute) // measurement_period is 600s
	p.measurements[c.StationID] = measurement(staleTime)

	settings := defaultSettings(t, h.store)
	h.runner.tick(ctx, settings)

	pending, err := h.store.PendingForChannel(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, pending, "the planned row must have been aborted, not left pending")
	assert.Empty(t, h.driver.Calls(), "ptt must never be touched for an expired measurement")
}

// TestAntiSpamAbortsWithinMinimumInterval covers S4: a second due row
// inside min-interval-between-tx is aborted rather than transmitted.
func TestAntiSpamAbortsWithinMinimumInterval(t *testing.T) {
	p := &fakeProvider{id: "ffvl", measurements: map[string]*provider.Measurement{}}
	h := newHarness(t, p)
	ctx := context.Background()

	c := seedChannel(t, h.store, "ffvl")
	c.MinIntervalSeconds = 3600
	require.NoError(t, h.store.UpsertChannel(ctx, c))

	justSent := h.clk.now.Add(-time.Minute)
	require.NoError(t, h.store.UpdateLastMeasurement(ctx, c.ID, justSent))
	require.NoError(t, h.store.RecordTxOutcome(ctx, c.ID, &justSent, ""))

	// Insert a second PENDING row directly, simulating one already planned
	// before the anti-spam window closed.
	row := &store.TxRow{
		TxID: "second-row", ChannelID: c.ID, Mode: store.ModeScheduled,
		StationID: c.StationID, MeasurementAt: h.clk.now, OffsetSeconds: 0,
		PlannedAt: h.clk.now, RenderedText: "test",
	}
	require.NoError(t, h.store.InsertTxRow(ctx, row))

	settings := defaultSettings(t, h.store)
	h.runner.tick(ctx, settings)

	pending, err := h.store.PendingForChannel(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, pending, "the anti-spammed row must have left PENDING")
	assert.Empty(t, h.driver.Calls(), "ptt must never be touched when anti-spam aborts the row")
}

// TestCacheReuseAvoidsResynthesis covers S6: two distinct channels, on two
// distinct stations, that happen to render the same text in the same
// voice must collide on one cache entry and synthesize only once. Their
// tx-ids differ (they bake in channel-id and station-id), so this only
// passes if the audio-cache-key is derived independently of the tx-id.
func TestCacheReuseAvoidsResynthesis(t *testing.T) {
	p := &fakeProvider{id: "ffvl", measurements: map[string]*provider.Measurement{}}
	h := newHarness(t, p)
	ctx := context.Background()

	c1 := seedChannel(t, h.store, "ffvl")
	c2 := seedChannel(t, h.store, "ffvl")
	c2.Name = "Lac Test 2"
	c2.StationID = "456"
	require.NoError(t, h.store.UpsertChannel(ctx, c2))

	m := measurement(h.clk.now)
	p.measurements[c1.StationID] = m
	p.measurements[c2.StationID] = m
	settings := defaultSettings(t, h.store)

	h.runner.tick(ctx, settings)

	row1, err := h.store.LastSentForChannel(ctx, c1.ID)
	require.NoError(t, err)
	row2, err := h.store.LastSentForChannel(ctx, c2.ID)
	require.NoError(t, err)

	require.NotEqual(t, row1.TxID, row2.TxID, "two channels must never share a tx-id")
	require.Equal(t, row1.RenderedText, row2.RenderedText, "identical station name and wind readings must render identical text")
	assert.Equal(t, row1.AudioPath, row2.AudioPath, "identical rendered text/voice/params must resolve to the same cached audio file")
	assert.Equal(t, 1, h.engine.synthesizeCalls, "synthesis must run exactly once for both channels combined")
}

func defaultSettings(t *testing.T, st *store.Store) *store.SystemSettings {
	t.Helper()
	s, err := st.GetSettings(context.Background())
	require.NoError(t, err)
	return s
}
