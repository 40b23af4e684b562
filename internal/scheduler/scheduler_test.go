package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhfbalise/runner/internal/clock"
	"github.com/vhfbalise/runner/internal/provider"
	"github.com/vhfbalise/runner/internal/store"
)

// fakeClock lets tests freeze "now" independently of the measurement
// timestamps under test.
type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time                       { return c.now }
func (c fakeClock) Sleep(time.Duration)                   {}
func (c fakeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// fakeGateway answers FetchBulk from a fixed, per-provider table so tests
// can drive the scheduler without a real HTTP provider.
type fakeGateway struct {
	byProvider map[string]map[string]*provider.Measurement
	errByProvider map[string]error
	calls         []string
}

func (g *fakeGateway) FetchBulk(ctx context.Context, providerID string, stationIDs []string) (map[string]*provider.Measurement, error) {
	g.calls = append(g.calls, providerID)
	if err := g.errByProvider[providerID]; err != nil {
		return nil, err
	}
	return g.byProvider[providerID], nil
}

// fakeStore is an in-memory stand-in for internal/store.Store, scoped to
// exactly the methods the scheduler's Store interface declares.
type fakeStore struct {
	runtime map[int64]*store.ChannelRuntime
	pending map[int64][]*store.TxRow
	inserted []*store.TxRow
	aborted  []int64
	nextID   int64
	existingTxIDs map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runtime:       make(map[int64]*store.ChannelRuntime),
		pending:       make(map[int64][]*store.TxRow),
		existingTxIDs: make(map[string]bool),
	}
}

func (s *fakeStore) GetRuntime(ctx context.Context, channelID int64) (*store.ChannelRuntime, error) {
	if rt, ok := s.runtime[channelID]; ok {
		return rt, nil
	}
	return &store.ChannelRuntime{ChannelID: channelID}, nil
}

func (s *fakeStore) UpdateLastMeasurement(ctx context.Context, channelID int64, at time.Time) error {
	rt := s.runtimeFor(channelID)
	t := at
	rt.LastMeasurementAt = &t
	return nil
}

func (s *fakeStore) UpdateNextTx(ctx context.Context, channelID int64, next *time.Time) error {
	s.runtimeFor(channelID).NextTxAt = next
	return nil
}

func (s *fakeStore) RecordTxOutcome(ctx context.Context, channelID int64, sentAt *time.Time, errMsg string) error {
	rt := s.runtimeFor(channelID)
	if errMsg != "" {
		rt.LastError = &errMsg
	} else {
		rt.LastError = nil
	}
	return nil
}

func (s *fakeStore) PendingForChannel(ctx context.Context, channelID int64) ([]*store.TxRow, error) {
	return s.pending[channelID], nil
}

func (s *fakeStore) AbortPending(ctx context.Context, id int64, reason string) error {
	s.aborted = append(s.aborted, id)
	for _, rows := range s.pending {
		for _, r := range rows {
			if r.ID == id {
				r.Status = store.StatusAborted
				r.ErrorMessage = reason
			}
		}
	}
	return nil
}

func (s *fakeStore) InsertTxRow(ctx context.Context, tx *store.TxRow) error {
	if s.existingTxIDs[tx.TxID] {
		return store.ErrTxExists
	}
	s.existingTxIDs[tx.TxID] = true
	s.nextID++
	tx.ID = s.nextID
	s.inserted = append(s.inserted, tx)
	s.pending[tx.ChannelID] = append(s.pending[tx.ChannelID], tx)
	return nil
}

func (s *fakeStore) runtimeFor(channelID int64) *store.ChannelRuntime {
	rt, ok := s.runtime[channelID]
	if !ok {
		rt = &store.ChannelRuntime{ChannelID: channelID}
		s.runtime[channelID] = rt
	}
	return rt
}

func testChannel() *store.Channel {
	return &store.Channel{
		ID:                 1,
		Name:               "Lac Test",
		ProviderID:         "ffvl",
		StationID:          "123",
		StationNameCache:   "Lac Test",
		OffsetsSeconds:     []int{0, 300},
		MinIntervalSeconds: 60,
		TemplateText:       "{station_name}: vent {wind_avg_kmh} km/h",
		TTSEngineID:        "piper",
		VoiceID:            "fr_FR-siwis-medium",
		Enabled:            true,
	}
}

func measurementAt(t time.Time, avg float64) *provider.Measurement {
	return &provider.Measurement{MeasurementAt: t, WindAvgKmh: avg, WindMaxKmh: avg + 2}
}

func TestRunPhaseAPlansOnFirstMeasurement(t *testing.T) {
	c := testChannel()
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	gw := &fakeGateway{byProvider: map[string]map[string]*provider.Measurement{
		"ffvl": {"123": measurementAt(now, 12.5)},
	}}
	st := newFakeStore()
	sched := New(st, gw, clock.System{}, zerolog.Nop())

	sched.RunPhaseA(context.Background(), []*store.Channel{c})

	require.Len(t, st.inserted, 2, "one planned row per offset")
	assert.Equal(t, now, *st.runtime[c.ID].LastMeasurementAt)
	assert.NotNil(t, st.runtime[c.ID].NextTxAt)
}

func TestRunPhaseASkipsWhenMeasurementNotNewer(t *testing.T) {
	c := testChannel()
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	gw := &fakeGateway{byProvider: map[string]map[string]*provider.Measurement{
		"ffvl": {"123": measurementAt(now, 12.5)},
	}}
	st := newFakeStore()
	st.runtime[c.ID] = &store.ChannelRuntime{ChannelID: c.ID, LastMeasurementAt: &now}
	sched := New(st, gw, clock.System{}, zerolog.Nop())

	sched.RunPhaseA(context.Background(), []*store.Channel{c})

	assert.Empty(t, st.inserted, "no new measurement means no planning")
}

func TestRunPhaseACancelsExistingPendingOnNewMeasurement(t *testing.T) {
	c := testChannel()
	older := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	st := newFakeStore()
	st.runtime[c.ID] = &store.ChannelRuntime{ChannelID: c.ID, LastMeasurementAt: &older}
	st.pending[c.ID] = []*store.TxRow{
		{ID: 99, ChannelID: c.ID, TxID: "stale-row", Status: store.StatusPending, PlannedAt: older.Add(5 * time.Minute)},
	}

	gw := &fakeGateway{byProvider: map[string]map[string]*provider.Measurement{
		"ffvl": {"123": measurementAt(newer, 20)},
	}}
	sched := New(st, gw, clock.System{}, zerolog.Nop())

	sched.RunPhaseA(context.Background(), []*store.Channel{c})

	assert.Contains(t, st.aborted, int64(99), "stale pending row must be cancelled")
}

func TestRunPhaseAInsertIsIdempotentOnRepeatedTxID(t *testing.T) {
	c := testChannel()
	c.OffsetsSeconds = []int{0}
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	gw := &fakeGateway{byProvider: map[string]map[string]*provider.Measurement{
		"ffvl": {"123": measurementAt(now, 12.5)},
	}}
	st := newFakeStore()
	sched := New(st, gw, clock.System{}, zerolog.Nop())

	sched.RunPhaseA(context.Background(), []*store.Channel{c})
	require.Len(t, st.inserted, 1)

	// Force the same tx_id to already exist, as if a crash-restart replanned
	// an identical row: InsertTxRow must be skipped silently, not retried.
	st.runtime[c.ID].LastMeasurementAt = nil
	sched.RunPhaseA(context.Background(), []*store.Channel{c})
	assert.Len(t, st.inserted, 1, "re-planning an identical measurement must not duplicate the row")
}

func TestRunPhaseAGroupsStationsByProviderInOneFetchCall(t *testing.T) {
	c1 := testChannel()
	c2 := testChannel()
	c2.ID = 2
	c2.StationID = "456"

	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	gw := &fakeGateway{byProvider: map[string]map[string]*provider.Measurement{
		"ffvl": {
			"123": measurementAt(now, 10),
			"456": measurementAt(now, 11),
		},
	}}
	st := newFakeStore()
	sched := New(st, gw, clock.System{}, zerolog.Nop())

	sched.RunPhaseA(context.Background(), []*store.Channel{c1, c2})

	assert.Len(t, gw.calls, 1, "both channels share the ffvl provider and must be fetched in one bulk call")
}

func TestRunPhaseARecordsProviderErrorWithoutPlanning(t *testing.T) {
	c := testChannel()
	gw := &fakeGateway{errByProvider: map[string]error{"ffvl": assertErr("provider down")}}
	st := newFakeStore()
	sched := New(st, gw, clock.System{}, zerolog.Nop())

	sched.RunPhaseA(context.Background(), []*store.Channel{c})

	assert.Empty(t, st.inserted)
	require.NotNil(t, st.runtime[c.ID].LastError)
	assert.Contains(t, *st.runtime[c.ID].LastError, "provider down")
}

// TestRunPhaseBRendersSameAgeAcrossAllOffsets covers spec.md §4.4/§4.8: one
// planning pass must render every offset's row with the same
// measurement_age_minutes, taken from the real clock at planning time, not
// from each offset's own predicted future planned-at.
func TestRunPhaseBRendersSameAgeAcrossAllOffsets(t *testing.T) {
	c := testChannel()
	c.OffsetsSeconds = []int{0, 1200}
	c.TemplateText = "{station_name}: vent {wind_avg_kmh} km/h, mesure il y a {measurement_age_minutes} min"

	measurementAtT := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	planningNow := measurementAtT.Add(5 * time.Second)

	gw := &fakeGateway{byProvider: map[string]map[string]*provider.Measurement{
		"ffvl": {"123": measurementAt(measurementAtT, 12.5)},
	}}
	st := newFakeStore()
	sched := New(st, gw, fakeClock{now: planningNow}, zerolog.Nop())

	sched.RunPhaseA(context.Background(), []*store.Channel{c})

	require.Len(t, st.inserted, 2, "one planned row per offset")
	assert.Equal(t, st.inserted[0].RenderedText, st.inserted[1].RenderedText,
		"both offsets must render the same age, frozen from the planning-time clock")
	assert.Contains(t, st.inserted[0].RenderedText, "il y a 0 min",
		"5 seconds after measurement must round down to 0 minutes, not predict a future offset's age")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
