// Package scheduler detects new measurements and turns them into pending
// transmission-ledger rows, implementing the two-phase poll/plan cycle
// and the sole "cancel-on-new" policy from spec.md §4.8.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vhfbalise/runner/internal/clock"
	"github.com/vhfbalise/runner/internal/metrics"
	"github.com/vhfbalise/runner/internal/provider"
	"github.com/vhfbalise/runner/internal/store"
	"github.com/vhfbalise/runner/internal/template"
)

// ProviderGateway is the subset of provider.Registry the scheduler needs.
type ProviderGateway interface {
	FetchBulk(ctx context.Context, providerID string, stationIDs []string) (map[string]*provider.Measurement, error)
}

// Store is the subset of internal/store.Store the scheduler needs.
type Store interface {
	GetRuntime(ctx context.Context, channelID int64) (*store.ChannelRuntime, error)
	UpdateLastMeasurement(ctx context.Context, channelID int64, at time.Time) error
	UpdateNextTx(ctx context.Context, channelID int64, next *time.Time) error
	RecordTxOutcome(ctx context.Context, channelID int64, sentAt *time.Time, errMsg string) error
	PendingForChannel(ctx context.Context, channelID int64) ([]*store.TxRow, error)
	AbortPending(ctx context.Context, id int64, reason string) error
	InsertTxRow(ctx context.Context, tx *store.TxRow) error
}

// Scheduler implements spec.md §4.8's two phases.
type Scheduler struct {
	store   Store
	gateway ProviderGateway
	clock   clock.Clock
	log     zerolog.Logger
}

func New(s Store, gw ProviderGateway, clk clock.Clock, log zerolog.Logger) *Scheduler {
	return &Scheduler{store: s, gateway: gw, clock: clk, log: log}
}

// RunPhaseA polls every provider group once and plans any channel whose
// measurement has strictly advanced. A per-station fetch failure or an
// unregistered provider only affects the channels bound to it — spec
// §4.3's fails-soft contract propagates through to the tick as a whole.
func (s *Scheduler) RunPhaseA(ctx context.Context, channels []*store.Channel) {
	byProvider := make(map[string][]*store.Channel)
	for _, c := range channels {
		byProvider[c.ProviderID] = append(byProvider[c.ProviderID], c)
	}

	for providerID, group := range byProvider {
		stationIDs := make([]string, len(group))
		for i, c := range group {
			stationIDs[i] = c.StationID
		}

		measurements, err := s.gateway.FetchBulk(ctx, providerID, stationIDs)
		if err != nil {
			for _, c := range group {
				s.recordProviderError(ctx, c, err)
			}
			continue
		}

		for _, c := range group {
			m := measurements[c.StationID]
			if m == nil {
				s.recordProviderError(ctx, c, fmt.Errorf("no measurement returned for station %s", c.StationID))
				continue
			}
			s.handleMeasurement(ctx, c, m)
		}
	}
}

func (s *Scheduler) recordProviderError(ctx context.Context, c *store.Channel, err error) {
	metrics.ProviderFetchErrorsTotal.WithLabelValues(c.ProviderID).Inc()
	s.log.Warn().Err(err).Int64("channel_id", c.ID).Str("provider", c.ProviderID).Msg("provider fetch failed")
	if rtErr := s.store.RecordTxOutcome(ctx, c.ID, nil, err.Error()); rtErr != nil {
		s.log.Error().Err(rtErr).Int64("channel_id", c.ID).Msg("failed to record provider error")
	}
}

// handleMeasurement implements the "strictly newer" diff from spec §4.8:
// a measurement only triggers planning if it is newer than the last one
// this channel has already seen.
func (s *Scheduler) handleMeasurement(ctx context.Context, c *store.Channel, m *provider.Measurement) {
	rt, err := s.store.GetRuntime(ctx, c.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("channel_id", c.ID).Msg("failed to load channel runtime")
		return
	}

	if rt.LastMeasurementAt != nil && !m.MeasurementAt.After(*rt.LastMeasurementAt) {
		return
	}

	if err := s.store.UpdateLastMeasurement(ctx, c.ID, m.MeasurementAt); err != nil {
		s.log.Error().Err(err).Int64("channel_id", c.ID).Msg("failed to record new measurement")
		return
	}
	if err := s.store.RecordTxOutcome(ctx, c.ID, nil, ""); err != nil {
		s.log.Error().Err(err).Int64("channel_id", c.ID).Msg("failed to clear last_error")
	}

	s.runPhaseB(ctx, c, m)
}

// runPhaseB implements spec.md §4.8 Phase B: cancel every still-PENDING
// row for the channel, then (re)plan one row per configured offset,
// skipping any whose content-addressed tx-id already exists.
func (s *Scheduler) runPhaseB(ctx context.Context, c *store.Channel, m *provider.Measurement) {
	pending, err := s.store.PendingForChannel(ctx, c.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("channel_id", c.ID).Msg("failed to list pending rows")
		return
	}
	for _, row := range pending {
		if err := s.store.AbortPending(ctx, row.ID, "Cancelled by new measurement"); err != nil {
			s.log.Warn().Err(err).Int64("tx_row_id", row.ID).Msg("failed to abort superseded row")
		}
	}

	// now is frozen once for the whole planning pass: every offset's
	// measurement_age_minutes must reflect the instant this measurement
	// was planned, not a per-offset future prediction, so the text
	// rendered here matches what a same-tick preview would show.
	now := s.clock.Now()

	for _, offset := range c.OffsetsSeconds {
		plannedAt := m.MeasurementAt.Add(time.Duration(offset) * time.Second)

		renderedText := template.Render(c.TemplateText, template.Input{
			StationName:      c.StationNameCache,
			WindAvgKmh:       m.WindAvgKmh,
			WindMaxKmh:       m.WindMaxKmh,
			WindMinKmh:       m.WindMinKmh,
			WindDirectionDeg: m.WindDirectionDeg,
			MeasurementAt:    m.MeasurementAt,
			Now:              now,
		})

		txID := clock.Hash(c.ID, c.ProviderID, c.StationID, m.MeasurementAt.Format(time.RFC3339Nano),
			renderedText, c.TTSEngineID, c.VoiceID, c.VoiceParams, offset)

		err := s.store.InsertTxRow(ctx, &store.TxRow{
			TxID:          txID,
			Mode:          store.ModeScheduled,
			ChannelID:     c.ID,
			StationID:     c.StationID,
			MeasurementAt: m.MeasurementAt,
			OffsetSeconds: offset,
			PlannedAt:     plannedAt,
			RenderedText:  renderedText,
		})
		if err != nil {
			if err == store.ErrTxExists {
				continue
			}
			s.log.Error().Err(err).Int64("channel_id", c.ID).Msg("failed to insert planned row")
		}
	}

	s.recomputeNextTx(ctx, c.ID)
}

// recomputeNextTx sets runtime.next-tx-at to the earliest remaining
// PENDING planned-at for the channel, or clears it (spec §4.8 step 3).
func (s *Scheduler) recomputeNextTx(ctx context.Context, channelID int64) {
	pending, err := s.store.PendingForChannel(ctx, channelID)
	if err != nil {
		s.log.Error().Err(err).Int64("channel_id", channelID).Msg("failed to recompute next_tx_at")
		return
	}
	if len(pending) == 0 {
		_ = s.store.UpdateNextTx(ctx, channelID, nil)
		return
	}
	earliest := pending[0].PlannedAt
	for _, row := range pending[1:] {
		if row.PlannedAt.Before(earliest) {
			earliest = row.PlannedAt
		}
	}
	_ = s.store.UpdateNextTx(ctx, channelID, &earliest)
}
