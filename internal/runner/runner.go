// Package runner implements the top-level orchestration loop: single
// instance enforcement, bootstrap cleanup, the 1-second tick, and the
// fail-closed per-transmission execution procedure (spec.md §4.9/§4.10).
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vhfbalise/runner/internal/clock"
	"github.com/vhfbalise/runner/internal/metrics"
	"github.com/vhfbalise/runner/internal/provider"
	"github.com/vhfbalise/runner/internal/ptt"
	"github.com/vhfbalise/runner/internal/scheduler"
	"github.com/vhfbalise/runner/internal/sequencer"
	"github.com/vhfbalise/runner/internal/store"
	"github.com/vhfbalise/runner/internal/tts"
)

// staleRowCutoff is how far in the past a still-PENDING row's planned_at
// must be before bootstrap cleanup aborts it — spec.md §9's corrected
// window (the historical implementation used 120s against created_at; the
// fix is 1 hour against planned_at).
const staleRowCutoff = time.Hour

// Runner wires every component built so far into the single tick loop
// spec.md §4.10 describes.
type Runner struct {
	store     *store.Store
	registry  *provider.Registry
	scheduler *scheduler.Scheduler
	ttsCache  *tts.Cache
	sequencer *sequencer.Sequencer
	pttDriver ptt.Driver
	clk       clock.Clock
	log       zerolog.Logger

	lastPollAt time.Time
}

// Deps bundles the already-constructed components cmd/vhf-runnerd wires
// together; Runner itself builds no infrastructure, it only orchestrates.
type Deps struct {
	Store     *store.Store
	Registry  *provider.Registry
	Scheduler *scheduler.Scheduler
	TTSCache  *tts.Cache
	Sequencer *sequencer.Sequencer
	PTTDriver ptt.Driver
	Clock     clock.Clock
	Log       zerolog.Logger
}

func New(d Deps) *Runner {
	return &Runner{
		store:     d.Store,
		registry:  d.Registry,
		scheduler: d.Scheduler,
		ttsCache:  d.TTSCache,
		sequencer: d.Sequencer,
		pttDriver: d.PTTDriver,
		clk:       d.Clock,
		log:       d.Log,
	}
}

// Bootstrap runs the one-time cleanup spec.md §4.10 requires immediately
// after the store is open and the PID lock is held: any row still
// PENDING whose planned_at is more than an hour in the past is a crash
// leftover that will never execute correctly and must not go to air late.
func (r *Runner) Bootstrap(ctx context.Context) error {
	cutoff := r.clk.Now().Add(-staleRowCutoff)
	n, err := r.store.AbortStalePending(ctx, cutoff, "planned_at > 1h ago")
	if err != nil {
		return fmt.Errorf("runner: bootstrap cleanup: %w", err)
	}
	if n > 0 {
		r.log.Warn().Int64("count", n).Msg("aborted stale PENDING rows left over from a previous run")
	}
	return nil
}

// Run executes the tick loop until ctx is cancelled. Exactly the shape of
// spec.md §4.10: sleep 1s, re-read settings, gate on master-enabled and
// poll-interval, then run one iteration.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clk.After(time.Second):
		}

		settings, err := r.store.GetSettings(ctx)
		if err != nil {
			r.log.Error().Err(err).Msg("failed to read system settings")
			continue
		}
		if !settings.MasterEnabled {
			continue
		}
		if !r.lastPollAt.IsZero() && r.clk.Now().Sub(r.lastPollAt) < time.Duration(settings.PollIntervalSeconds)*time.Second {
			continue
		}

		r.tick(ctx, settings)
		r.lastPollAt = r.clk.Now()
	}
}

// tick runs one full iteration: Phase A/B planning, then execution of
// every row due at this instant, oldest planned_at first.
func (r *Runner) tick(ctx context.Context, settings *store.SystemSettings) {
	r.registry.RefreshCredentials(ctx, credentialAdapter{r.store})

	channels, err := r.store.ListEnabledChannels(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list enabled channels")
		return
	}
	if len(channels) == 0 {
		return
	}

	r.scheduler.RunPhaseA(ctx, channels)

	due, err := r.store.DuePending(ctx, r.clk.Now())
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list due transmissions")
		return
	}

	affected := make(map[int64]struct{}, len(due))
	for i, row := range due {
		affected[row.ChannelID] = struct{}{}
		r.executeOne(ctx, row, settings)

		if i < len(due)-1 {
			r.clk.Sleep(time.Duration(settings.InterAnnouncementPauseSeconds) * time.Second)
		}
	}

	for channelID := range affected {
		r.recomputeNextTx(ctx, channelID)
	}
}

// executeOne runs spec.md §4.9's ten-step fail-closed procedure for a
// single due row.
func (r *Runner) executeOne(ctx context.Context, row *store.TxRow, settings *store.SystemSettings) {
	attemptID := uuid.NewString()
	log := r.log.With().Str("attempt_id", attemptID).Int64("tx_row_id", row.ID).Logger()

	// Step 1: resolve channel.
	channel, err := r.store.GetChannel(ctx, row.ChannelID)
	if err != nil {
		r.fail(ctx, row, "Channel not found", log)
		return
	}

	// Step 2: anti-spam against the channel's minimum interval.
	rt, err := r.store.GetRuntime(ctx, channel.ID)
	if err != nil {
		r.fail(ctx, row, "failed to read channel runtime", log)
		return
	}
	if rt.LastTxAt != nil {
		since := r.clk.Now().Sub(*rt.LastTxAt)
		if since < time.Duration(channel.MinIntervalSeconds)*time.Second {
			r.abort(ctx, row, channel.ID, fmt.Sprintf("anti-spam: %s since last tx < %ds minimum", since, channel.MinIntervalSeconds), log)
			return
		}
	}

	// Step 3: re-fetch the current measurement.
	measurements, err := r.registry.FetchBulk(ctx, channel.ProviderID, []string{channel.StationID})
	if err != nil {
		r.fail(ctx, row, fmt.Sprintf("re-fetch measurement: %s", err), log)
		return
	}
	m, ok := measurements[channel.StationID]
	if !ok || m == nil {
		r.fail(ctx, row, "measurement absent on re-fetch", log)
		return
	}

	// Step 4: expiry check A.
	if isExpired(r.clk.Now(), m.MeasurementAt, channel.MeasurementPeriodSeconds) {
		r.abort(ctx, row, channel.ID, "expired", log)
		return
	}

	// Step 5: resolve audio (content-addressed, reuses cache on identical
	// text/voice/params).
	audioPath, err := r.ttsCache.GetOrSynthesize(ctx, row.RenderedText, channel.VoiceID, channel.VoiceParams)
	if err != nil {
		r.fail(ctx, row, fmt.Sprintf("synthesize audio: %s", err), log)
		return
	}

	// Step 6: expiry check B, immediately before keying PTT — synthesis
	// may have taken long enough to invalidate the announcement.
	if isExpired(r.clk.Now(), m.MeasurementAt, channel.MeasurementPeriodSeconds) {
		r.abort(ctx, row, channel.ID, "expired", log)
		return
	}

	// Step 7: optimistic pre-commit. The ledger records the attempt
	// atomically with the side effect that follows; a FAILED write below
	// overrides on error.
	sentAt := r.clk.Now()
	if err := r.store.MarkSent(ctx, row.ID, sentAt, audioPath); err != nil {
		log.Error().Err(err).Msg("failed to pre-commit SENT status")
		return
	}
	if err := r.store.RecordTxOutcome(ctx, channel.ID, &sentAt, ""); err != nil {
		log.Error().Err(err).Msg("failed to record tx outcome")
	}

	leadMS, tailMS := channel.LeadMS, channel.TailMS
	if leadMS == 0 {
		leadMS = settings.PTTLeadMS
	}
	if tailMS == 0 {
		tailMS = settings.PTTTailMS
	}

	// Step 8: transmit.
	txStart := r.clk.Now()
	if err := r.sequencer.Transmit(ctx, audioPath, leadMS, tailMS, settings.TxTimeoutSeconds); err != nil {
		// Step 9: any exception downgrades the optimistic SENT to FAILED.
		metrics.TransmissionsTotal.WithLabelValues("failed").Inc()
		if markErr := r.store.MarkFailed(ctx, row.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("failed to mark row failed after transmit error")
		}
		if rtErr := r.store.RecordTxOutcome(ctx, channel.ID, nil, err.Error()); rtErr != nil {
			log.Error().Err(rtErr).Msg("failed to record tx failure")
		}
		log.Error().Err(err).Msg("transmission failed")
		return
	}
	metrics.PTTKeyDurationSeconds.Observe(r.clk.Now().Sub(txStart).Seconds())
	metrics.TransmissionsTotal.WithLabelValues("sent").Inc()

	log.Info().Str("audio_path", audioPath).Msg("transmission complete")
}

func (r *Runner) fail(ctx context.Context, row *store.TxRow, reason string, log zerolog.Logger) {
	metrics.TransmissionsTotal.WithLabelValues("failed").Inc()
	if err := r.store.MarkFailed(ctx, row.ID, reason); err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("failed to mark row failed")
		return
	}
	log.Warn().Str("reason", reason).Msg("transmission failed before PTT")
}

func (r *Runner) abort(ctx context.Context, row *store.TxRow, channelID int64, reason string, log zerolog.Logger) {
	metrics.TransmissionsTotal.WithLabelValues("aborted").Inc()
	if err := r.store.AbortPending(ctx, row.ID, reason); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("reason", reason).Msg("failed to abort row")
		return
	}
	if err := r.store.UpdateNextTx(ctx, channelID, nil); err != nil {
		log.Warn().Err(err).Msg("failed to clear next_tx_at after abort")
	}
	log.Info().Str("reason", reason).Msg("transmission aborted")
}

// recomputeNextTx mirrors scheduler's own bookkeeping after execution has
// consumed (or aborted) rows for a channel, so next_tx_at always reflects
// whatever PENDING rows remain.
func (r *Runner) recomputeNextTx(ctx context.Context, channelID int64) {
	pending, err := r.store.PendingForChannel(ctx, channelID)
	if err != nil {
		r.log.Error().Err(err).Int64("channel_id", channelID).Msg("failed to recompute next_tx_at")
		return
	}
	if len(pending) == 0 {
		_ = r.store.UpdateNextTx(ctx, channelID, nil)
		return
	}
	earliest := pending[0].PlannedAt
	for _, row := range pending[1:] {
		if row.PlannedAt.Before(earliest) {
			earliest = row.PlannedAt
		}
	}
	_ = r.store.UpdateNextTx(ctx, channelID, &earliest)
}

// isExpired implements spec.md §4.9 expiry checks A/B: a measurement is
// stale once more time has passed than the channel's own measurement
// period, which also defines how often a fresh reading is expected.
func isExpired(now, measurementAt time.Time, measurementPeriodSeconds int) bool {
	return now.Sub(measurementAt) > time.Duration(measurementPeriodSeconds)*time.Second
}
