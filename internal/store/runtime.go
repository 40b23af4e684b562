package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetRuntime fetches the 1:1 runtime row for a channel.
func (s *Store) GetRuntime(ctx context.Context, channelID int64) (*ChannelRuntime, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel_id, last_measurement_at, last_tx_at, next_tx_at, last_error
		FROM channel_runtime WHERE channel_id = ?`, channelID)

	var rt ChannelRuntime
	var lastMeasurement, lastTx, nextTx, lastErr sql.NullString
	if err := row.Scan(&rt.ChannelID, &lastMeasurement, &lastTx, &nextTx, &lastErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get runtime: %w", err)
	}

	var err error
	if rt.LastMeasurementAt, err = parseNullTime(lastMeasurement); err != nil {
		return nil, err
	}
	if rt.LastTxAt, err = parseNullTime(lastTx); err != nil {
		return nil, err
	}
	if rt.NextTxAt, err = parseNullTime(nextTx); err != nil {
		return nil, err
	}
	if lastErr.Valid {
		rt.LastError = &lastErr.String
	}
	return &rt, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return &t, nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// UpdateLastMeasurement records a newly-observed measurement timestamp for
// a channel. Called by the scheduler's Phase A on every strictly-newer
// measurement (spec §4.3).
func (s *Store) UpdateLastMeasurement(ctx context.Context, channelID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channel_runtime SET last_measurement_at = ? WHERE channel_id = ?`,
		at.UTC().Format(time.RFC3339Nano), channelID)
	if err != nil {
		return fmt.Errorf("update last_measurement_at: %w", err)
	}
	return nil
}

// UpdateNextTx sets the next planned transmission time, or clears it when
// next is nil (no pending rows remain for the channel).
func (s *Store) UpdateNextTx(ctx context.Context, channelID int64, next *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channel_runtime SET next_tx_at = ? WHERE channel_id = ?`,
		formatNullTime(next), channelID)
	if err != nil {
		return fmt.Errorf("update next_tx_at: %w", err)
	}
	return nil
}

// RecordTxOutcome stamps last_tx_at (on success) and last_error (cleared on
// success, set on failure) after a transmission attempt completes.
func (s *Store) RecordTxOutcome(ctx context.Context, channelID int64, sentAt *time.Time, errMsg string) error {
	var lastErr any
	if errMsg != "" {
		lastErr = errMsg
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE channel_runtime SET last_tx_at = COALESCE(?, last_tx_at), last_error = ?
		WHERE channel_id = ?`, formatNullTime(sentAt), lastErr, channelID)
	if err != nil {
		return fmt.Errorf("record tx outcome: %w", err)
	}
	return nil
}
