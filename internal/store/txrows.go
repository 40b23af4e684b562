package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InsertTxRow inserts a new PENDING row keyed by its content-addressed
// tx_id. If a row with the same tx_id already exists, ErrTxExists is
// returned and no row is inserted — the idempotent-insert contract spec
// §4.2/§4.3 requires so that re-planning after a process restart never
// double-books an announcement. Callers must treat ErrTxExists as a no-op,
// not a failure.
func (s *Store) InsertTxRow(ctx context.Context, tx *TxRow) error {
	now := tx.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tx_history (
			tx_id, channel_id, mode, status, station_id, measurement_at, offset_seconds,
			planned_at, sent_at, rendered_text, audio_path, error_message, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tx.TxID, tx.ChannelID, string(tx.Mode), string(StatusPending),
		tx.StationID, tx.MeasurementAt.UTC().Format(time.RFC3339Nano), tx.OffsetSeconds,
		tx.PlannedAt.UTC().Format(time.RFC3339Nano), formatNullTime(tx.SentAt),
		tx.RenderedText, nullIfEmpty(tx.AudioPath), nullIfEmpty(tx.ErrorMessage),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTxExists
		}
		return fmt.Errorf("insert tx row: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// DuePending returns PENDING rows whose planned_at is at or before `now`,
// ordered by planned_at ascending — the strict chronological execution
// order spec §4.1/§4.9 requires across all channels.
func (s *Store) DuePending(ctx context.Context, now time.Time) ([]*TxRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_id, mode, status, channel_id, station_id, measurement_at, offset_seconds,
		       planned_at, sent_at, rendered_text, audio_path, error_message, created_at
		FROM tx_history
		WHERE status = ? AND planned_at <= ?
		ORDER BY planned_at ASC`, string(StatusPending), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query due pending: %w", err)
	}
	defer rows.Close()
	return scanTxRows(rows)
}

// PendingForChannel returns every still-PENDING row for a channel, used by
// the scheduler's cancel-on-new policy (spec §4.3: a newer measurement
// aborts all not-yet-sent rows for that channel).
func (s *Store) PendingForChannel(ctx context.Context, channelID int64) ([]*TxRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_id, mode, status, channel_id, station_id, measurement_at, offset_seconds,
		       planned_at, sent_at, rendered_text, audio_path, error_message, created_at
		FROM tx_history WHERE channel_id = ? AND status = ?
		ORDER BY planned_at ASC`, channelID, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending for channel: %w", err)
	}
	defer rows.Close()
	return scanTxRows(rows)
}

// LastSentForChannel returns the most recently sent row for a channel, or
// ErrNotFound if none. The anti-spam / min-interval check does not use
// it; that check reads channel_runtime.last_tx_at.
func (s *Store) LastSentForChannel(ctx context.Context, channelID int64) (*TxRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tx_id, mode, status, channel_id, station_id, measurement_at, offset_seconds,
		       planned_at, sent_at, rendered_text, audio_path, error_message, created_at
		FROM tx_history WHERE channel_id = ? AND status = ?
		ORDER BY sent_at DESC LIMIT 1`, channelID, string(StatusSent))
	tx, err := scanTxRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// AbortPending marks a single PENDING row ABORTED with the given reason.
// Used both by the scheduler's cancel-on-new (spec §4.3) and by the
// runner's anti-spam and expiry aborts; bootstrap cleanup of stale rows
// goes through AbortStalePending instead.
func (s *Store) AbortPending(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tx_history SET status = ?, error_message = ?
		WHERE id = ? AND status = ?`, string(StatusAborted), reason, id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("abort pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("abort pending rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AbortStalePending aborts every PENDING row whose planned_at is older
// than cutoff. Used once at process bootstrap to clear rows that were
// never executed across a crash/restart (spec §4.8): the cutoff is
// planned_at, not created_at, and the window is 1 hour, per spec §9's
// correction of the historical implementation's bug.
func (s *Store) AbortStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tx_history SET status = ?, error_message = ?
		WHERE status = ? AND planned_at < ?`,
		string(StatusAborted), reason, string(StatusPending), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("abort stale pending: %w", err)
	}
	return res.RowsAffected()
}

// MarkSent transitions a row PENDING -> SENT, recording sentAt and the
// resolved audio path. The caller must already hold the optimistic
// pre-PTT commit invariant (spec §4.7): this is called BEFORE keying PTT,
// not after, so a crash mid-transmission leaves the row SENT and it is
// never transmitted a second time.
func (s *Store) MarkSent(ctx context.Context, id int64, sentAt time.Time, audioPath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tx_history SET status = ?, sent_at = ?, audio_path = ? WHERE id = ?`,
		string(StatusSent), sentAt.UTC().Format(time.RFC3339Nano), audioPath, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed transitions a row to FAILED with an error message, from any
// status. Used when channel resolution, the measurement re-fetch or
// synthesis fails before the optimistic SENT commit, and when the
// sequencer fails after it (overwriting SENT). Expired rows are aborted
// instead.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tx_history SET status = ?, error_message = ? WHERE id = ?`,
		string(StatusFailed), reason, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func scanTxRows(rows *sql.Rows) ([]*TxRow, error) {
	var out []*TxRow
	for rows.Next() {
		tx, err := scanTxRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTxRow(r rowScanner) (*TxRow, error) {
	var tx TxRow
	var mode, status string
	var measurementAt, plannedAt, createdAt string
	var sentAt sql.NullString
	var audioPath, errMsg sql.NullString

	if err := r.Scan(
		&tx.ID, &tx.TxID, &mode, &status, &tx.ChannelID, &tx.StationID, &measurementAt,
		&tx.OffsetSeconds, &plannedAt, &sentAt, &tx.RenderedText, &audioPath, &errMsg, &createdAt,
	); err != nil {
		return nil, err
	}
	tx.Mode = TxMode(mode)
	tx.Status = TxStatus(status)
	tx.AudioPath = audioPath.String
	tx.ErrorMessage = errMsg.String

	var err error
	if tx.MeasurementAt, err = time.Parse(time.RFC3339Nano, measurementAt); err != nil {
		return nil, fmt.Errorf("decode measurement_at: %w", err)
	}
	if tx.PlannedAt, err = time.Parse(time.RFC3339Nano, plannedAt); err != nil {
		return nil, fmt.Errorf("decode planned_at: %w", err)
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if tx.SentAt, err = parseNullTime(sentAt); err != nil {
		return nil, err
	}
	return &tx, nil
}
