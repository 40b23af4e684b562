package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetSettings reads the singleton system_settings row. The runner re-reads
// this every tick (spec §4.1) so an operator toggling master_enabled or
// poll_interval_seconds through the admin API takes effect without a
// restart.
func (s *Store) GetSettings(ctx context.Context) (*SystemSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT master_enabled, poll_interval_seconds, inter_announcement_pause_seconds,
		       ptt_gpio_pin, ptt_active_level, ptt_lead_ms, ptt_tail_ms, tx_timeout_seconds
		FROM system_settings WHERE id = 1`)

	var st SystemSettings
	var masterEnabled int
	var pttPin sql.NullInt64
	if err := row.Scan(
		&masterEnabled, &st.PollIntervalSeconds, &st.InterAnnouncementPauseSeconds,
		&pttPin, &st.PTTActiveLevel, &st.PTTLeadMS, &st.PTTTailMS, &st.TxTimeoutSeconds,
	); err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	st.MasterEnabled = masterEnabled != 0
	if pttPin.Valid {
		pin := int(pttPin.Int64)
		st.PTTGPIOPin = &pin
	}
	return &st, nil
}

// PutSettings overwrites the singleton settings row. Exercised by tests
// standing in for the admin API.
func (s *Store) PutSettings(ctx context.Context, st *SystemSettings) error {
	var pttPin any
	if st.PTTGPIOPin != nil {
		pttPin = *st.PTTGPIOPin
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE system_settings SET
			master_enabled = ?, poll_interval_seconds = ?, inter_announcement_pause_seconds = ?,
			ptt_gpio_pin = ?, ptt_active_level = ?, ptt_lead_ms = ?, ptt_tail_ms = ?, tx_timeout_seconds = ?
		WHERE id = 1`,
		boolToInt(st.MasterEnabled), st.PollIntervalSeconds, st.InterAnnouncementPauseSeconds,
		pttPin, st.PTTActiveLevel, st.PTTLeadMS, st.PTTTailMS, st.TxTimeoutSeconds)
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}
