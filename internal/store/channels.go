package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ListEnabledChannels returns every channel with enabled = 1, used by the
// scheduler's Phase A grouping-by-provider pass (spec §4.3).
func (s *Store) ListEnabledChannels(ctx context.Context) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provider_id, station_id, station_name_cache, station_visual_url_cache,
		       measurement_period_seconds, offsets_seconds_json, min_interval_between_tx_seconds,
		       template_text, voice_engine_id, voice_id, voice_params_json, audio_device,
		       ptt_lead_ms, ptt_tail_ms, enabled, created_at, updated_at
		FROM channels WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled channels: %w", err)
	}
	defer rows.Close()

	var out []*Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChannel fetches a single channel by ID, regardless of enabled state
// (used by the runner's per-row channel resolution step).
func (s *Store) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, provider_id, station_id, station_name_cache, station_visual_url_cache,
		       measurement_period_seconds, offsets_seconds_json, min_interval_between_tx_seconds,
		       template_text, voice_engine_id, voice_id, voice_params_json, audio_device,
		       ptt_lead_ms, ptt_tail_ms, enabled, created_at, updated_at
		FROM channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(r rowScanner) (*Channel, error) {
	var c Channel
	var stationName, stationVisual, voiceParamsJSON, audioDevice sql.NullString
	var offsetsJSON string
	var enabled int
	var createdAt, updatedAt string

	if err := r.Scan(
		&c.ID, &c.Name, &c.ProviderID, &c.StationID, &stationName, &stationVisual,
		&c.MeasurementPeriodSeconds, &offsetsJSON, &c.MinIntervalSeconds,
		&c.TemplateText, &c.TTSEngineID, &c.VoiceID, &voiceParamsJSON, &audioDevice,
		&c.LeadMS, &c.TailMS, &enabled, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	c.StationNameCache = stationName.String
	c.StationVisualURLCache = stationVisual.String
	c.AudioDevice = audioDevice.String
	c.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(offsetsJSON), &c.OffsetsSeconds); err != nil {
		return nil, fmt.Errorf("decode offsets_seconds_json: %w", err)
	}
	if voiceParamsJSON.Valid && voiceParamsJSON.String != "" {
		if err := json.Unmarshal([]byte(voiceParamsJSON.String), &c.VoiceParams); err != nil {
			return nil, fmt.Errorf("decode voice_params_json: %w", err)
		}
	}

	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &c, nil
}

// UpsertChannel inserts or replaces a channel definition. The runner itself
// never calls this (channel authoring is the out-of-scope admin API's job),
// but it's exercised directly by tests and by any seed/import tooling.
func (s *Store) UpsertChannel(ctx context.Context, c *Channel) error {
	if err := c.Validate(); err != nil {
		return err
	}
	offsetsJSON, err := json.Marshal(c.OffsetsSeconds)
	if err != nil {
		return fmt.Errorf("encode offsets_seconds: %w", err)
	}
	var voiceParamsJSON []byte
	if c.VoiceParams != nil {
		if voiceParamsJSON, err = json.Marshal(c.VoiceParams); err != nil {
			return fmt.Errorf("encode voice_params: %w", err)
		}
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (
			id, name, provider_id, station_id, station_name_cache, station_visual_url_cache,
			measurement_period_seconds, offsets_seconds_json, min_interval_between_tx_seconds,
			template_text, voice_engine_id, voice_id, voice_params_json, audio_device,
			ptt_lead_ms, ptt_tail_ms, enabled, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, provider_id=excluded.provider_id, station_id=excluded.station_id,
			station_name_cache=excluded.station_name_cache, station_visual_url_cache=excluded.station_visual_url_cache,
			measurement_period_seconds=excluded.measurement_period_seconds,
			offsets_seconds_json=excluded.offsets_seconds_json,
			min_interval_between_tx_seconds=excluded.min_interval_between_tx_seconds,
			template_text=excluded.template_text, voice_engine_id=excluded.voice_engine_id,
			voice_id=excluded.voice_id, voice_params_json=excluded.voice_params_json,
			audio_device=excluded.audio_device, ptt_lead_ms=excluded.ptt_lead_ms,
			ptt_tail_ms=excluded.ptt_tail_ms, enabled=excluded.enabled, updated_at=excluded.updated_at`,
		nullIfZero(c.ID), c.Name, c.ProviderID, c.StationID,
		nullIfEmpty(c.StationNameCache), nullIfEmpty(c.StationVisualURLCache),
		c.MeasurementPeriodSeconds, string(offsetsJSON), c.MinIntervalSeconds,
		c.TemplateText, c.TTSEngineID, c.VoiceID, nullIfEmptyBytes(voiceParamsJSON), nullIfEmpty(c.AudioDevice),
		c.LeadMS, c.TailMS, boolToInt(c.Enabled), c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	if c.ID == 0 {
		c.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read new channel id: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO channel_runtime (channel_id) VALUES (?)`, c.ID); err != nil {
			return fmt.Errorf("seed channel_runtime: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfZero(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
