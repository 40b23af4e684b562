package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

// LookupAudioCache implements the original's get_or_synthesize read path:
// if the indexed file is missing from disk (e.g. deleted out-of-band),
// the stale row is removed and ErrNotFound is returned so the caller
// re-synthesizes, rather than returning a path that will fail to play.
func (s *Store) LookupAudioCache(ctx context.Context, cacheKey string) (*AudioCacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, audio_path, size_bytes, created_at, last_used_at
		FROM audio_cache WHERE cache_key = ?`, cacheKey)

	var e AudioCacheEntry
	var createdAt, lastUsedAt string
	if err := row.Scan(&e.CacheKey, &e.AudioPath, &e.SizeBytes, &createdAt, &lastUsedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup audio cache: %w", err)
	}
	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if e.LastUsedAt, err = time.Parse(time.RFC3339Nano, lastUsedAt); err != nil {
		return nil, fmt.Errorf("decode last_used_at: %w", err)
	}

	if _, statErr := os.Stat(e.AudioPath); statErr != nil {
		if _, delErr := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE cache_key = ?`, cacheKey); delErr != nil {
			return nil, fmt.Errorf("evict orphaned cache row: %w", delErr)
		}
		return nil, ErrNotFound
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE audio_cache SET last_used_at = ? WHERE cache_key = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), cacheKey); err != nil {
		return nil, fmt.Errorf("touch last_used_at: %w", err)
	}
	return &e, nil
}

// StoreAudioCache indexes a freshly synthesized file. The caller must have
// already written the file at audioPath; this mirrors the original's
// store_audio, which raises if the file does not exist before indexing it.
func (s *Store) StoreAudioCache(ctx context.Context, cacheKey, audioPath string) error {
	info, err := os.Stat(audioPath)
	if err != nil {
		return fmt.Errorf("audio file missing before cache insert: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audio_cache (cache_key, audio_path, size_bytes, created_at, last_used_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(cache_key) DO UPDATE SET
			audio_path=excluded.audio_path, size_bytes=excluded.size_bytes, last_used_at=excluded.last_used_at`,
		cacheKey, audioPath, info.Size(), now, now)
	if err != nil {
		return fmt.Errorf("store audio cache: %w", err)
	}
	return nil
}
