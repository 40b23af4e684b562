package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetCredentials returns the credential map for a provider. Credentials
// are authored exclusively through the out-of-scope admin API; the
// runner only ever reads them, once per poll cycle (spec §4.4).
func (s *Store) GetCredentials(ctx context.Context, providerID string) (*ProviderCredential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT provider_id, credentials_json, updated_at FROM provider_credentials WHERE provider_id = ?`,
		providerID)

	var pc ProviderCredential
	var credsJSON, updatedAt string
	if err := row.Scan(&pc.ProviderID, &credsJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(credsJSON), &pc.Credentials); err != nil {
		return nil, fmt.Errorf("decode credentials_json: %w", err)
	}
	var err error
	if pc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &pc, nil
}

// PutCredentials upserts a provider's credential map. Exercised by tests
// and seed tooling standing in for the admin API.
func (s *Store) PutCredentials(ctx context.Context, providerID string, creds map[string]string) error {
	encoded, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_credentials (provider_id, credentials_json, updated_at)
		VALUES (?,?,?)
		ON CONFLICT(provider_id) DO UPDATE SET credentials_json=excluded.credentials_json, updated_at=excluded.updated_at`,
		providerID, string(encoded), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put credentials: %w", err)
	}
	return nil
}
