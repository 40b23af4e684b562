package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/vhfbalise/runner/internal/provider"
	"github.com/vhfbalise/runner/internal/store"
	"github.com/vhfbalise/runner/internal/tts"
)

// credentialAdapter satisfies internal/provider.CredentialSource over the
// concrete store, translating store.ErrNotFound into the "no credentials
// configured" warning path the registry already handles, and unwrapping
// store.ProviderCredential down to its bare map.
type credentialAdapter struct {
	store *store.Store
}

// NewCredentialAdapter exposes credentialAdapter to callers outside this
// package. The runner's own tick builds one directly and does not call it.
func NewCredentialAdapter(s *store.Store) provider.CredentialSource {
	return credentialAdapter{s}
}

func (a credentialAdapter) GetCredentials(ctx context.Context, providerID string) (map[string]string, error) {
	pc, err := a.store.GetCredentials(ctx, providerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("no credentials configured for provider %q", providerID)
		}
		return nil, err
	}
	return pc.Credentials, nil
}

// ttsStoreAdapter satisfies internal/tts.Store over the concrete store,
// translating the AudioCacheEntry-returning LookupAudioCache into the
// cache package's (path, found, err) shape.
type ttsStoreAdapter struct {
	store *store.Store
}

// NewTTSStoreAdapter exposes ttsStoreAdapter to callers outside this
// package.
func NewTTSStoreAdapter(s *store.Store) tts.Store {
	return ttsStoreAdapter{s}
}

func (a ttsStoreAdapter) LookupAudioCache(ctx context.Context, cacheKey string) (string, bool, error) {
	entry, err := a.store.LookupAudioCache(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.AudioPath, true, nil
}

func (a ttsStoreAdapter) StoreAudioCache(ctx context.Context, cacheKey, audioPath string) error {
	return a.store.StoreAudioCache(ctx, cacheKey, audioPath)
}
