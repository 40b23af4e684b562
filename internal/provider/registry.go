package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// CredentialSource is the subset of internal/store.Store the registry
// needs, kept as an interface so this package doesn't import store
// directly — providers are a leaf dependency of the scheduler, not of
// storage.
type CredentialSource interface {
	GetCredentials(ctx context.Context, providerID string) (map[string]string, error)
}

// Registry holds every configured Provider, generalizing the teacher's
// single-provider-selected-by-switch pattern (cmd/tr-engine/main.go) to
// the N-providers-active-simultaneously shape this system needs: distinct
// channels may bind to distinct provider-ids within the same tick.
type Registry struct {
	mu        sync.Mutex
	providers map[string]Provider
	limiters  map[string]*rate.Limiter
	log       zerolog.Logger
}

// NewRegistry builds a registry from a fixed set of providers. Each gets
// its own token-bucket limiter (1 request/second, burst 3) so a channel
// storm against one station never starves another provider's quota —
// golang.org/x/time/rate is the pack's rate-limiting library (sourced
// from snapetech-plexTuner's go.mod).
func NewRegistry(log zerolog.Logger, providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		limiters:  make(map[string]*rate.Limiter, len(providers)),
		log:       log,
	}
	for _, p := range providers {
		r.providers[p.ID()] = p
		r.limiters[p.ID()] = rate.NewLimiter(rate.Limit(1), 3)
	}
	return r
}

// RefreshCredentials re-reads each credentialed provider's credentials
// from the store. Called once at the top of every tick (spec §4.3): the
// runner never caches credentials across ticks, so an operator rotating
// an API key through the admin collaborator takes effect on the next
// poll.
func (r *Registry) RefreshCredentials(ctx context.Context, src CredentialSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.providers {
		if !p.RequiresCredentials() {
			continue
		}
		creds, err := src.GetCredentials(ctx, id)
		if err != nil {
			r.log.Warn().Err(err).Str("provider", id).Msg("no credentials configured")
			continue
		}
		p.SetCredentials(creds)
	}
}

// FetchBulk dispatches to the named provider, rate-limited, and fails soft
// per-provider: an unregistered provider-id yields an error for the whole
// call (a configuration error, spec §7), but a provider's own internal
// per-station failures are already folded into nil map entries before
// this returns.
func (r *Registry) FetchBulk(ctx context.Context, providerID string, stationIDs []string) (map[string]*Measurement, error) {
	r.mu.Lock()
	p, ok := r.providers[providerID]
	limiter := r.limiters[providerID]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", providerID)
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider %q: rate limiter: %w", providerID, err)
	}
	return p.FetchMeasurementsBulk(ctx, stationIDs)
}

// GroupByProvider partitions station IDs by owning channel's provider-id,
// the shape the scheduler's Phase A needs for its per-provider bulk fetch
// (spec §4.3: "fetch_measurements_bulk(provider-id, [station-id])").
func GroupByProvider(providerIDs, stationIDs []string) map[string][]string {
	out := make(map[string][]string)
	for i, pid := range providerIDs {
		out[pid] = append(out[pid], stationIDs[i])
	}
	return out
}
