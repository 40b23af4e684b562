package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// parisLocation is the fixed zone FFVL timestamps are expressed in.
// time.LoadLocation requires a tzdata source; Go's stdlib ships one
// embedded via time/tzdata when the importing binary needs it, so
// cmd/vhf-runnerd blank-imports it (see its doc comment).
var parisLocation = mustLoadParis()

func mustLoadParis() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		// Fall back to a fixed CET/CEST-ignorant offset rather than panic
		// at package init — a misconfigured tzdata should degrade, not
		// crash an unattended process before main() even runs.
		return time.FixedZone("CET", 3600)
	}
	return loc
}

// FFVLProvider fetches balisemeteo.com measurements via the FFVL API.
// Grounded on original_source/app/providers/ffvl.py's credentialed-provider
// shape; the concrete endpoint and response layout come from spec.md §6
// since the original's fetch_measurement was an unimplemented stub.
type FFVLProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

const ffvlBaseURL = "https://www.balisemeteo.com"

func NewFFVLProvider() *FFVLProvider {
	return &FFVLProvider{
		httpClient: &http.Client{Timeout: 12 * time.Second},
		baseURL:    ffvlBaseURL,
	}
}

func (p *FFVLProvider) ID() string                 { return "ffvl" }
func (p *FFVLProvider) RequiresCredentials() bool   { return true }
func (p *FFVLProvider) SetCredentials(creds map[string]string) {
	p.apiKey = creds["api_key"]
}

// ffvlRecord is one element of the "histo" JSON array.
type ffvlRecord struct {
	Date    string  `json:"date"`
	VitMoy  float64 `json:"vit_moy"`
	VitMax  float64 `json:"vit_max"`
	VitMin  *float64 `json:"vit_min"`
	Dir     *float64 `json:"dir"`
}

func (p *FFVLProvider) FetchMeasurementsBulk(ctx context.Context, stationIDs []string) (map[string]*Measurement, error) {
	if p.apiKey == "" {
		return nil, &ErrMissingCredentials{ProviderID: p.ID()}
	}

	out := make(map[string]*Measurement, len(stationIDs))
	// FFVL exposes no bulk endpoint (spec.md §6 names only the
	// per-station "histo" call) — each station is fetched individually
	// and a per-station failure never aborts the others (spec §4.3).
	for _, stationID := range stationIDs {
		m, err := p.fetchOne(ctx, stationID)
		if err != nil {
			out[stationID] = nil
			continue
		}
		out[stationID] = m
	}
	return out, nil
}

func (p *FFVLProvider) fetchOne(ctx context.Context, stationID string) (*Measurement, error) {
	u := fmt.Sprintf("%s/api?base=balises&r=histo&idbalise=%s&mode=json&key=%s",
		p.baseURL, url.QueryEscape(stationID), url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("ffvl: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ffvl: request station %s: %w", stationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ffvl: station %s returned HTTP %d", stationID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ffvl: read body: %w", err)
	}

	var records []ffvlRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("ffvl: decode station %s: %w", stationID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ffvl: station %s: empty history", stationID)
	}

	return parseFFVLRecord(records[0])
}

func parseFFVLRecord(rec ffvlRecord) (*Measurement, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", rec.Date, parisLocation)
	if err != nil {
		return nil, fmt.Errorf("ffvl: parse date %q: %w", rec.Date, err)
	}

	m := &Measurement{
		MeasurementAt: t.UTC(),
		WindAvgKmh:    rec.VitMoy,
		WindMaxKmh:    rec.VitMax,
		WindMinKmh:    rec.VitMin,
	}
	if rec.Dir != nil {
		d := NormalizeDirection(*rec.Dir)
		m.WindDirectionDeg = &d
	}
	return m, nil
}
