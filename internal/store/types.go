package store

import "time"

// TxMode distinguishes a scheduler-planned announcement from one requested
// through the (out-of-scope) admin API's manual test/preview action. Both
// execute through the identical fail-closed path in internal/runner.
type TxMode string

const (
	ModeScheduled  TxMode = "SCHEDULED"
	ModeManualTest TxMode = "MANUAL_TEST"
)

// TxStatus is the tx-ledger state machine. Transitions only ever go
// PENDING -> SENT|FAILED|ABORTED (spec §3); a row leaves PENDING exactly
// once.
type TxStatus string

const (
	StatusPending TxStatus = "PENDING"
	StatusSent    TxStatus = "SENT"
	StatusFailed  TxStatus = "FAILED"
	StatusAborted TxStatus = "ABORTED"
)

// Channel is the unit of configuration: one provider station, one voice,
// one announcement template (spec §3).
type Channel struct {
	ID   int64
	Name string

	ProviderID string
	StationID  string

	// Denormalized display fields, written only by the external admin API.
	// StationNameCache is the {station_name} template value (spec §4.4 —
	// "the Channel's name, not any provider-supplied name").
	StationNameCache      string
	StationVisualURLCache string

	MeasurementPeriodSeconds int
	OffsetsSeconds           []int
	MinIntervalSeconds       int

	TemplateText  string
	TTSEngineID   string
	VoiceID       string
	VoiceParams   map[string]any
	AudioDevice   string // optional ALSA/PulseAudio device name; stored only, playback always uses the default device

	LeadMS  int
	TailMS  int
	Enabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the invariants spec §3 states for Channel: no
// duplicate offsets, a positive measurement period, a non-negative
// minimum interval.
func (c *Channel) Validate() error {
	seen := make(map[int]struct{}, len(c.OffsetsSeconds))
	for _, o := range c.OffsetsSeconds {
		if _, dup := seen[o]; dup {
			return ErrDuplicateOffset
		}
		seen[o] = struct{}{}
	}
	if c.MeasurementPeriodSeconds <= 0 {
		return ErrInvalidMeasurementPeriod
	}
	if c.MinIntervalSeconds < 0 {
		return ErrInvalidMinInterval
	}
	return nil
}

// ChannelRuntime is the 1:1 last-seen/next-planned state for a Channel
// (spec §3).
type ChannelRuntime struct {
	ChannelID         int64
	LastMeasurementAt *time.Time
	LastTxAt          *time.Time
	NextTxAt          *time.Time
	LastError         *string
}

// SystemSettings is the process-wide singleton configuration row (spec §3).
type SystemSettings struct {
	MasterEnabled                 bool
	PollIntervalSeconds           int // 10-600
	InterAnnouncementPauseSeconds int // 0-60
	PTTGPIOPin                    *int
	PTTActiveLevel                int // 0|1
	PTTLeadMS                     int
	PTTTailMS                     int
	TxTimeoutSeconds              int // fixed 30
}

// TxRow is one planned/executed announcement (spec §3).
type TxRow struct {
	ID     int64
	TxID   string // 32-byte hex content hash, unique
	Mode   TxMode
	Status TxStatus

	ChannelID     int64
	StationID     string
	MeasurementAt time.Time
	OffsetSeconds int
	PlannedAt     time.Time
	SentAt        *time.Time

	RenderedText string
	AudioPath    string
	ErrorMessage string

	CreatedAt time.Time
}

// AudioCacheEntry is one content-addressed synthesized WAV (spec §3/§4.5).
type AudioCacheEntry struct {
	CacheKey   string
	AudioPath  string
	SizeBytes  int64
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// ProviderCredential is the opaque, externally-authored credential map for
// one provider (spec §3). Read-only for the runner.
type ProviderCredential struct {
	ProviderID  string
	Credentials map[string]string
	UpdatedAt   time.Time
}
