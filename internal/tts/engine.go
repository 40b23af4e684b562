// Package tts synthesizes spoken-text audio through a pluggable Engine and
// deduplicates identical utterances in a content-addressed cache, grounded
// on original_source/app/tts/{piper_engine,cache}.py.
package tts

import "context"

// Locale is the fixed announcement language (spec §4.1's audio-cache-key
// locale component). Every known voice (piper.go's knownVoices) is French,
// so there is no per-channel locale selection to model yet.
const Locale = "fr-FR"

// Voice describes one synthesizable voice a Engine can use.
type Voice struct {
	ID        string
	Label     string
	Languages []string
}

// Engine is the synthesis backend contract (spec §4.5).
type Engine interface {
	// EngineID is the stable engine identifier (e.g. "piper").
	EngineID() string
	// EngineVersion reports the installed backend's version string, part
	// of the audio-cache-key so an engine upgrade invalidates the cache.
	EngineVersion() string
	// ListVoices returns the voices currently available on disk.
	ListVoices() []Voice
	// ModelVersion returns an opaque, content-derived version string for
	// a voice's model file, also folded into the cache key.
	ModelVersion(voiceID string) (string, error)
	// Synthesize blocks until text has been rendered as mono PCM WAV at
	// outputPath, or returns an error. Callers must run this off the main
	// scheduling goroutine (spec §4.5: "synthesis is blocking").
	Synthesize(ctx context.Context, text, voiceID, outputPath string, params map[string]any) error
}
