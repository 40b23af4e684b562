package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// knownVoice is an entry in the fixed catalog of French voices Piper
// ships — matching original_source/app/tts/piper_engine.py's
// known_voices list. A voice is surfaced only if its model file is
// actually present under modelsDir.
type knownVoice struct {
	id, label, file string
}

var knownVoices = []knownVoice{
	{id: "fr_FR-siwis-medium", label: "Siwis (FR) - Medium", file: "fr_FR-siwis-medium.onnx"},
	{id: "fr_FR-tom-medium", label: "Tom (FR) - Medium", file: "fr_FR-tom-medium.onnx"},
	{id: "fr_FR-upmc-medium", label: "UPMC (FR) - Medium", file: "fr_FR-upmc-medium.onnx"},
}

// PiperEngine invokes the `piper` CLI as a subprocess for each synthesis
// request. Grounded 1:1 on piper_engine.py: stdin text, --model/--output_file
// flags, an optional --speaker, a 30s timeout.
type PiperEngine struct {
	modelsDir  string
	binaryPath string
	log        zerolog.Logger

	mu      sync.RWMutex
	version string
}

func NewPiperEngine(modelsDir string, log zerolog.Logger) (*PiperEngine, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("piper: create models dir: %w", err)
	}
	e := &PiperEngine{modelsDir: modelsDir, binaryPath: "piper", log: log}
	e.version = e.probeVersion()
	return e, nil
}

func (e *PiperEngine) EngineID() string { return "piper" }

func (e *PiperEngine) EngineVersion() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// probeVersion runs `piper --version` once at startup, mirroring the
// original's engine_version property. Failure degrades to "unknown"
// rather than aborting startup — spec §7 treats TTS backend problems as
// per-row failures, not fatal-startup conditions.
func (e *PiperEngine) probeVersion() string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return "unknown"
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "unknown"
	}
	return fields[len(fields)-1]
}

// RefreshVersion re-probes the binary version. Nothing in this package
// calls it; until it is called, EngineVersion reports the version probed
// at construction.
func (e *PiperEngine) RefreshVersion() {
	v := e.probeVersion()
	e.mu.Lock()
	e.version = v
	e.mu.Unlock()
}

func (e *PiperEngine) ListVoices() []Voice {
	var voices []Voice
	for _, kv := range knownVoices {
		if _, err := os.Stat(filepath.Join(e.modelsDir, kv.file)); err == nil {
			voices = append(voices, Voice{ID: kv.id, Label: kv.label, Languages: []string{"fr"}})
		}
	}
	return voices
}

func (e *PiperEngine) modelPath(voiceID string) string {
	return filepath.Join(e.modelsDir, voiceID+".onnx")
}

// ModelVersion combines file size and mtime, exactly as the original's
// get_model_version does, so touching or replacing a model file changes
// the derived audio-cache-key.
func (e *PiperEngine) ModelVersion(voiceID string) (string, error) {
	info, err := os.Stat(e.modelPath(voiceID))
	if err != nil {
		return "", fmt.Errorf("piper: model %q not found: %w", voiceID, err)
	}
	return fmt.Sprintf("%d_%d", info.Size(), info.ModTime().Unix()), nil
}

func (e *PiperEngine) Synthesize(ctx context.Context, text, voiceID, outputPath string, params map[string]any) error {
	modelPath := e.modelPath(voiceID)
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("piper: model not found for voice %q: %w", voiceID, err)
	}

	args := []string{"--model", modelPath, "--output_file", outputPath}
	if speaker, ok := params["speaker"]; ok {
		args = append(args, "--speaker", fmt.Sprintf("%v", speaker))
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	cmd.Stdin = bytes.NewReader([]byte(text))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("piper: synthesis timed out after 30s")
		}
		return fmt.Errorf("piper: synthesis failed: %v: %s", err, stderr.String())
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("piper: did not produce audio file at %q", outputPath)
	}
	return nil
}

// WatchVoices watches modelsDir and logs every event on an .onnx file. It
// runs until ctx is cancelled. It does not reload or debounce anything:
// ListVoices and ModelVersion already stat the model files on each call,
// so a freshly copied voice is visible without the watcher. No teacher
// file watches a directory, so this follows fsnotify's own recommended
// usage directly.
func (e *PiperEngine) WatchVoices(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("piper: create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(e.modelsDir); err != nil {
		return fmt.Errorf("piper: watch %s: %w", e.modelsDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".onnx") {
				continue
			}
			e.log.Info().Str("event", event.Op.String()).Str("file", event.Name).Msg("voice model changed")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.log.Warn().Err(err).Msg("voice watcher error")
		}
	}
}
