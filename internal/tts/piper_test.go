package tts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListVoicesOnlyReturnsVoicesWithModelFilePresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fr_FR-siwis-medium.onnx"), []byte("model"), 0o644))

	e, err := NewPiperEngine(dir, zerolog.Nop())
	require.NoError(t, err)

	voices := e.ListVoices()
	require.Len(t, voices, 1)
	assert.Equal(t, "fr_FR-siwis-medium", voices[0].ID)
}

func TestModelVersionReflectsSizeAndMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fr_FR-tom-medium.onnx")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0o644))

	e, err := NewPiperEngine(dir, zerolog.Nop())
	require.NoError(t, err)

	v1, err := e.ModelVersion("fr_FR-tom-medium")
	require.NoError(t, err)
	assert.Contains(t, v1, "6_")
}

func TestModelVersionErrorsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	e, err := NewPiperEngine(dir, zerolog.Nop())
	require.NoError(t, err)

	_, err = e.ModelVersion("does-not-exist")
	assert.Error(t, err)
}
