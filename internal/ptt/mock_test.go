package ptt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockDriverTracksLastState(t *testing.T) {
	d := NewMockDriver()
	assert.False(t, d.Active())

	require := assert.New(t)
	require.NoError(d.Set(true))
	assert.True(t, d.Active())

	require.NoError(d.Set(false))
	assert.False(t, d.Active())
}

func TestMockDriverCleanupForcesInactive(t *testing.T) {
	d := NewMockDriver()
	_ = d.Set(true)
	assert.NoError(t, d.Cleanup())
	assert.False(t, d.Active())
}

func TestMockDriverRecordsCallHistory(t *testing.T) {
	d := NewMockDriver()
	_ = d.Set(true)
	_ = d.Set(false)
	_ = d.Set(true)
	assert.Equal(t, []bool{true, false, true}, d.Calls())
}

func TestMockDriverCleanupIsIdempotent(t *testing.T) {
	d := NewMockDriver()
	assert.NoError(t, d.Cleanup())
	assert.NoError(t, d.Cleanup())
	assert.False(t, d.Active())
}
