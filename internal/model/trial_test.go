package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistryDate_FullDate(t *testing.T) {
	d, ok := ParseRegistryDate("2021-06-15")
	require.True(t, ok)
	assert.Equal(t, 2021, d.Year())
	assert.Equal(t, 15, d.Day())
}

func TestParseRegistryDate_PartialDates(t *testing.T) {
	d, ok := ParseRegistryDate("2020-03")
	require.True(t, ok)
	assert.Equal(t, 2020, d.Year())
	assert.Equal(t, 3, int(d.Month()))

	d, ok = ParseRegistryDate("2018")
	require.True(t, ok)
	assert.Equal(t, 2018, d.Year())
}

func TestParseRegistryDate_Invalid(t *testing.T) {
	for _, s := range []string{"", "June 2020", "15-06-2021"} {
		_, ok := ParseRegistryDate(s)
		assert.False(t, ok, s)
	}
}

func TestRunRecord_Terminal(t *testing.T) {
	assert.False(t, (&RunRecord{Status: RunStatusQueued}).Terminal())
	assert.False(t, (&RunRecord{Status: RunStatusRunning}).Terminal())
	assert.True(t, (&RunRecord{Status: RunStatusCompleted}).Terminal())
	assert.True(t, (&RunRecord{Status: RunStatusError}).Terminal())
}

func TestNewCountedSet_NilMap(t *testing.T) {
	cs := NewCountedSet(nil)
	assert.Equal(t, 0, cs.Count)
	assert.NotNil(t, cs.List)
}
