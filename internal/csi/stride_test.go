package csi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrideScheduler_FiresOnFiftieth(t *testing.T) {
	s, err := NewStrideScheduler(50)
	require.NoError(t, err)

	for i := 1; i < 50; i++ {
		require.False(t, s.Tick(), "tick %d", i)
		require.Equal(t, i, s.Counter())
	}
	assert.True(t, s.Tick())
	assert.Equal(t, 0, s.Counter())
	assert.False(t, s.Tick())
	assert.Equal(t, 1, s.Counter())
}

func TestStrideScheduler_StrideOne(t *testing.T) {
	s, err := NewStrideScheduler(1)
	require.NoError(t, err)
	assert.True(t, s.Tick())
	assert.True(t, s.Tick())
}

func TestNewStrideScheduler_RejectsNonPositive(t *testing.T) {
	_, err := NewStrideScheduler(0)
	assert.Error(t, err)
	_, err = NewStrideScheduler(-3)
	assert.Error(t, err)
}
