package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SortableAndUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		s := New()
		_, err := ulid.Parse(s)
		require.NoError(t, err)
		assert.False(t, seen[s])
		assert.Greater(t, s, prev)
		seen[s] = true
		prev = s
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a, b := NewGenerator(1), NewGenerator(1)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.At(at), b.At(at))
	}

	u, err := ulid.Parse(NewGenerator(2).At(at))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), u.Time())
}
