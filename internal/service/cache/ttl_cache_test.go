package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache[[]float64]().WithClock(func() time.Time { return now })

	c.Set("AAPL|1d|250", []float64{1, 2, 3}, time.Minute)
	c.Set("forever", []float64{9}, 0)

	v, ok := c.Get("AAPL|1d|250")
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("AAPL|1d|250")
	assert.False(t, ok)

	v, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, []float64{9}, v)

	c.Delete("forever")
	assert.Equal(t, 0, c.Len())
}
