package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}

	assert.Equal(t, 5.0, Max(data...))
	assert.Equal(t, 1.0, Min(data...))
	assert.Equal(t, 3.0, Avg(data...))
	assert.Equal(t, 3.0, Median(data...))
	assert.Equal(t, 2.5, Median(1, 2, 3, 4))
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, data, "input is not sorted in place")

	assert.Equal(t, 5.0, Percentile(100, data...))
	assert.Equal(t, 5.0, Percentile(99, data...))
	assert.Equal(t, 3.0, Percentile(50, data...))
	assert.Equal(t, 1.0, Percentile(1, data...))

	assert.Equal(t, -1.0, Avg())
	assert.Equal(t, -1.0, Percentile(0, data...))
	assert.Equal(t, []float64{1.5, 2000}, Milliseconds(1500*time.Microsecond, 2*time.Second))
}
