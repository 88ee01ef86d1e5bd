package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferOneValuePerInterval(t *testing.T) {
	const n, k = 10, 4
	b := NewBuffer(n, 1, WithFill(-1))
	values := []float64{3, 1, 4, 1, 5}
	for i, v := range values {
		b.AddData(float64(i), v)
	}

	data := b.Data()
	require.Len(t, data, n)
	for i := 0; i < n-k; i++ {
		assert.Equal(t, -1.0, data[i], "slot %d", i)
	}
	assert.Equal(t, values[:k], data[n-k:])
	assert.Equal(t, 5.0, b.CurrentData())
}

func TestBufferGapCarriesForwardLastMean(t *testing.T) {
	b := NewBuffer(8, 1)
	b.AddData(100, 3)
	b.AddData(100.5, 5)
	b.AddData(104.2, 9)

	assert.Equal(t, []float64{0, 0, 0, 0, 4, 4, 4, 4}, b.Data())
	assert.Equal(t, 9.0, b.CurrentData())
}

func TestBufferGapLongerThanWindow(t *testing.T) {
	b := NewBuffer(3, 0.5, WithFill(7))
	b.AddData(0, 2)
	b.AddData(60, 1)
	assert.Equal(t, []float64{2, 2, 2}, b.Data())
}

func TestBufferAnchorAdvancesByWholeIntervals(t *testing.T) {
	b := NewBuffer(4, 1)
	b.AddData(0, 1)
	b.AddData(2.5, 2) // closes [0,1) and [1,2); open interval starts at 2
	b.AddData(2.9, 4)
	assert.Equal(t, 3.0, b.CurrentData())

	b.AddData(3.2, 6) // closes [2,3)
	assert.Equal(t, []float64{0, 1, 1, 3}, b.Data())
	b.AddData(3.9, 8)
	assert.Equal(t, 7.0, b.CurrentData())
	assert.Equal(t, 3.0, b.Latest())
}

func TestBufferEarlyTimestampJoinsCurrentInterval(t *testing.T) {
	b := NewBuffer(4, 1)
	b.AddData(10, 1)
	b.AddData(9, 3)
	assert.Equal(t, 2.0, b.CurrentData())
	assert.Equal(t, []float64{0, 0, 0, 0}, b.Data())
}

func TestBufferCurrentDataAndValidity(t *testing.T) {
	b := NewBuffer(5, 1)
	assert.False(t, b.DataValid())
	assert.Equal(t, 0.0, b.CurrentData())

	b.AddData(0, 2)
	assert.True(t, b.DataValid())
	b.AddData(0.3, 4)
	assert.Equal(t, 3.0, b.CurrentData())

	b.AddData(1.1, 10)
	assert.True(t, b.DataValid())
	assert.Equal(t, 10.0, b.CurrentData())
}

func TestBufferDataIsSnapshot(t *testing.T) {
	b := NewBuffer(3, 1)
	b.AddData(0, 1)
	b.AddData(1, 2)

	first := b.Data()
	second := b.Data()
	assert.Equal(t, first, second)

	first[0] = 99
	assert.Equal(t, second, b.Data())

	b.AddData(2, 3)
	assert.Equal(t, []float64{0, 0, 1}, second)
}

func TestNewBufferDefaults(t *testing.T) {
	b := NewBuffer(0, 0.25)
	assert.Equal(t, DefaultLength, b.Len())
	assert.Equal(t, 0.25, b.Interval())
}

func TestNewBufferRejectsNonPositiveInterval(t *testing.T) {
	for _, interval := range []float64{0, -2, math.NaN(), math.Inf(1)} {
		b := NewBuffer(4, interval)
		assert.Equal(t, DefaultInterval, b.Interval(), "interval %v", interval)
		require.NotPanics(t, func() {
			for i := 0; i < 6; i++ {
				b.AddData(float64(i), float64(i))
			}
		}, "interval %v", interval)
		assert.Equal(t, []float64{1, 2, 3, 4}, b.Data())
	}
}

func TestBufferDropsNonFiniteTimestamp(t *testing.T) {
	b := NewBuffer(4, 1)
	b.AddData(0, 1)
	b.AddData(math.NaN(), 100)
	b.AddData(math.Inf(1), 100)
	b.AddData(0.5, 3)
	assert.Equal(t, 2.0, b.CurrentData())
}
