package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendAndSnapshot(t *testing.T) {
	var b Buffer
	b.SetHeaders([]string{"EMG1 (100 Hz)", "EMG2 (50 Hz)"})

	require.NoError(t, b.Append(0, 1, 2, 3))
	require.NoError(t, b.Append(1, 4))
	assert.Error(t, b.Append(2, 5))
	assert.Error(t, b.Append(-1, 5))

	headers, channels := b.Snapshot()
	assert.Equal(t, []string{"EMG1 (100 Hz)", "EMG2 (50 Hz)"}, headers)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4}}, channels)
	assert.Equal(t, 3, b.Samples(0))
	assert.Equal(t, 0, b.Samples(9))

	// the snapshot must not alias the buffer
	channels[0][0] = 99
	_, again := b.Snapshot()
	assert.Equal(t, 1.0, again[0][0])
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	var b Buffer
	b.SetHeaders([]string{"a", "b"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Append(ch, float64(j))
			}
		}(i % 2)
	}
	wg.Wait()

	assert.Equal(t, 400, b.Samples(0))
	assert.Equal(t, 400, b.Samples(1))
}

func TestBuffer_Clear(t *testing.T) {
	var b Buffer
	b.Load([]string{"a"}, [][]float64{{1}})
	assert.Equal(t, 1, b.Len())

	b.Clear()
	headers, channels := b.Snapshot()
	assert.Empty(t, headers)
	assert.Empty(t, channels)
	assert.Equal(t, 0, b.Len())
}

func TestMuscleMapping(t *testing.T) {
	m := NewMuscleMapping()

	assert.ErrorIs(t, m.Assign(3, "   "), ErrEmptyLabel)
	assert.Equal(t, "", m.Label(3))

	require.NoError(t, m.Assign(3, " Biceps "))
	assert.Equal(t, "Biceps", m.Label(3))

	require.NoError(t, m.Assign(3, "Triceps"))
	assert.Equal(t, "Triceps", m.Label(3), "at most one label per sensor")
	assert.Equal(t, 1, m.Len())

	labels := m.Labels()
	labels[4] = "mutated"
	assert.Equal(t, "", m.Label(4))

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestBuffer_Since(t *testing.T) {
	var b Buffer
	b.SetHeaders([]string{"a"})
	require.NoError(t, b.Append(0, 1, 2, 3))

	assert.Equal(t, []float64{2, 3}, b.Since(0, 1))
	assert.Equal(t, []float64{1, 2, 3}, b.Since(0, -1))
	assert.Nil(t, b.Since(0, 3))
	assert.Nil(t, b.Since(1, 0))
}
