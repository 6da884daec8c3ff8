package session

import (
	"fmt"
	"slices"
	"sync"
)

// Buffer holds the sample sequences of the active session, index aligned
// with their channel headers. It is safe for concurrent use: the collector
// appends while streaming, exports read a Snapshot once streaming stopped.
type Buffer struct {
	mu       sync.RWMutex
	headers  []string
	channels [][]float64
}

// SetHeaders resets the buffer to one empty channel per header
func (b *Buffer) SetHeaders(headers []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.headers = slices.Clone(headers)
	b.channels = make([][]float64, len(headers))
}

// Append adds samples to the channel at index
func (b *Buffer) Append(index int, samples ...float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.channels) {
		return fmt.Errorf("channel index out of range: %d, buffer has %d channels", index, len(b.channels))
	}

	b.channels[index] = append(b.channels[index], samples...)
	return nil
}

// Load replaces the buffer content with the given channels and headers
func (b *Buffer) Load(headers []string, channels [][]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.headers = slices.Clone(headers)
	b.channels = cloneChannels(channels)
}

// Snapshot returns a deep copy of the headers and channel data
func (b *Buffer) Snapshot() (headers []string, channels [][]float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.Clone(b.headers), cloneChannels(b.channels)
}

// Len returns the number of channels
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.channels)
}

// Samples returns the number of samples held by the channel at index
func (b *Buffer) Samples(index int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index < 0 || index >= len(b.channels) {
		return 0
	}
	return len(b.channels[index])
}

// Since returns a copy of the samples of the channel at index, starting at from
func (b *Buffer) Since(index, from int) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index < 0 || index >= len(b.channels) || from >= len(b.channels[index]) {
		return nil
	}
	return slices.Clone(b.channels[index][max(from, 0):])
}

// Clear removes all channels and headers
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.headers = nil
	b.channels = nil
}

func cloneChannels(channels [][]float64) [][]float64 {
	if channels == nil {
		return nil
	}

	out := make([][]float64, len(channels))
	for i, ch := range channels {
		out[i] = slices.Clone(ch)
	}
	return out
}
