// Package sensor models EMG sensors paired to a base station and the
// base-station API the rest of the system talks to.
package sensor

import (
	"context"
	"time"
)

// Base is the pairing and discovery side of the base-station API
type Base interface {
	// RequestPair asks the base to pair a new sensor into the given slot.
	// It may block until the sensor pairs or the request is cancelled.
	RequestPair(ctx context.Context, pairNumber int) error

	// PairStatus reports whether a pairing request is still outstanding.
	PairStatus(ctx context.Context) (awaiting bool, err error)

	// CancelPair withdraws the outstanding pairing request.
	CancelPair(ctx context.Context) error

	// Scan returns every sensor currently paired to the base.
	Scan(ctx context.Context) ([]Sensor, error)
}

// Streamer is the acquisition side of the base-station API
type Streamer interface {
	// BeginStreaming starts data acquisition and sends frames until the
	// context is cancelled or Stop is called. The returned channel is
	// closed when streaming stops and carries the error that stopped it, if any.
	BeginStreaming(ctx context.Context, frames chan<- Frame) (<-chan error, error)

	// Stop ends acquisition and waits for the stream goroutines to exit.
	Stop()
}

// Frame is a block of consecutive samples from one sensor channel
type Frame struct {
	Timestamp  time.Time // Wall clock time the block was received
	PairNumber int       // Sensor the block belongs to
	Channel    string    // Channel name within the sensor
	Offset     int       // Index of the first sample since streaming started
	SampleRate float64   // Channel sampling rate in Hz
	Samples    []float64 // Sample values (mV for EMG channels)
}

// Times returns the acquisition time of every sample in the frame, in
// seconds since streaming started.
func (f *Frame) Times() []float64 {
	times := make([]float64, len(f.Samples))
	for i := range f.Samples {
		times[i] = float64(f.Offset+i) / f.SampleRate
	}
	return times
}
