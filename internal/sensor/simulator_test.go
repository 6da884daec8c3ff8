package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_PairCompletes(t *testing.T) {
	sim := NewSimulator("test", nil, WithPairDelay(20*time.Millisecond))

	errCh := make(chan error, 1)
	go func() { errCh <- sim.RequestPair(context.Background(), 7) }()

	require.Eventually(t, func() bool {
		awaiting, _ := sim.PairStatus(context.Background())
		return awaiting
	}, time.Second, time.Millisecond)

	require.NoError(t, <-errCh)

	awaiting, err := sim.PairStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, awaiting)

	sensors, err := sim.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, 7, sensors[0].PairNumber)
}

func TestSimulator_CancelPair(t *testing.T) {
	sim := NewSimulator("test", nil) // never pairs

	errCh := make(chan error, 1)
	go func() { errCh <- sim.RequestPair(context.Background(), 2) }()

	require.Eventually(t, func() bool {
		awaiting, _ := sim.PairStatus(context.Background())
		return awaiting
	}, time.Second, time.Millisecond)

	require.NoError(t, sim.CancelPair(context.Background()))
	assert.ErrorIs(t, <-errCh, ErrPairCancelled)

	sensors, err := sim.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sensors)
}

func TestSimulator_RequestPairWhileOutstanding(t *testing.T) {
	sim := NewSimulator("test", nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sim.RequestPair(ctx, 1) }()

	require.Eventually(t, func() bool {
		awaiting, _ := sim.PairStatus(context.Background())
		return awaiting
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, sim.RequestPair(context.Background(), 2), ErrPairInProgress)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestSimulator_Scan_SortedByPairNumber(t *testing.T) {
	sim := NewSimulator("test", []Sensor{{PairNumber: 5, Name: "b"}, {PairNumber: 1, Name: "a"}})

	sensors, err := sim.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, 1, sensors[0].PairNumber)
	assert.Equal(t, 5, sensors[1].PairNumber)
}

func TestSimulator_Streaming(t *testing.T) {
	sim := NewSimulator("test", []Sensor{testSensor()}, WithBlockInterval(5*time.Millisecond), WithSeed(42))

	frames := make(chan Frame, 64)
	done, err := sim.BeginStreaming(context.Background(), frames)
	require.NoError(t, err)

	_, err = sim.BeginStreaming(context.Background(), frames)
	assert.Error(t, err, "second start must fail while streaming")

	var frame Frame
	select {
	case frame = <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	assert.Equal(t, 3, frame.PairNumber)
	assert.Equal(t, "EMG 1", frame.Channel)
	assert.Equal(t, 0, frame.Offset)
	assert.NotEmpty(t, frame.Samples)

	sim.Stop()
	assert.NoError(t, <-done)
	assert.False(t, sim.IsStreaming())
}

func TestSimulator_StreamingWithoutSensors(t *testing.T) {
	sim := NewSimulator("test", nil)

	_, err := sim.BeginStreaming(context.Background(), make(chan Frame))
	assert.ErrorIs(t, err, ErrNoSensors)
}
