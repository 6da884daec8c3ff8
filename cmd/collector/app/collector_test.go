package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abritton2002/emg-collector/internal/sensor"
	"github.com/abritton2002/emg-collector/internal/session"
	"github.com/abritton2002/emg-collector/internal/storage"
)

func testSensors() []sensor.Sensor {
	return []sensor.Sensor{
		{
			PairNumber: 1,
			Name:       "Avanti",
			Channels: []sensor.Channel{
				{Name: "EMG 1", SampleRate: 1000, Enabled: true, Type: sensor.ChannelEMG},
				{Name: "Skin Check", SampleRate: 74.0741, Enabled: true, Type: sensor.ChannelSkinCheck},
			},
		},
		{
			PairNumber: 2,
			Name:       "Avanti",
			Channels: []sensor.Channel{
				{Name: "EMG 1", SampleRate: 500, Enabled: true, Type: sensor.ChannelEMG},
			},
		},
	}
}

func prepareSession(t *testing.T, base *sensor.Simulator, layout session.Layout) *session.Session {
	t.Helper()

	sensors, err := base.Scan(context.Background())
	require.NoError(t, err)

	sess := session.New()
	sess.SetSensors(sensors)
	require.NoError(t, sess.Prepare(layout))
	return sess
}

func TestCollector_PersistsBufferedSamples(t *testing.T) {
	ctx := context.Background()
	base := sensor.NewSimulator("test", testSensors(), sensor.WithBlockInterval(5*time.Millisecond), sensor.WithSeed(1))
	sess := prepareSession(t, base, session.LayoutTimeEMG)

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "sessions.sqlite"))
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	id, err := store.CreateSession(ctx, "test", session.LayoutTimeEMG.String(), nil)
	require.NoError(t, err)
	headers, _ := sess.Buffer().Snapshot()
	require.NoError(t, store.StoreHeaders(ctx, id, sess.SensorHeaders(), headers))

	c := NewCollector(base, sess, store, id, WithMaxBatchSize(50), WithFlushInterval(10*time.Millisecond))

	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(runCtx))
	assert.False(t, c.IsCollecting())

	_, channels := sess.Buffer().Snapshot()
	require.Len(t, channels, 4)
	for i, ch := range channels {
		assert.NotEmpty(t, ch, "channel %d", i)
	}
	assert.Len(t, channels[0], len(channels[1]), "time series follows its EMG series")

	rec, err := store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, channels, rec.Channels)

	stored, err := store.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, c.total(), stored.Samples)
}

func TestCollector_WithoutStore(t *testing.T) {
	base := sensor.NewSimulator("test", testSensors(), sensor.WithBlockInterval(5*time.Millisecond))
	sess := prepareSession(t, base, session.LayoutEMG)

	c := NewCollector(base, sess, nil, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.Positive(t, c.total())
	assert.False(t, base.IsStreaming())
}

type failingStreamer struct{}

var errStreamFailed = errors.New("stream failed")

func (failingStreamer) BeginStreaming(context.Context, chan<- sensor.Frame) (<-chan error, error) {
	return nil, errStreamFailed
}

func (failingStreamer) Stop() {}

func TestCollector_BeginStreamingFails(t *testing.T) {
	sess := session.New()
	c := NewCollector(failingStreamer{}, sess, nil, 0)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, errStreamFailed)
	assert.False(t, c.IsCollecting())
}
