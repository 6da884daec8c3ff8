package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/abritton2002/emg-collector/internal/sensor"
	"github.com/abritton2002/emg-collector/internal/session"
	"github.com/abritton2002/emg-collector/internal/storage"
)

const (
	maxBatchSize = 500
	frameBuffer  = 64
)

// ErrAlreadyCollecting is returned when Run is called while collecting
var ErrAlreadyCollecting = errors.New("collection already running")

// WithMaxBatchSize sets the maximum number of samples stored within a
// single database transaction.
func WithMaxBatchSize(size int) func(*Collector) {
	return func(c *Collector) {
		if size > 0 {
			c.maxBatchSize = size
		}
	}
}

// WithFlushInterval sets how often buffered samples are written to the store
func WithFlushInterval(d time.Duration) func(*Collector) {
	return func(c *Collector) {
		if d > 0 {
			c.flushInterval = d
		}
	}
}

// WithCollectorLogger sets the logger of the collector
func WithCollectorLogger(logger *slog.Logger) func(*Collector) {
	return func(c *Collector) {
		c.logger = logger.With(slog.String("component", "collector"))
	}
}

// Collector streams frames from the base into the session buffer and
// periodically persists new samples to the store.
type Collector struct {
	streamer  sensor.Streamer
	sess      *session.Session
	store     storage.Store
	sessionID int64

	maxBatchSize  int
	flushInterval time.Duration
	persisted     []int // Samples already stored, per channel

	isCollecting atomic.Bool
	logger       *slog.Logger
}

// NewCollector creates a Collector. store may be nil, in which case samples
// are only buffered.
func NewCollector(streamer sensor.Streamer, sess *session.Session, store storage.Store, sessionID int64, options ...func(*Collector)) *Collector {
	c := Collector{
		streamer:      streamer,
		sess:          sess,
		store:         store,
		sessionID:     sessionID,
		maxBatchSize:  maxBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// IsCollecting reports whether streaming is in progress. Exports are only
// allowed once it returns false.
func (c *Collector) IsCollecting() bool {
	return c.isCollecting.Load()
}

// Run streams until ctx is done or the base stops streaming. Samples still
// buffered when streaming stops are flushed before Run returns.
func (c *Collector) Run(ctx context.Context) (err error) {
	if !c.isCollecting.CompareAndSwap(false, true) {
		return ErrAlreadyCollecting
	}
	defer c.isCollecting.Store(false)

	c.persisted = make([]int, c.sess.Buffer().Len())

	frames := make(chan sensor.Frame, frameBuffer)
	stopped, err := c.streamer.BeginStreaming(ctx, frames)
	if err != nil {
		return fmt.Errorf("beginning streaming: %w", err)
	}

	c.logger.Info("collecting data", slog.Int("channels", len(c.persisted)))

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-frames:
			c.ingest(f)

		case <-ticker.C:
			if fErr := c.flush(ctx); fErr != nil {
				c.logger.Error(fErr.Error())
			}

		case sErr := <-stopped:
			c.streamer.Stop()

		drain:
			for {
				select {
				case f := <-frames:
					c.ingest(f)
				default:
					break drain
				}
			}

			flushErr := c.flush(context.WithoutCancel(ctx))
			c.logger.Info("collection stopped", slog.Int64("samples", c.total()))

			return errors.Join(sErr, flushErr)
		}
	}
}

func (c *Collector) ingest(f sensor.Frame) {
	if err := c.sess.Ingest(f); err != nil {
		c.logger.Error(err.Error(), slog.Int("pairNumber", f.PairNumber), slog.String("channel", f.Channel))
	}
}

// flush stores the samples buffered since the previous flush
func (c *Collector) flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	var samples []storage.Sample
	buf := c.sess.Buffer()
	for i := range c.persisted {
		for j, v := range buf.Since(i, c.persisted[i]) {
			samples = append(samples, storage.Sample{Channel: i, Seq: c.persisted[i] + j, Value: v})
		}
	}
	if len(samples) == 0 {
		return nil
	}

	for chunk := range slices.Chunk(samples, c.maxBatchSize) {
		if err := c.store.StoreSamples(ctx, c.sessionID, chunk); err != nil {
			return fmt.Errorf("storing samples: %w", err)
		}
		for _, s := range chunk {
			c.persisted[s.Channel] = s.Seq + 1
		}
	}

	return nil
}

func (c *Collector) total() int64 {
	var n int64
	buf := c.sess.Buffer()
	for i := range buf.Len() {
		n += int64(buf.Samples(i))
	}
	return n
}
