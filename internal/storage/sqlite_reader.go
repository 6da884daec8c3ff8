package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// ReaderOption configures a SampleReader
type ReaderOption func(*SampleReader)

// WithChannel restricts the reader to a single channel
func WithChannel(index int) ReaderOption {
	return func(r *SampleReader) {
		r.minChannel = index
		r.maxChannel = index
	}
}

// WithChannelRange restricts the reader to channels in [minIndex, maxIndex]
func WithChannelRange(minIndex, maxIndex int) ReaderOption {
	return func(r *SampleReader) {
		r.minChannel = minIndex
		r.maxChannel = maxIndex
	}
}

// SampleReader iterates over stored samples ordered by channel and sequence.
// A reader must only be used from a single goroutine.
type SampleReader struct {
	db        *sql.DB
	sessionID int64

	minChannel int
	maxChannel int

	rows    *sql.Rows
	current Sample
	err     error
}

func newSampleReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SampleReader, error) {
	r := &SampleReader{
		db:         db,
		sessionID:  sessionID,
		minChannel: 0,
		maxChannel: math.MaxInt32,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

func (r *SampleReader) init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if r.minChannel > r.maxChannel {
		return fmt.Errorf("min channel %d is greater than max channel %d", r.minChannel, r.maxChannel)
	}

	rows, err := r.db.QueryContext(ctx, selectSamplesSQL, r.sessionID, r.minChannel, r.maxChannel)
	if err != nil {
		return fmt.Errorf("querying samples: %w", err)
	}
	r.rows = rows
	return nil
}

// Next advances the reader and reports whether a sample is available.
// When it returns false, Error distinguishes the end of data (ErrNoData)
// from a failure.
func (r *SampleReader) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			r.err = fmt.Errorf("reading samples: %w", err)
		} else {
			r.err = ErrNoData
		}
		return false
	}

	if err := r.rows.Scan(&r.current.Channel, &r.current.Seq, &r.current.Value); err != nil {
		r.err = fmt.Errorf("scanning sample: %w", err)
		return false
	}
	return true
}

// Current returns the sample Next advanced to
func (r *SampleReader) Current() Sample {
	return r.current
}

// Error returns the error that stopped the iteration
func (r *SampleReader) Error() error {
	return r.err
}

// Close releases the database resources of the reader
func (r *SampleReader) Close() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Close()
}
