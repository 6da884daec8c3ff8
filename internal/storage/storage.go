// Package storage persists acquisition sessions so they can be exported
// again after the collector exits.
package storage

import (
	"context"
	"errors"

	"github.com/abritton2002/emg-collector/internal/sensor"
)

// ErrNoData indicates that all available samples have been read from a reader
var ErrNoData = errors.New("no data available")

// Store manages stored sessions, their samples and the exports written from them.
// All operations that write to the database are atomic.
type Store interface {
	// CreateSession registers a new acquisition session and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - baseName: Name of the base station the session is recorded from
	//   - layout: Buffer layout of the session
	//   - config: Optional configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, baseName, layout string, config any) (sessionID int64, err error)

	// Session retrieves a session by its ID.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreSensors replaces the scanned sensors of a session. The order of
	// sensors is kept since it decides the muscle slots of an export.
	StoreSensors(ctx context.Context, sessionID int64, sensors []sensor.Sensor) error

	// StoreHeaders replaces the channel headers of a session. sensorHeaders
	// is aligned to channelHeaders and may be shorter.
	StoreHeaders(ctx context.Context, sessionID int64, sensorHeaders, channelHeaders []string) error

	// StoreSamples saves samples in a single transaction.
	StoreSamples(ctx context.Context, sessionID int64, samples []Sample) error

	// SetMuscleLabel assigns a muscle label to a sensor of a session.
	SetMuscleLabel(ctx context.Context, sessionID int64, pairNumber int, label string) error

	// LoadSession reads everything needed to restore a session.
	LoadSession(ctx context.Context, id int64) (*Recording, error)

	// RecordExport saves an export record and returns its generated ID.
	RecordExport(ctx context.Context, e Export) (id string, err error)

	// Exports returns the exports of a session ordered by creation time.
	Exports(ctx context.Context, sessionID int64) ([]*Export, error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
