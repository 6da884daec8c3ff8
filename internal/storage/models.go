package storage

import (
	"database/sql"
	"time"

	"github.com/abritton2002/emg-collector/internal/sensor"
)

// Session is a stored acquisition session
type Session struct {
	ID        int64
	StartTime time.Time
	BaseName  string  // Base station the session was recorded from
	Layout    string  // Buffer layout, see session.Layout
	Config    *string // Optional JSON encoded configuration
	Samples   int64   // Number of stored samples over all channels
}

// Sample is one stored sample value
type Sample struct {
	Channel int // Index of the channel in the session headers
	Seq     int // Index of the sample within the channel
	Value   float64
}

// Recording is everything needed to restore a session
type Recording struct {
	Session        *Session
	Sensors        []sensor.Sensor
	SensorHeaders  []string
	ChannelHeaders []string
	Channels       [][]float64
	Labels         map[int]string
}

// Export is a record of an export file written for a session
type Export struct {
	ID               string
	SessionID        int64
	CreatedAt        time.Time
	Kind             string
	Path             string
	Rows             int
	CollectionLength *float64 // Not set for YT exports
	Size             int64    // File size in bytes
}

type exportData struct {
	ID               string
	SessionID        int64
	CreatedAt        time.Time
	Kind             string
	Path             string
	Rows             int
	CollectionLength sql.NullFloat64
	Size             int64
}
