// Package session holds the state of one acquisition session: the scanned
// sensors, the sample buffer with its channel headers and the muscle labels
// the operator assigned.
package session

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/abritton2002/emg-collector/internal/sensor"
)

const (
	// LayoutEMG buffers one EMG series for each of the first two sensors
	LayoutEMG Layout = iota
	// LayoutTimeEMG buffers Time1, EMG1, Time2, EMG2
	LayoutTimeEMG
	// LayoutYT buffers every exportable channel of every sensor
	LayoutYT
)

// Layout selects which series the session buffers
type Layout int

func (l Layout) String() string {
	switch l {
	case LayoutEMG:
		return "emg"
	case LayoutTimeEMG:
		return "time-emg"
	case LayoutYT:
		return "yt"
	default:
		return "layout(" + strconv.Itoa(int(l)) + ")"
	}
}

// ParseLayout parses the String form of a Layout
func ParseLayout(s string) (Layout, error) {
	for _, l := range []Layout{LayoutEMG, LayoutTimeEMG, LayoutYT} {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown layout '%s'", s)
}

// Muscle is one muscle slot of the export header
type Muscle struct {
	ID   string // Sensor identifier, the pair number
	Name string // Operator assigned label, may be empty
}

// Snapshot is an immutable copy of everything an export needs
type Snapshot struct {
	Filename       string
	Layout         Layout
	SensorHeaders  []string
	ChannelHeaders []string
	Channels       [][]float64
	Muscles        [2]Muscle
}

type routeKey struct {
	pairNumber int
	channel    string
}

type route struct {
	value int
	time  int // -1 when the layout has no time series
}

// Session owns the buffer and the muscle mapping of the active session.
// ClearData drops collected data but keeps the muscle mapping; Reset drops
// everything.
type Session struct {
	mu            sync.RWMutex
	id            int64
	sensors       []sensor.Sensor
	sensorHeaders []string
	filename      string
	layout        Layout
	routes        map[routeKey]route

	buffer  Buffer
	muscles *MuscleMapping
}

// New returns an empty session
func New() *Session {
	return &Session{
		muscles: NewMuscleMapping(),
		routes:  make(map[routeKey]route),
	}
}

// ID returns the storage identifier of the session, 0 when not persisted
func (s *Session) ID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SetID records the storage identifier of the session
func (s *Session) SetID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

// Buffer returns the sample buffer
func (s *Session) Buffer() *Buffer {
	return &s.buffer
}

// MuscleMapping returns the sensor to muscle label mapping
func (s *Session) MuscleMapping() *MuscleMapping {
	return s.muscles
}

// SetSensors records the sensors found by the latest scan
func (s *Session) SetSensors(sensors []sensor.Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensors = slices.Clone(sensors)
}

// Sensors returns the sensors found by the latest scan
func (s *Session) Sensors() []sensor.Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sensors)
}

// SetFilename sets the name of the next export file
func (s *Session) SetFilename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filename = name
}

// Filename returns the name of the next export file, "" for a generated one
func (s *Session) Filename() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filename
}

// Layout returns the layout chosen by Prepare
func (s *Session) Layout() Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

// SensorHeaders returns the sensor header row
func (s *Session) SensorHeaders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sensorHeaders)
}

// Prepare sets up the buffer headers for the scanned sensors and the given
// layout, discarding any previously buffered data.
func (s *Session) Prepare(layout Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	routes := make(map[routeKey]route)
	var headers, sensorHeaders []string

	switch layout {
	case LayoutEMG, LayoutTimeEMG:
		for _, sen := range exportSensors(s.sensors, layout) {
			ch := sen.Channels[emgChannel(sen)]

			r := route{time: -1}
			if layout == LayoutTimeEMG {
				r.time = len(headers)
				headers = append(headers, fmt.Sprintf("%s Time Series (s)", ch.Name))
				sensorHeaders = append(sensorHeaders, sen.Header())
			}
			r.value = len(headers)
			headers = append(headers, ch.Header())
			sensorHeaders = append(sensorHeaders, sen.Header())

			routes[routeKey{sen.PairNumber, ch.Name}] = r
		}

	case LayoutYT:
		for _, sen := range exportSensors(s.sensors, layout) {
			for i, ch := range sen.ExportableChannels() {
				routes[routeKey{sen.PairNumber, ch.Name}] = route{value: len(headers), time: -1}
				headers = append(headers, ch.YTHeader())

				if i == 0 {
					sensorHeaders = append(sensorHeaders, sen.Header())
				} else {
					sensorHeaders = append(sensorHeaders, "")
				}
			}
		}

	default:
		return fmt.Errorf("preparing session: unknown layout %s", layout)
	}

	s.layout = layout
	s.routes = routes
	s.sensorHeaders = sensorHeaders
	s.buffer.SetHeaders(headers)

	return nil
}

// Ingest appends a streamed frame to the buffer. Frames of channels the
// layout does not buffer are ignored.
func (s *Session) Ingest(f sensor.Frame) error {
	s.mu.RLock()
	r, ok := s.routes[routeKey{f.PairNumber, f.Channel}]
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	if r.time >= 0 {
		if err := s.buffer.Append(r.time, f.Times()...); err != nil {
			return fmt.Errorf("appending time series: %w", err)
		}
	}
	if err := s.buffer.Append(r.value, f.Samples...); err != nil {
		return fmt.Errorf("appending samples: %w", err)
	}

	return nil
}

// Restore loads a previously stored session
func (s *Session) Restore(id int64, layout Layout, sensors []sensor.Sensor, sensorHeaders, headers []string, channels [][]float64, labels map[int]string) error {
	for pairNumber, label := range labels {
		if err := s.muscles.Assign(pairNumber, label); err != nil {
			return fmt.Errorf("restoring label of sensor %d: %w", pairNumber, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = id
	s.layout = layout
	s.sensors = slices.Clone(sensors)
	s.sensorHeaders = slices.Clone(sensorHeaders)
	s.routes = make(map[routeKey]route)
	s.buffer.Load(headers, channels)

	return nil
}

// MuscleSlots returns the two muscle slots of the export header, taken from
// the first two sensors the layout exports. With fewer than two such sensors
// both slots stay empty.
func (s *Session) MuscleSlots() [2]Muscle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var slots [2]Muscle
	sensors := exportSensors(s.sensors, s.layout)
	if len(sensors) < len(slots) {
		return slots
	}

	for i := range slots {
		pairNumber := sensors[i].PairNumber
		slots[i] = Muscle{
			ID:   strconv.Itoa(pairNumber),
			Name: s.muscles.Label(pairNumber),
		}
	}
	return slots
}

// exportSensors returns the sensors whose series the layout buffers, in scan
// order. The EMG layouts take the first two sensors with an EMG channel.
func exportSensors(sensors []sensor.Sensor, layout Layout) []sensor.Sensor {
	var selected []sensor.Sensor
	for _, sen := range sensors {
		switch layout {
		case LayoutYT:
			if len(sen.ExportableChannels()) > 0 {
				selected = append(selected, sen)
			}
		default:
			if len(selected) < 2 && emgChannel(sen) >= 0 {
				selected = append(selected, sen)
			}
		}
	}
	return selected
}

// emgChannel returns the index of the first exportable EMG channel, or -1
func emgChannel(sen sensor.Sensor) int {
	return slices.IndexFunc(sen.Channels, func(ch sensor.Channel) bool {
		return ch.Exportable() && ch.Type == sensor.ChannelEMG
	})
}

// Snapshot copies the state an export needs
func (s *Session) Snapshot() Snapshot {
	headers, channels := s.buffer.Snapshot()

	s.mu.RLock()
	snap := Snapshot{
		Filename:       s.filename,
		Layout:         s.layout,
		SensorHeaders:  slices.Clone(s.sensorHeaders),
		ChannelHeaders: headers,
		Channels:       channels,
	}
	s.mu.RUnlock()

	snap.Muscles = s.MuscleSlots()
	return snap
}

// ClearData drops buffered data, headers and the custom filename. Sensors
// and the muscle mapping are kept.
func (s *Session) ClearData() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.Clear()
	s.sensorHeaders = nil
	s.filename = ""
	clear(s.routes)
}

// Reset returns the session to its initial empty state
func (s *Session) Reset() {
	s.ClearData()
	s.muscles.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = 0
	s.sensors = nil
	s.layout = LayoutEMG
}
