package session

import (
	"errors"
	"maps"
	"strings"
	"sync"
)

// ErrEmptyLabel is returned when a muscle label is blank
var ErrEmptyLabel = errors.New("muscle label must not be empty")

// MuscleMapping maps sensor pair numbers to the muscle the operator placed
// them on. A sensor has at most one label; assigning again replaces it.
type MuscleMapping struct {
	mu     sync.RWMutex
	labels map[int]string
}

// NewMuscleMapping returns an empty mapping
func NewMuscleMapping() *MuscleMapping {
	return &MuscleMapping{labels: make(map[int]string)}
}

// Assign sets the label of a sensor
func (m *MuscleMapping) Assign(pairNumber int, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrEmptyLabel
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.labels[pairNumber] = label
	return nil
}

// Label returns the label of a sensor, or "" when none was assigned
func (m *MuscleMapping) Label(pairNumber int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.labels[pairNumber]
}

// Labels returns a copy of every assigned label
func (m *MuscleMapping) Labels() map[int]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.labels)
}

// Len returns the number of labelled sensors
func (m *MuscleMapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.labels)
}

// Clear removes every label
func (m *MuscleMapping) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.labels)
}
