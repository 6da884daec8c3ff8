package sensor

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/abritton2002/emg-collector/internal/numeric"
)

const (
	ChannelEMG       ChannelType = "emg"
	ChannelAux       ChannelType = "aux"
	ChannelSkinCheck ChannelType = "skincheck"
)

// ChannelType tags what a sensor channel measures
type ChannelType string

func (t ChannelType) String() string {
	return string(t)
}

// Channel is a single data stream of a sensor
type Channel struct {
	Name       string      `yaml:"name" json:"name"`             // Channel name as reported by the base, e.g. "EMG 1"
	SampleRate float64     `yaml:"sampleRate" json:"sampleRate"` // Sampling rate in Hz
	Enabled    bool        `yaml:"enabled" json:"enabled"`       // Whether the channel streams data
	Type       ChannelType `yaml:"type" json:"type"`             // emg, aux or skincheck
}

// Exportable reports whether the channel is shown to the operator and written
// to exports. Disabled and skin-check channels are not.
func (c Channel) Exportable() bool {
	return c.Enabled && c.Type != ChannelSkinCheck
}

// Header returns the channel header in the "<name> (<rate> Hz)" form the
// export engine parses sampling rates from.
func (c Channel) Header() string {
	return fmt.Sprintf("%s (%s Hz)", c.Name, numeric.Format(c.SampleRate))
}

// YTHeader returns the channel header used by the multi-channel export.
func (c Channel) YTHeader() string {
	return fmt.Sprintf("%s (YT) (%s Hz)", c.Name, numeric.Format(c.SampleRate))
}

// HumanRate returns the sampling rate with an SI prefix, e.g. "2.15 kHz".
func (c Channel) HumanRate() string {
	v, prefix := humanize.ComputeSI(c.SampleRate)
	return fmt.Sprintf("%0.2f %sHz", v, prefix)
}

// Sensor is a wireless sensor paired to the base station
type Sensor struct {
	PairNumber int       `yaml:"pairNumber" json:"pairNumber"` // Operator assigned pairing slot
	Name       string    `yaml:"name" json:"name"`             // Friendly name reported by the base
	Channels   []Channel `yaml:"channels" json:"channels"`
}

// Header returns the "(<pair>) <name>" sensor header.
func (s Sensor) Header() string {
	return fmt.Sprintf("(%d) %s", s.PairNumber, s.Name)
}

// ExportableChannels returns the channels that are displayed and exported.
func (s Sensor) ExportableChannels() []Channel {
	var channels []Channel
	for _, ch := range s.Channels {
		if ch.Exportable() {
			channels = append(channels, ch)
		}
	}
	return channels
}

// Describe renders the sensor the way the sensor list shows it: the sensor
// header, the assigned muscle label if any, and one indented line per
// exportable channel.
func (s Sensor) Describe(label string) string {
	var sb strings.Builder

	sb.WriteString(s.Header())
	if label != "" {
		sb.WriteString(" - ")
		sb.WriteString(label)
	}

	for _, ch := range s.ExportableChannels() {
		sb.WriteString(fmt.Sprintf("\n     -%s (%s Hz)", ch.Name, numeric.Format(numeric.Round(ch.SampleRate, 3))))
	}

	return sb.String()
}

// Validate checks the sensor definition
func (s Sensor) Validate() error {
	if s.PairNumber < 0 {
		return fmt.Errorf("sensor %q: pair number must not be negative: %d", s.Name, s.PairNumber)
	}
	for _, ch := range s.Channels {
		if ch.SampleRate <= 0 {
			return fmt.Errorf("sensor %q: channel %q: sample rate must be positive: %f", s.Name, ch.Name, ch.SampleRate)
		}
		switch ch.Type {
		case ChannelEMG, ChannelAux, ChannelSkinCheck:
		default:
			return fmt.Errorf("sensor %q: channel %q: unknown channel type '%s'", s.Name, ch.Name, ch.Type)
		}
	}
	return nil
}
