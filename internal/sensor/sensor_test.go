package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSensor() Sensor {
	return Sensor{
		PairNumber: 3,
		Name:       "Trigno Avanti",
		Channels: []Channel{
			{Name: "EMG 1", SampleRate: 2148.1481481481483, Enabled: true, Type: ChannelEMG},
			{Name: "ACC X", SampleRate: 148.148, Enabled: false, Type: ChannelAux},
			{Name: "Skin Check", SampleRate: 74.0741, Enabled: true, Type: ChannelSkinCheck},
		},
	}
}

func TestChannel_Headers(t *testing.T) {
	ch := Channel{Name: "EMG 1", SampleRate: 2000, Enabled: true, Type: ChannelEMG}

	assert.Equal(t, "EMG 1 (2000.0 Hz)", ch.Header())
	assert.Equal(t, "EMG 1 (YT) (2000.0 Hz)", ch.YTHeader())
	assert.Equal(t, "2.00 kHz", ch.HumanRate())
}

func TestSensor_ExportableChannels(t *testing.T) {
	channels := testSensor().ExportableChannels()

	if assert.Len(t, channels, 1) {
		assert.Equal(t, "EMG 1", channels[0].Name)
	}
}

func TestSensor_Describe(t *testing.T) {
	s := testSensor()

	assert.Equal(t, "(3) Trigno Avanti\n     -EMG 1 (2148.148 Hz)", s.Describe(""))
	assert.Equal(t, "(3) Trigno Avanti - Biceps\n     -EMG 1 (2148.148 Hz)", s.Describe("Biceps"))
}

func TestSensor_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Sensor)
		wantErr bool
	}{
		{"valid", func(*Sensor) {}, false},
		{"negative pair number", func(s *Sensor) { s.PairNumber = -1 }, true},
		{"zero sample rate", func(s *Sensor) { s.Channels[0].SampleRate = 0 }, true},
		{"unknown channel type", func(s *Sensor) { s.Channels[0].Type = "gyro" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := testSensor()
			tc.mutate(&s)

			err := s.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFrame_Times(t *testing.T) {
	f := Frame{Offset: 2, SampleRate: 100, Samples: []float64{1, 2, 3}}

	assert.Equal(t, []float64{0.02, 0.03, 0.04}, f.Times())
}
