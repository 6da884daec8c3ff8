package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileInfo_Filename(t *testing.T) {
	date := time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		info FileInfo
		want string
	}{
		{
			name: "first and last name",
			info: FileInfo{Date: date, TraqID: "A123", Athlete: "Jane Q Doe", SessionType: SessionMocap},
			want: "010925_A123_JaneDoe_mocap.csv",
		},
		{
			name: "single name",
			info: FileInfo{Date: date, TraqID: " 42 ", Athlete: "Ichiro", SessionType: SessionRecovery},
			want: "010925_42_Ichiro_recovery.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.info.Filename()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileInfo_Validate(t *testing.T) {
	tests := []struct {
		name    string
		info    FileInfo
		wantErr []error
	}{
		{
			name:    "empty fields",
			info:    FileInfo{SessionType: SessionOther},
			wantErr: []error{ErrEmptyTraqID, ErrEmptyAthleteName},
		},
		{
			name:    "invalid characters",
			info:    FileInfo{TraqID: "A-1", Athlete: "J. Doe", SessionType: SessionVeloday},
			wantErr: []error{ErrInvalidTraqID, ErrInvalidAthleteName},
		},
		{
			name:    "unknown session type",
			info:    FileInfo{TraqID: "A1", Athlete: "Jane Doe", SessionType: "bullpen"},
			wantErr: []error{ErrUnknownSessionType},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}

			_, err = tt.info.Filename()
			assert.Error(t, err)
		})
	}
}

func TestParseSessionType(t *testing.T) {
	for _, st := range SessionTypes {
		got, err := ParseSessionType(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseSessionType("Mocap")
	assert.ErrorIs(t, err, ErrUnknownSessionType)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		header string
		want   float64
		ok     bool
	}{
		{header: "EMG1 (2,148.1481 Hz)", want: 2148.1481, ok: true},
		{header: "EMG 1 (1259.2593 Hz)", want: 1259.2593, ok: true},
		{header: "EMG 1 (YT) (2148.1481 Hz)", want: 2148.1481, ok: true},
		{header: "EMG1", ok: false},
		{header: "EMG1 (Hz)", ok: false},
		{header: "EMG1 2148 Hz", ok: false},
		{header: "EMG1 (NaN Hz)", ok: false},
		{header: "EMG1 (inf Hz)", ok: false},
		{header: "EMG1 (-Inf Hz)", ok: false},
		{header: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := ParseRate(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
