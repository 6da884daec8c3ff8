package app

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abritton2002/emg-collector/internal/export"
)

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name    string
		flags   map[string]string
		want    map[int]string
		wantErr bool
	}{
		{"empty", nil, map[int]string{}, false},
		{"labels", map[string]string{"3": "Biceps", " 5 ": "Triceps"}, map[int]string{3: "Biceps", 5: "Triceps"}, false},
		{"not a number", map[string]string{"left": "Biceps"}, nil, true},
		{"negative", map[string]string{"-1": "Biceps"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLabels(tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportFlags_Options(t *testing.T) {
	now := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	cmd := &cobra.Command{}

	t.Run("explicit name wins", func(t *testing.T) {
		f := exportFlags{name: "run.csv", traqID: "T1", athlete: "Jane Doe", kind: "mocap", yt: true, preview: true}
		opts, err := f.options(cmd, now)
		require.NoError(t, err)
		assert.Equal(t, ExportOptions{YT: true, Filename: "run.csv", Preview: true}, opts)
	})

	t.Run("file info", func(t *testing.T) {
		f := exportFlags{traqID: "T1", athlete: "Jane Mary Doe", kind: "mocap"}
		opts, err := f.options(cmd, now)
		require.NoError(t, err)
		require.NotNil(t, opts.FileInfo)

		name, err := opts.FileInfo.Filename()
		require.NoError(t, err)
		assert.Equal(t, "030425_T1_JaneDoe_mocap.csv", name)
	})

	t.Run("invalid file info", func(t *testing.T) {
		f := exportFlags{traqID: "T-1", athlete: "Jane", kind: "sprint"}
		_, err := f.options(cmd, now)
		assert.ErrorIs(t, err, export.ErrInvalidTraqID)
		assert.ErrorIs(t, err, export.ErrUnknownSessionType)
	})

	t.Run("generated name", func(t *testing.T) {
		f := exportFlags{kind: "other"}
		opts, err := f.options(cmd, now)
		require.NoError(t, err)
		assert.Equal(t, ExportOptions{}, opts)
	})
}

func TestRootCommand_Sessions(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, "storage:\n  dataDirectory: "+filepath.Join(dir, "data")+"\n")

	var logLevel slog.LevelVar
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	root := NewRootCommand(&logLevel, logger, &out)
	root.SetArgs([]string{"sessions", "--config", configPath, "--env", filepath.Join(dir, "missing.env"), "--log-level", "debug"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "No stored sessions")
	assert.Equal(t, slog.LevelDebug, logLevel.Level())
	assert.FileExists(t, filepath.Join(dir, "data", storageFile))
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, "storage:\n  dataDirectory: "+filepath.Join(dir, "data")+"\n")

	var logLevel slog.LevelVar
	root := NewRootCommand(&logLevel, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	root.SetArgs([]string{"scan", "--config", configPath, "--env", filepath.Join(dir, "missing.env"), "--log-level", "loud"})

	assert.Error(t, root.Execute())
}
