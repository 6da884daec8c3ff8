package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abritton2002/emg-collector/internal/export"
	"github.com/abritton2002/emg-collector/internal/pairing"
	"github.com/abritton2002/emg-collector/internal/session"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer, string) {
	t.Helper()

	dir := t.TempDir()
	config := DefaultConfig()
	config.Base.Sensors = testSensors()
	config.Base.BlockInterval = TimeDuration(5 * time.Millisecond)
	config.Base.PairDelay = TimeDuration(20 * time.Millisecond)
	config.Pairing.TickInterval = TimeDuration(50 * time.Millisecond)
	config.Pairing.PollInterval = TimeDuration(10 * time.Millisecond)
	config.Export.OutputDirectory = filepath.Join(dir, "exports")
	config.Storage.DataDirectory = filepath.Join(dir, "data")
	config.Storage.FlushInterval = TimeDuration(10 * time.Millisecond)

	var out bytes.Buffer
	a, err := New(config, slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	return a, &out, config.Export.OutputDirectory
}

func TestApp_Scan(t *testing.T) {
	a, out, _ := newTestApp(t)

	sensors, err := a.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 2)

	assert.Contains(t, out.String(), "(1) Avanti\n     -EMG 1 (1000.0 Hz)")
	assert.NotContains(t, out.String(), "Skin Check")
	assert.Equal(t, sensors, a.session.Sensors())
}

func TestApp_CollectAndExport(t *testing.T) {
	ctx := context.Background()
	a, out, exportDir := newTestApp(t)

	path, err := a.Collect(ctx, CollectOptions{
		Duration:      100 * time.Millisecond,
		Layout:        session.LayoutEMG,
		Labels:        map[int]string{1: "Biceps"},
		ExportOptions: ExportOptions{Filename: "first.csv", Preview: true},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(exportDir, "first.csv"), path)
	assert.FileExists(t, filepath.Join(exportDir, "first.png"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\r\n")
	require.Greater(t, len(lines), 8)
	assert.Equal(t, "Application:,"+export.DefaultApplication, lines[0])
	assert.Contains(t, string(data), "Biceps (1)")

	sessionID := a.session.ID()
	require.Positive(t, sessionID)

	// a fresh session restored from the store exports again with the stored label
	a.session = session.New()
	path, err = a.Export(ctx, sessionID, map[int]string{2: "Triceps"}, ExportOptions{YT: true, Filename: "again.csv"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(exportDir, "again.csv"), path)

	exports, err := a.store.Exports(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, exports, 2)
	assert.Equal(t, export.KindStandard.String(), exports[0].Kind)
	assert.NotNil(t, exports[0].CollectionLength)
	assert.Equal(t, export.KindYT.String(), exports[1].Kind)
	assert.Nil(t, exports[1].CollectionLength)
	assert.Positive(t, exports[1].Size)

	assert.Equal(t, "Biceps", a.session.MuscleMapping().Label(1))
	assert.Equal(t, "Triceps", a.session.MuscleMapping().Label(2))

	out.Reset()
	require.NoError(t, a.Sessions(ctx))
	assert.Contains(t, out.String(), "first.csv")
	assert.Contains(t, out.String(), "again.csv")
}

func TestApp_CollectWithoutSensors(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.base = createBase(&BaseConfig{Name: "empty"}, a.logger)

	_, err := a.Collect(context.Background(), CollectOptions{Duration: 10 * time.Millisecond})
	assert.ErrorIs(t, err, ErrNoSensors)
}

type scriptedPrompter struct {
	pairNumbers []int
	another     []bool
}

func (p *scriptedPrompter) PairNumber(context.Context) (int, bool, error) {
	if len(p.pairNumbers) == 0 {
		return 0, false, nil
	}
	n := p.pairNumbers[0]
	p.pairNumbers = p.pairNumbers[1:]
	return n, true, nil
}

func (p *scriptedPrompter) PairAnother(context.Context) (bool, error) {
	if len(p.another) == 0 {
		return false, nil
	}
	again := p.another[0]
	p.another = p.another[1:]
	return again, nil
}

func TestApp_Pair(t *testing.T) {
	a, out, _ := newTestApp(t)
	a.prompter = &scriptedPrompter{pairNumbers: []int{7}}

	summary, err := a.Pair(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, pairing.OutcomePaired, summary.Results[0].Outcome)
	assert.True(t, summary.Scanned)
	require.Len(t, a.session.Sensors(), 3)
	assert.Equal(t, 7, a.session.Sensors()[2].PairNumber)
	assert.Contains(t, out.String(), "Sensor 7 paired")
}

func TestApp_ExportRejectedWhileCollecting(t *testing.T) {
	a, _, exportDir := newTestApp(t)

	a.collector = NewCollector(a.base, a.session, nil, 0)
	a.collector.isCollecting.Store(true)

	_, err := a.exportSession(context.Background(), ExportOptions{Filename: "busy.csv"})
	assert.ErrorIs(t, err, ErrCollecting)
	assert.NoFileExists(t, filepath.Join(exportDir, "busy.csv"))
}

func TestApp_ExportLogsInvalidShape(t *testing.T) {
	tests := []struct {
		name    string
		yt      bool
		wantErr error
		wantLog string
	}{
		{name: "standard", wantErr: export.ErrInsufficientChannels, wantLog: "exporting CSV"},
		{name: "yt", yt: true, wantErr: export.ErrNoData, wantLog: "exporting YT CSV"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestApp(t)

			var logs bytes.Buffer
			a.engine = export.NewEngine(a.config.Export.EngineConfig(),
				export.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

			_, err := a.exportSession(context.Background(), ExportOptions{YT: tt.yt})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, logs.String(), "level=ERROR")
			assert.Contains(t, logs.String(), tt.wantLog)
		})
	}
}
