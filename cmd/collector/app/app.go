package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/abritton2002/emg-collector/internal/export"
	"github.com/abritton2002/emg-collector/internal/pairing"
	"github.com/abritton2002/emg-collector/internal/preview"
	"github.com/abritton2002/emg-collector/internal/sensor"
	"github.com/abritton2002/emg-collector/internal/session"
	"github.com/abritton2002/emg-collector/internal/storage"
)

const storageFile = "emg_sessions.sqlite"

// ErrNoSensors is returned when collection is requested without any sensor
var ErrNoSensors = errors.New("no sensors found, pair a sensor first")

// ErrCollecting is returned when an export is requested while streaming
var ErrCollecting = errors.New("collection in progress, stop it before exporting")

// CollectOptions controls a collection run
type CollectOptions struct {
	Duration time.Duration  // Stop after this long, 0 streams until cancelled
	Layout   session.Layout // Which series to buffer
	Labels   map[int]string // Muscle labels by pair number
	Pair     bool           // Run the interactive pairing first
	ExportOptions
}

// ExportOptions controls how a session is exported
type ExportOptions struct {
	YT       bool
	Filename string           // Explicit file name, takes precedence over FileInfo
	FileInfo *export.FileInfo // Legacy naming scheme
	Preview  bool             // Also render a PNG preview next to the CSV
}

// App wires the base station, the session, the export engine and the store
type App struct {
	config *Config
	logger *slog.Logger
	out    io.Writer

	base     *sensor.Simulator
	session  *session.Session
	engine   *export.Engine
	store    *storage.SqliteStore
	prompter pairing.Prompter

	collector *Collector // Latest collection run, nil before the first one
}

// New creates the application from its configuration
func New(config *Config, logger *slog.Logger, out io.Writer) (*App, error) {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	return &App{
		config:   config,
		logger:   logger,
		out:      out,
		base:     createBase(&config.Base, logger),
		session:  session.New(),
		engine:   export.NewEngine(config.Export.EngineConfig(), export.WithLogger(logger)),
		store:    store,
		prompter: FormPrompter{},
	}, nil
}

// Close releases the store
func (a *App) Close() error {
	return a.store.Close()
}

// Scan lists the sensors paired to the base
func (a *App) Scan(ctx context.Context) ([]sensor.Sensor, error) {
	sensors, err := a.base.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning for sensors: %w", err)
	}
	a.session.SetSensors(sensors)

	a.printSensors(sensors)
	return sensors, nil
}

// Pair runs the interactive pairing loop
func (a *App) Pair(ctx context.Context) (pairing.Summary, error) {
	coordinator := pairing.New(a.base,
		pairing.WithCountdown(a.config.Pairing.Countdown),
		pairing.WithTickInterval(a.config.Pairing.TickInterval.Duration()),
		pairing.WithPollInterval(a.config.Pairing.PollInterval.Duration()),
		pairing.WithObserver(countdownPrinter(a.out)),
		pairing.WithLogger(a.logger),
	)

	summary, err := coordinator.Run(ctx, a.prompter)
	if err != nil {
		return summary, err
	}

	if summary.Scanned {
		a.session.SetSensors(summary.Sensors)
		a.printSensors(summary.Sensors)
	}

	return summary, nil
}

// Collect streams from the scanned sensors into a new stored session and
// exports it once streaming stops.
func (a *App) Collect(ctx context.Context, opts CollectOptions) (string, error) {
	if opts.Pair {
		if _, err := a.Pair(ctx); err != nil {
			return "", fmt.Errorf("pairing sensors: %w", err)
		}
	}

	sensors, err := a.Scan(ctx)
	if err != nil {
		return "", err
	}
	if len(sensors) == 0 {
		return "", ErrNoSensors
	}

	if err = a.session.Prepare(opts.Layout); err != nil {
		return "", err
	}

	sessionID, err := a.store.CreateSession(ctx, a.config.Base.Name, opts.Layout.String(), a.config.Base)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	a.session.SetID(sessionID)

	headers, _ := a.session.Buffer().Snapshot()
	if err = a.store.StoreSensors(ctx, sessionID, sensors); err != nil {
		return "", fmt.Errorf("storing sensors: %w", err)
	}
	if err = a.store.StoreHeaders(ctx, sessionID, a.session.SensorHeaders(), headers); err != nil {
		return "", fmt.Errorf("storing headers: %w", err)
	}
	if err = a.assignLabels(ctx, sessionID, opts.Labels); err != nil {
		return "", err
	}

	a.collector = NewCollector(a.base, a.session, a.store, sessionID,
		WithMaxBatchSize(a.config.Storage.MaxBatchSize),
		WithFlushInterval(a.config.Storage.FlushInterval.Duration()),
		WithCollectorLogger(a.logger),
	)

	collectCtx, cancel := ctx, context.CancelFunc(func() {})
	if opts.Duration > 0 {
		collectCtx, cancel = context.WithTimeout(ctx, opts.Duration)
	}
	defer cancel()

	fmt.Fprintf(a.out, "%s\n", mutedStyle.Render(fmt.Sprintf("Collecting session %d, press Ctrl+C to stop", sessionID)))
	if err = a.collector.Run(collectCtx); err != nil {
		return "", fmt.Errorf("collecting data: %w", err)
	}

	// the collection may have been stopped by a signal, the export still runs
	return a.exportSession(context.WithoutCancel(ctx), opts.ExportOptions)
}

// Export restores a stored session and exports it again
func (a *App) Export(ctx context.Context, sessionID int64, labels map[int]string, opts ExportOptions) (string, error) {
	rec, err := a.store.LoadSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading session %d: %w", sessionID, err)
	}

	layout, err := session.ParseLayout(rec.Session.Layout)
	if err != nil {
		return "", fmt.Errorf("loading session %d: %w", sessionID, err)
	}

	if err = a.session.Restore(sessionID, layout, rec.Sensors, rec.SensorHeaders, rec.ChannelHeaders, rec.Channels, rec.Labels); err != nil {
		return "", err
	}
	if err = a.assignLabels(ctx, sessionID, labels); err != nil {
		return "", err
	}

	return a.exportSession(ctx, opts)
}

// Sessions prints the stored sessions and their exports
func (a *App) Sessions(ctx context.Context) error {
	sessions, err := a.store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.out, mutedStyle.Render("No stored sessions"))
		return nil
	}

	for _, s := range sessions {
		fmt.Fprintf(a.out, "%s  %s  base=%s  layout=%s  samples=%s\n",
			countdownStyle.Render(fmt.Sprintf("#%d", s.ID)),
			s.StartTime.Local().Format(time.DateTime),
			s.BaseName, s.Layout, humanize.Comma(s.Samples))

		exports, err := a.store.Exports(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("listing exports of session %d: %w", s.ID, err)
		}
		for _, e := range exports {
			fmt.Fprintf(a.out, "    %-8s %s  %s rows, %s, %s\n",
				e.Kind, e.Path, humanize.Comma(int64(e.Rows)),
				humanize.Bytes(uint64(e.Size)), humanize.Time(e.CreatedAt))
		}
	}

	return nil
}

func (a *App) assignLabels(ctx context.Context, sessionID int64, labels map[int]string) error {
	for pairNumber, label := range labels {
		if err := a.session.MuscleMapping().Assign(pairNumber, label); err != nil {
			return fmt.Errorf("labelling sensor %d: %w", pairNumber, err)
		}
		if err := a.store.SetMuscleLabel(ctx, sessionID, pairNumber, label); err != nil {
			return fmt.Errorf("storing label of sensor %d: %w", pairNumber, err)
		}
	}
	return nil
}

// exportSession writes the session buffer, records the file in the store and
// optionally renders the preview.
func (a *App) exportSession(ctx context.Context, opts ExportOptions) (string, error) {
	if a.collector != nil && a.collector.IsCollecting() {
		return "", ErrCollecting
	}

	switch {
	case opts.Filename != "":
		a.session.SetFilename(opts.Filename)
	case opts.FileInfo != nil:
		name, err := opts.FileInfo.Filename()
		if err != nil {
			return "", err
		}
		a.session.SetFilename(name)
	}

	snap := a.session.Snapshot()
	in := export.InputFrom(snap)

	var job *export.Job
	var err error
	if opts.YT {
		job, err = a.engine.BuildYT(in)
	} else {
		job, err = a.engine.Build(in)
	}
	if err != nil {
		return "", fmt.Errorf("building export: %w", err)
	}

	path, err := a.engine.Write(job)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(a.out, "%s %s\n", pairedStyle.Render("Exported"), path)

	record := storage.Export{
		SessionID: a.session.ID(),
		CreatedAt: job.CreatedAt,
		Kind:      job.Kind.String(),
		Path:      path,
		Rows:      len(job.Rows),
	}
	if job.Kind == export.KindStandard {
		record.CollectionLength = &job.CollectionLength
	}
	if stat, sErr := os.Stat(path); sErr == nil {
		record.Size = stat.Size()
	}
	if _, err = a.store.RecordExport(ctx, record); err != nil {
		a.logger.Error(fmt.Sprintf("recording export: %s", err.Error()), slog.String("path", path))
	}

	if opts.Preview {
		if err = a.renderPreview(snap, path); err != nil {
			return path, err
		}
	}

	return path, nil
}

func (a *App) renderPreview(snap session.Snapshot, csvPath string) error {
	renderer, err := preview.NewRenderer(preview.RenderConfig{})
	if err != nil {
		return fmt.Errorf("creating preview renderer: %w", err)
	}

	img, err := renderer.Render(preview.FromChannels(snap.ChannelHeaders, snap.Channels))
	if err != nil {
		return fmt.Errorf("rendering preview: %w", err)
	}

	path := strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".png"
	if err = preview.WritePNG(path, img); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %s\n", pairedStyle.Render("Preview"), path)
	return nil
}

func (a *App) printSensors(sensors []sensor.Sensor) {
	if len(sensors) == 0 {
		fmt.Fprintln(a.out, mutedStyle.Render("No sensors paired"))
		return
	}

	labels := a.session.MuscleMapping()
	for _, s := range sensors {
		fmt.Fprintln(a.out, s.Describe(labels.Label(s.PairNumber)))

		for _, ch := range s.ExportableChannels() {
			a.logger.Debug("channel found",
				slog.Int("pairNumber", s.PairNumber),
				slog.String("channel", ch.Name),
				slog.String("rate", ch.HumanRate()))
		}
	}
}

func createBase(config *BaseConfig, logger *slog.Logger) *sensor.Simulator {
	options := []func(*sensor.Simulator){
		sensor.WithLogger(logger),
		sensor.WithPairDelay(config.PairDelay.Duration()),
		sensor.WithSeed(config.Seed),
	}
	if config.BlockInterval > 0 {
		options = append(options, sensor.WithBlockInterval(config.BlockInterval.Duration()))
	}

	return sensor.NewSimulator(config.Name, config.Sensors, options...)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = defaultDataDirectory
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(filepath.Join(dir, storageFile), storage.WithMaxBatchSize(config.MaxBatchSize)), nil
}
