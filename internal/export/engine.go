// Package export writes acquisition sessions to CSV files in the layout of
// the legacy Trigno Discover software, and in a generic multi-channel "YT"
// layout.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/abritton2002/emg-collector/internal/numeric"
	"github.com/abritton2002/emg-collector/internal/session"
)

const (
	dateLayout     = "01/02/2006 03:04:05 PM"
	filenameLayout = "20060102_150405"

	timeDecimals   = 7
	lengthDecimals = 4
)

const (
	KindStandard Kind = iota
	KindYT
)

// Kind is the layout of an export file
type Kind int

func (k Kind) String() string {
	if k == KindYT {
		return "yt"
	}
	return "standard"
}

var (
	// ErrInsufficientChannels is returned when fewer than two series are buffered
	ErrInsufficientChannels = errors.New("not enough data channels (need at least 2)")

	// ErrUnsupportedDataShape is returned for series counts other than 2 or 4 and more
	ErrUnsupportedDataShape = errors.New("unsupported data shape")

	// ErrNoData is returned by the YT export when nothing is buffered
	ErrNoData = errors.New("no data to export")
)

// channelLabels is the fixed channel label row of the standard layout
var channelLabels = []string{"EMG 1 Time Series (s)", "EMG 1 (mV)", "EMG 1 Time Series (s)", "EMG 1 (mV)"}

// Input is the session data an export consumes
type Input struct {
	Filename       string // Optional, a timestamped name is generated when empty
	SensorHeaders  []string
	ChannelHeaders []string
	Channels       [][]float64
	Muscles        [2]session.Muscle
}

// InputFrom converts a session snapshot into an export input
func InputFrom(s session.Snapshot) Input {
	return Input{
		Filename:       s.Filename,
		SensorHeaders:  s.SensorHeaders,
		ChannelHeaders: s.ChannelHeaders,
		Channels:       s.Channels,
		Muscles:        s.Muscles,
	}
}

// Job is the computed content of one export file
type Job struct {
	Kind             Kind
	Filename         string
	CreatedAt        time.Time
	Muscles          [2]session.Muscle // Resolved display name and ID of each slot
	Rates            [2]float64
	CollectionLength float64
	Header           [][]string
	Rows             [][]string
}

// Records returns the header rows followed by the data rows
func (j *Job) Records() [][]string {
	records := make([][]string, 0, len(j.Header)+len(j.Rows))
	records = append(records, j.Header...)
	return append(records, j.Rows...)
}

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "export"))
	}
}

// WithNow sets the time source used for the header date and default file names
func WithNow(now func() time.Time) func(*Engine) {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine turns session data into export files
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. Zero fields of config take their defaults.
func NewEngine(config Config, options ...func(*Engine)) *Engine {
	e := Engine{
		config: config.withDefaults(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.config
}

// Build computes the standard export of in without touching the filesystem.
//
// Two series are read as EMG1, EMG2 and get synthesized time columns. Four or
// more series are read as Time1, EMG1, Time2, EMG2 and used as they are.
// Either way the rows are truncated to the shortest series.
func (e *Engine) Build(in Input) (*Job, error) {
	n := len(in.Channels)
	var err error
	switch {
	case n < 2:
		err = fmt.Errorf("%w: got %d", ErrInsufficientChannels, n)
	case n == 3:
		err = fmt.Errorf("%w: %d series", ErrUnsupportedDataShape, n)
	}
	if err != nil {
		e.logger.Error(fmt.Sprintf("exporting CSV: %s", err.Error()))
		return nil, err
	}

	now := e.now()
	job := Job{
		Kind:      KindStandard,
		Filename:  e.filename(in.Filename, e.config.FilePrefix, now),
		CreatedAt: now,
	}

	var series [4][]float64
	if n == 2 {
		job.Rates = [2]float64{
			headerRate(in.ChannelHeaders, 0, e.config.DefaultRates[0]),
			headerRate(in.ChannelHeaders, 1, e.config.DefaultRates[1]),
		}
		series = [4][]float64{
			timeSeries(len(in.Channels[0]), job.Rates[0]),
			in.Channels[0],
			timeSeries(len(in.Channels[1]), job.Rates[1]),
			in.Channels[1],
		}
		job.CollectionLength = e.estimateLength(in.Channels[0], in.Channels[1], job.Rates)
	} else {
		first, second := 1, 3
		if len(in.ChannelHeaders) < 4 {
			first, second = 0, 1
		}
		job.Rates = [2]float64{
			headerRate(in.ChannelHeaders, first, e.config.DefaultRates[0]),
			headerRate(in.ChannelHeaders, second, e.config.DefaultRates[1]),
		}
		series = [4][]float64(in.Channels[:4])
		job.CollectionLength = e.measureLength(in.Channels[0], in.Channels[2])
	}

	for i, m := range in.Muscles {
		job.Muscles[i] = session.Muscle{ID: m.ID, Name: m.Name}
		if job.Muscles[i].ID == "" {
			job.Muscles[i].ID = e.config.MuscleIDs[i]
		}
		if job.Muscles[i].Name == "" {
			job.Muscles[i].Name = e.config.MuscleNames[i]
		}
	}

	job.Header = [][]string{
		{"Application:", e.config.Application},
		{"Date/Time:", now.Format(dateLayout)},
		{"Collection Length (seconds):", numeric.Format(job.CollectionLength)},
		{
			fmt.Sprintf("%s (%s)", job.Muscles[0].Name, job.Muscles[0].ID),
			"",
			fmt.Sprintf("%s (%s)", job.Muscles[1].Name, job.Muscles[1].ID),
		},
		{e.config.SensorModes[0], "", e.config.SensorModes[1]},
		channelLabels,
		{"", numeric.Format(job.Rates[0]) + " Hz", "", numeric.Format(job.Rates[1]) + " Hz"},
	}

	rows := len(series[0])
	for _, s := range series[1:] {
		rows = min(rows, len(s))
	}

	job.Rows = make([][]string, rows)
	for i := range rows {
		job.Rows[i] = []string{
			numeric.Format(series[0][i]),
			numeric.Format(series[1][i]),
			numeric.Format(series[2][i]),
			numeric.Format(series[3][i]),
		}
	}

	return &job, nil
}

// BuildYT computes the YT export of in: the sensor and channel header rows
// as given, then one row per sample index across all channels. Channels
// shorter than the longest one are padded with empty fields.
func (e *Engine) BuildYT(in Input) (*Job, error) {
	if len(in.Channels) == 0 {
		e.logger.Error(fmt.Sprintf("exporting YT CSV: %s", ErrNoData.Error()))
		return nil, ErrNoData
	}

	now := e.now()
	job := Job{
		Kind:      KindYT,
		Filename:  e.filename(in.Filename, e.config.YTFilePrefix, now),
		CreatedAt: now,
		Muscles:   in.Muscles,
		Header: [][]string{
			headerRow(in.SensorHeaders),
			headerRow(in.ChannelHeaders),
		},
	}

	longest := 0
	for _, ch := range in.Channels {
		longest = max(longest, len(ch))
	}

	job.Rows = make([][]string, longest)
	for i := range longest {
		row := make([]string, len(in.Channels))
		for c, ch := range in.Channels {
			if i < len(ch) {
				row[c] = numeric.Format(ch[i])
			}
		}
		job.Rows[i] = row
	}

	return &job, nil
}

// Export writes the standard export of in and returns the file path
func (e *Engine) Export(in Input) (string, error) {
	job, err := e.Build(in)
	if err != nil {
		return "", fmt.Errorf("building export: %w", err)
	}
	return e.Write(job)
}

// ExportYT writes the YT export of in and returns the file path
func (e *Engine) ExportYT(in Input) (string, error) {
	job, err := e.BuildYT(in)
	if err != nil {
		return "", fmt.Errorf("building YT export: %w", err)
	}
	return e.Write(job)
}

// Path returns where job is written
func (e *Engine) Path(job *Job) string {
	if filepath.IsAbs(job.Filename) {
		return job.Filename
	}
	return filepath.Join(e.config.OutputDirectory, job.Filename)
}

// Write writes job to its file, creating the output directory when missing
// and replacing any existing file. A partially written file is removed.
func (e *Engine) Write(job *Job) (string, error) {
	path := e.Path(job)
	logger := e.logger.With(slog.String("path", path), slog.String("kind", job.Kind.String()))

	if err := writeCSV(path, job.Records()); err != nil {
		logger.Error(fmt.Sprintf("writing export: %s", err.Error()))
		return "", fmt.Errorf("writing export %s: %w", path, err)
	}

	logger.Info("CSV exported", slog.Int("rows", len(job.Rows)))
	return path, nil
}

func (e *Engine) filename(name, prefix string, now time.Time) string {
	if name != "" {
		return name
	}
	return prefix + now.Format(filenameLayout) + ".csv"
}

// estimateLength infers the length of a session without time series from
// the sample count and the faster of the two rates
func (e *Engine) estimateLength(emg1, emg2 []float64, rates [2]float64) float64 {
	if len(emg1) == 0 {
		return e.config.CollectionLength
	}
	samples := max(len(emg1), len(emg2))
	return numeric.Round(float64(samples)/max(rates[0], rates[1]), lengthDecimals)
}

// measureLength returns the later of the last timestamps of both time series
func (e *Engine) measureLength(time1, time2 []float64) float64 {
	if len(time1) == 0 || len(time2) == 0 {
		return e.config.CollectionLength
	}
	return numeric.Round(max(time1[len(time1)-1], time2[len(time2)-1]), lengthDecimals)
}

// timeSeries synthesizes n timestamps at the given rate
func timeSeries(n int, rate float64) []float64 {
	step := 1.0 / rate
	times := make([]float64, n)
	for i := range times {
		times[i] = numeric.Round(float64(i)*step, timeDecimals)
	}
	return times
}

// headerRow returns a copy of the header so an empty header still yields a row
func headerRow(header []string) []string {
	if len(header) == 0 {
		return []string{""}
	}
	return append([]string(nil), header...)
}

func writeCSV(path string, records [][]string) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing file: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := csv.NewWriter(f)
	w.UseCRLF = true

	if err = w.WriteAll(records); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}

	return nil
}
