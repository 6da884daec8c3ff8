// Package preview renders collected channels to a PNG image so the operator
// can check signal quality without opening the exported CSV.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/abritton2002/emg-collector/internal/export"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkHeight = 5

	defaultWidth       = 1200
	defaultTraceHeight = 160

	// Default border sizes in pixels
	defaultTopBorder    = 20
	defaultLeftBorder   = 10
	defaultBottomBorder = 30
	defaultRightBorder  = 10

	// Space above each trace for its label
	labelHeight = 18
)

// ErrNoTraces is returned when there is nothing to render
var ErrNoTraces = errors.New("no channels to render")

// Trace is one channel to plot
type Trace struct {
	Label      string
	SampleRate float64 // Hz, 0 when unknown
	Values     []float64
}

// Duration returns the time covered by the trace
func (t Trace) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(t.Values)) / t.SampleRate * float64(time.Second))
}

// BorderConfig defines the sizes of white space around the traces
type BorderConfig struct {
	Top    int
	Left   int
	Bottom int // Space for the time scale
	Right  int
}

// RenderConfig holds the options of the preview image
type RenderConfig struct {
	Width        int     // Width of the plot area in pixels
	TraceHeight  int     // Height of each trace in pixels
	FontSize     float64 // Font size in points
	BorderConfig BorderConfig
}

// Renderer draws traces one below the other with a shared time scale
type Renderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewRenderer creates a renderer, zero config values take defaults
func NewRenderer(config RenderConfig) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.TraceHeight == 0 {
		config.TraceHeight = defaultTraceHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig == (BorderConfig{}) {
		config.BorderConfig = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		}
	}
	if config.TraceHeight <= labelHeight {
		return nil, fmt.Errorf("trace height must exceed %d pixels: %d", labelHeight, config.TraceHeight)
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Renderer{config: config, font: parsedFont}, nil
}

// Render draws every trace and annotates it with its label, sample rate,
// sample count and duration.
func (r *Renderer) Render(traces []Trace) (*image.RGBA, error) {
	if len(traces) == 0 {
		return nil, ErrNoTraces
	}

	b := r.config.BorderConfig
	fullWidth := r.config.Width + b.Left + b.Right
	fullHeight := len(traces)*r.config.TraceHeight + b.Top + b.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ann := r.newAnnotator(img)
	defer ann.Close()

	var longest time.Duration
	for i, tr := range traces {
		top := b.Top + i*r.config.TraceHeight
		area := image.Rect(b.Left, top+labelHeight, b.Left+r.config.Width, top+r.config.TraceHeight-2)

		r.plot(img, area, tr.Values, traceColor(i, len(traces)))

		if err := ann.drawLabel(tr, b.Left, top+labelHeight-4); err != nil {
			return nil, fmt.Errorf("drawing label of %q: %w", tr.Label, err)
		}

		longest = max(longest, tr.Duration())
	}

	if err := ann.drawTimeScale(img, longest); err != nil {
		return nil, fmt.Errorf("drawing time scale: %w", err)
	}

	return img, nil
}

// plot draws the min/max envelope of the samples falling on each pixel column
func (r *Renderer) plot(img *image.RGBA, area image.Rectangle, values []float64, c color.Color) {
	n := len(values)
	if n == 0 {
		return
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
	}
	if lo > hi {
		return // only invalid values
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	height := float64(area.Dy() - 1)
	yOf := func(v float64) int {
		return area.Min.Y + int((hi-v)/span*height)
	}

	// zero line
	if lo <= 0 && hi >= 0 {
		y := yOf(0)
		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, y, color.Gray{Y: 0xdd})
		}
	}

	width := area.Dx()
	for x := 0; x < width; x++ {
		from, to := x*n/width, (x+1)*n/width
		if from >= n {
			break
		}
		if to <= from {
			to = from + 1
		}

		colMin, colMax := math.Inf(1), math.Inf(-1)
		for _, v := range values[from:to] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			colMin, colMax = min(colMin, v), max(colMax, v)
		}
		if colMin > colMax {
			continue
		}

		for y := yOf(colMax); y <= yOf(colMin); y++ {
			img.Set(area.Min.X+x, y, c)
		}
	}
}

// traceColor spreads the traces over the hue circle
func traceColor(i, n int) color.Color {
	hue := math.Mod(210+float64(i)*360/float64(n), 360)
	return colorful.Hsv(hue, 0.85, 0.75)
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	config   RenderConfig
}

func (r *Renderer) newAnnotator(img *image.RGBA) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(r.font)
	ctx.SetFontSize(r.config.FontSize)
	ctx.SetHinting(font.HintingFull)
	ctx.SetSrc(image.Black)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	return &annotator{
		context: ctx,
		config:  r.config,
		fontFace: truetype.NewFace(r.font, &truetype.Options{
			Size:    r.config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		}),
	}
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) drawLabel(tr Trace, x, y int) error {
	parts := []string{tr.Label}
	if tr.SampleRate > 0 {
		parts = append(parts, humanHz(tr.SampleRate))
	}
	parts = append(parts, humanize.Comma(int64(len(tr.Values)))+" samples")
	if d := tr.Duration(); d > 0 {
		parts = append(parts, d.Round(time.Millisecond).String())
	}

	_, err := a.context.DrawString(strings.Join(parts, "  |  "), freetype.Pt(x, y))
	return err
}

func (a *annotator) drawTimeScale(img *image.RGBA, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	b := a.config.BorderConfig
	axisY := img.Bounds().Max.Y - b.Bottom
	metrics := a.fontFace.Metrics()
	textY := axisY + tickMarkHeight + metrics.Ascent.Round()

	step := niceTimeStep(duration)
	for t := time.Duration(0); t <= duration; t += step {
		x := b.Left + int(float64(t)/float64(duration)*float64(a.config.Width-1))

		for y := axisY; y < axisY+tickMarkHeight; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatSeconds(t)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}

	return nil
}

func humanHz(hz float64) string {
	v, prefix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f %sHz", v, prefix)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}

func niceTimeStep(duration time.Duration) time.Duration {
	roughStep := duration / 8 // Aim for about 8 time labels

	niceIntervals := []time.Duration{
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		30 * time.Second,
		time.Minute,
		5 * time.Minute,
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return interval
		}
	}

	return 10 * time.Minute
}

// FromChannels turns buffered channels into traces. Time series columns are
// skipped and the sample rate is parsed from the channel header.
func FromChannels(headers []string, channels [][]float64) []Trace {
	var traces []Trace
	for i, header := range headers {
		if i >= len(channels) || strings.Contains(header, "Time Series") {
			continue
		}

		tr := Trace{Label: header, Values: channels[i]}
		if rate, ok := export.ParseRate(header); ok {
			tr.SampleRate = rate
			hz := strings.Index(header, "Hz")
			tr.Label = strings.TrimSpace(header[:strings.LastIndex(header[:hz], "(")])
		}
		traces = append(traces, tr)
	}
	return traces
}

// WritePNG encodes img to a PNG file at path
func WritePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating preview file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing preview file: %w", cErr)
		}
	}()

	if err = png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding preview: %w", err)
	}
	return nil
}
