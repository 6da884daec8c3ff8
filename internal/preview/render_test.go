package preview

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, rate float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Sin(2 * math.Pi * 5 * float64(i) / rate)
	}
	return values
}

func TestRenderer_RenderAndWrite(t *testing.T) {
	r, err := NewRenderer(RenderConfig{Width: 400, TraceHeight: 80})
	require.NoError(t, err)

	img, err := r.Render([]Trace{
		{Label: "EMG 1", SampleRate: 1000, Values: sine(2000, 1000)},
		{Label: "EMG 2", SampleRate: 2000, Values: sine(2000, 2000)},
	})
	require.NoError(t, err)

	size := img.Bounds().Size()
	assert.Equal(t, 400+defaultLeftBorder+defaultRightBorder, size.X)
	assert.Equal(t, 2*80+defaultTopBorder+defaultBottomBorder, size.Y)

	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, WritePNG(path, img))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestRenderer_RenderDrawsTrace(t *testing.T) {
	r, err := NewRenderer(RenderConfig{Width: 100, TraceHeight: 60})
	require.NoError(t, err)

	img, err := r.Render([]Trace{{Label: "flat", Values: []float64{1, 1, 1, 1}}})
	require.NoError(t, err)

	// a constant trace is drawn along the top of its plot area
	y := defaultTopBorder + labelHeight
	c := img.RGBAAt(defaultLeftBorder+50, y)
	assert.NotEqual(t, [3]uint8{0xff, 0xff, 0xff}, [3]uint8{c.R, c.G, c.B})
}

func TestRenderer_NoTraces(t *testing.T) {
	r, err := NewRenderer(RenderConfig{})
	require.NoError(t, err)

	_, err = r.Render(nil)
	assert.ErrorIs(t, err, ErrNoTraces)
}

func TestNewRenderer_TraceTooSmall(t *testing.T) {
	_, err := NewRenderer(RenderConfig{TraceHeight: labelHeight})
	assert.Error(t, err)
}

func TestFromChannels(t *testing.T) {
	headers := []string{
		"EMG 1 Time Series (s)",
		"EMG 1 (1259.2593 Hz)",
		"ACC X (YT) (148.1481 Hz)",
		"Unnamed",
	}
	channels := [][]float64{{0, 0.1}, {1, 2}, {3}, {4, 5, 6}}

	traces := FromChannels(headers, channels)
	require.Len(t, traces, 3)

	assert.Equal(t, Trace{Label: "EMG 1", SampleRate: 1259.2593, Values: []float64{1, 2}}, traces[0])
	assert.Equal(t, Trace{Label: "ACC X (YT)", SampleRate: 148.1481, Values: []float64{3}}, traces[1])
	assert.Equal(t, Trace{Label: "Unnamed", Values: []float64{4, 5, 6}}, traces[2])
}

func TestTrace_Duration(t *testing.T) {
	tests := []struct {
		name  string
		trace Trace
		want  time.Duration
	}{
		{"known rate", Trace{SampleRate: 1000, Values: make([]float64, 1500)}, 1500 * time.Millisecond},
		{"unknown rate", Trace{Values: make([]float64, 10)}, 0},
		{"empty", Trace{SampleRate: 1000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trace.Duration())
		})
	}
}

func TestNiceTimeStep(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, niceTimeStep(500*time.Millisecond))
	assert.Equal(t, 2*time.Second, niceTimeStep(15*time.Second))
	assert.Equal(t, 10*time.Minute, niceTimeStep(3*time.Hour))
}
