package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBlockInterval is how often the simulator emits a frame per channel
	DefaultBlockInterval = 20 * time.Millisecond

	defaultSensorName = "Trigno Avanti"
	defaultEMGRate    = 1259.2593
)

var (
	// ErrPairInProgress is returned when a pairing request is issued while another is outstanding
	ErrPairInProgress = errors.New("pairing already in progress")

	// ErrPairCancelled is returned by RequestPair when the request was withdrawn
	ErrPairCancelled = errors.New("pairing cancelled")

	// ErrNoSensors is returned when streaming is requested without any paired sensor
	ErrNoSensors = errors.New("no sensors paired")
)

// WithLogger sets the logger for the simulator
func WithLogger(logger *slog.Logger) func(*Simulator) {
	return func(s *Simulator) {
		s.logger = logger.With(slog.String("base", s.name))
	}
}

// WithPairDelay sets how long a pairing request stays outstanding before the
// sensor pairs. Zero means a requested sensor never pairs.
func WithPairDelay(d time.Duration) func(*Simulator) {
	return func(s *Simulator) {
		s.pairDelay = d
	}
}

// WithBlockInterval sets how often a frame is emitted per channel
func WithBlockInterval(d time.Duration) func(*Simulator) {
	return func(s *Simulator) {
		s.blockInterval = d
	}
}

// WithSeed makes the generated signal reproducible
func WithSeed(seed uint64) func(*Simulator) {
	return func(s *Simulator) {
		s.seed = seed
	}
}

type pendingPair struct {
	pairNumber int
	cancel     chan struct{}
}

// Simulator is an in-process base station. It pairs sensors after a delay
// and streams synthetic EMG for every exportable channel of its paired sensors.
type Simulator struct {
	name          string
	pairDelay     time.Duration
	blockInterval time.Duration
	seed          uint64

	mu      sync.Mutex
	sensors []Sensor
	pending *pendingPair

	isStreaming atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	logger *slog.Logger
}

// NewSimulator creates a base station simulator with the given sensors already paired
func NewSimulator(name string, sensors []Sensor, options ...func(*Simulator)) *Simulator {
	s := Simulator{
		name:          name,
		sensors:       slices.Clone(sensors),
		blockInterval: DefaultBlockInterval,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// RequestPair blocks until the requested sensor pairs, the request is
// cancelled with CancelPair, or ctx is done.
func (s *Simulator) RequestPair(ctx context.Context, pairNumber int) error {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return ErrPairInProgress
	}
	p := &pendingPair{pairNumber: pairNumber, cancel: make(chan struct{})}
	s.pending = p
	s.mu.Unlock()

	s.logger.Info("awaiting sensor pair request", slog.Int("pairNumber", pairNumber))

	var paired <-chan time.Time
	if s.pairDelay > 0 {
		timer := time.NewTimer(s.pairDelay)
		defer timer.Stop()
		paired = timer.C
	}

	select {
	case <-paired:
		s.completePair(p)
		return nil

	case <-p.cancel:
		return ErrPairCancelled

	case <-ctx.Done():
		s.clearPending(p)
		return ctx.Err()
	}
}

// PairStatus reports whether a pairing request is outstanding
func (s *Simulator) PairStatus(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending != nil, nil
}

// CancelPair withdraws the outstanding pairing request, if any
func (s *Simulator) CancelPair(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil
	}

	close(s.pending.cancel)
	s.logger.Info("pairing cancelled", slog.Int("pairNumber", s.pending.pairNumber))
	s.pending = nil

	return nil
}

// Scan returns the paired sensors ordered by pair number
func (s *Simulator) Scan(context.Context) ([]Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sensors := slices.Clone(s.sensors)
	slices.SortStableFunc(sensors, func(a, b Sensor) int {
		return a.PairNumber - b.PairNumber
	})

	return sensors, nil
}

func (s *Simulator) completePair(p *pendingPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != p {
		return // cancelled meanwhile
	}
	s.pending = nil

	sensor := Sensor{
		PairNumber: p.pairNumber,
		Name:       defaultSensorName,
		Channels: []Channel{
			{Name: "EMG 1", SampleRate: defaultEMGRate, Enabled: true, Type: ChannelEMG},
			{Name: "Skin Check", SampleRate: 74.0741, Enabled: true, Type: ChannelSkinCheck},
		},
	}

	s.sensors = slices.DeleteFunc(s.sensors, func(existing Sensor) bool {
		return existing.PairNumber == p.pairNumber
	})
	s.sensors = append(s.sensors, sensor)

	s.logger.Info("sensor paired", slog.Int("pairNumber", p.pairNumber))
}

func (s *Simulator) clearPending(p *pendingPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == p {
		s.pending = nil
	}
}

// BeginStreaming starts one generator per exportable channel and sends
// frames to the frames channel until ctx is cancelled or Stop is called.
func (s *Simulator) BeginStreaming(ctx context.Context, frames chan<- Frame) (<-chan error, error) {
	if s.isStreaming.Load() {
		return nil, fmt.Errorf("base is already streaming")
	}

	sensors, _ := s.Scan(ctx)
	if len(sensors) == 0 {
		return nil, ErrNoSensors
	}

	s.isStreaming.Store(true)
	ctx, s.cancel = context.WithCancel(ctx)

	type stream struct {
		pairNumber int
		channel    Channel
	}
	var streams []stream
	for _, sensor := range sensors {
		for _, ch := range sensor.ExportableChannels() {
			streams = append(streams, stream{sensor.PairNumber, ch})
		}
	}

	streamingStopped := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer close(streamingStopped)
		defer s.wg.Done()

		s.logger.Info("starting data collection...", slog.Int("channels", len(streams)))

		done := make(chan error, len(streams))
		startedAt := time.Now()
		for i, st := range streams {
			rnd := rand.New(rand.NewPCG(s.seed, uint64(i)))
			go s.generate(ctx, startedAt, st.pairNumber, st.channel, rnd, frames, done)
		}

		var errs []error
		for range streams {
			if err := <-done; err != nil {
				s.cancel()
				s.logger.Error(err.Error())

				errs = append(errs, err)
			}
		}

		s.logger.Info("data collection stopped")
		s.isStreaming.Store(false)

		if len(errs) > 0 {
			streamingStopped <- errors.Join(errs...)
		}
	}()

	return streamingStopped, nil
}

// Stop cancels streaming and waits for the generators to exit
func (s *Simulator) Stop() {
	if !s.isStreaming.Load() {
		return // already stopped
	}

	s.cancel()
	s.wg.Wait()
}

// IsStreaming returns true while data is being generated
func (s *Simulator) IsStreaming() bool {
	return s.isStreaming.Load()
}

// generate emits blocks of synthetic EMG: gaussian noise modulated by a slow
// contraction envelope, scaled to millivolts.
func (s *Simulator) generate(ctx context.Context, startedAt time.Time, pairNumber int, ch Channel, rnd *rand.Rand, frames chan<- Frame, done chan<- error) {
	ticker := time.NewTicker(s.blockInterval)
	defer ticker.Stop()

	var sent int
	for {
		select {
		case <-ctx.Done():
			done <- nil
			return

		case now := <-ticker.C:
			due := int(now.Sub(startedAt).Seconds() * ch.SampleRate)
			if due <= sent {
				continue
			}

			samples := make([]float64, due-sent)
			for i := range samples {
				t := float64(sent+i) / ch.SampleRate
				envelope := 0.2 + 0.8*math.Abs(math.Sin(math.Pi*0.5*t))
				samples[i] = 0.05 * envelope * rnd.NormFloat64()
			}

			frame := Frame{
				Timestamp:  now,
				PairNumber: pairNumber,
				Channel:    ch.Name,
				Offset:     sent,
				SampleRate: ch.SampleRate,
				Samples:    samples,
			}

			select {
			case frames <- frame:
				sent = due
			case <-ctx.Done():
				done <- nil
				return
			}
		}
	}
}
