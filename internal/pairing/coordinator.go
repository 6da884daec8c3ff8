// Package pairing negotiates the pairing of new sensors with the base
// station. A pairing attempt is bounded by a countdown: it ends either when
// the base reports that the sensor paired or when the countdown runs out, in
// which case the request is cancelled.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/abritton2002/emg-collector/internal/sensor"
)

const (
	// DefaultCountdown is the number of ticks a pairing attempt may last
	DefaultCountdown = 15

	// DefaultTickInterval is the duration of one countdown tick
	DefaultTickInterval = time.Second

	// DefaultPollInterval is how often the base is asked for the pairing status
	DefaultPollInterval = 100 * time.Millisecond
)

const (
	StateIdle State = iota
	StateRequested
	StatePaired
	StateCancelled
)

// State is the state of the coordinator
type State int

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StatePaired:
		return "paired"
	case StateCancelled:
		return "cancelled"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

const (
	OutcomePaired Outcome = iota + 1
	OutcomeCancelled
)

// Outcome is the terminal result of a pairing attempt
type Outcome int

func (o Outcome) String() string {
	switch o {
	case OutcomePaired:
		return "paired"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

var (
	// ErrInvalidPairNumber is returned for negative pair numbers
	ErrInvalidPairNumber = errors.New("invalid pair number")

	// ErrBusy is returned when a pairing attempt is already running
	ErrBusy = errors.New("pairing attempt already running")
)

// Attempt is a snapshot of the current pairing attempt
type Attempt struct {
	State      State
	PairNumber int
	Remaining  int  // Countdown ticks left
	Awaiting   bool // Whether the base still reports the request as outstanding
}

// Result describes a finished pairing attempt
type Result struct {
	PairNumber int
	Outcome    Outcome
	Remaining  int // Countdown ticks left when the attempt ended
}

// Prompter asks the operator for pairing decisions
type Prompter interface {
	// PairNumber asks for the slot of the next sensor. ok is false when the
	// operator dismissed the prompt.
	PairNumber(ctx context.Context) (pairNumber int, ok bool, err error)

	// PairAnother asks whether another sensor should be paired.
	PairAnother(ctx context.Context) (bool, error)
}

// Summary describes an operator pairing session started with Run
type Summary struct {
	Results []Result
	Scanned bool            // Whether a sensor scan ran at the end
	Sensors []sensor.Sensor // Sensors found by the scan
}

// WithClock sets the time source of the countdown and the status poll
func WithClock(clock Clock) func(*Coordinator) {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithCountdown sets the number of countdown ticks. Non-positive values are ignored.
func WithCountdown(ticks int) func(*Coordinator) {
	return func(c *Coordinator) {
		if ticks > 0 {
			c.countdown = ticks
		}
	}
}

// WithTickInterval sets the duration of one countdown tick
func WithTickInterval(d time.Duration) func(*Coordinator) {
	return func(c *Coordinator) {
		if d > 0 {
			c.tickInterval = d
		}
	}
}

// WithPollInterval sets how often the pairing status is polled
func WithPollInterval(d time.Duration) func(*Coordinator) {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithObserver registers a function called on every state change and
// countdown tick. It runs on the goroutine calling Pair and must not block.
func WithObserver(fn func(Attempt)) func(*Coordinator) {
	return func(c *Coordinator) {
		c.observer = fn
	}
}

// WithLogger sets the logger for the coordinator
func WithLogger(logger *slog.Logger) func(*Coordinator) {
	return func(c *Coordinator) {
		c.logger = logger.With(slog.String("component", "pairing"))
	}
}

// Coordinator runs pairing attempts against a base station, one at a time.
// Its state machine is Idle -> Requested -> (Paired | Cancelled) -> Idle.
type Coordinator struct {
	base  sensor.Base
	clock Clock

	countdown    int
	tickInterval time.Duration
	pollInterval time.Duration

	observer func(Attempt)
	logger   *slog.Logger

	mu      sync.Mutex
	attempt Attempt
}

// New creates a Coordinator for the given base
func New(base sensor.Base, options ...func(*Coordinator)) *Coordinator {
	c := Coordinator{
		base:         base,
		clock:        RealClock{},
		countdown:    DefaultCountdown,
		tickInterval: DefaultTickInterval,
		pollInterval: DefaultPollInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Attempt returns a snapshot of the current attempt
func (c *Coordinator) Attempt() Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Pair requests the pairing of a sensor into pairNumber and blocks until the
// attempt ends. The request and the status poll run on their own goroutines
// while the calling goroutine runs the countdown. The attempt is Paired when
// the poll sees the request completed before the countdown reached zero;
// otherwise it is Cancelled and exactly one cancel request is sent to the
// base. Cancelling ctx cancels the attempt early.
func (c *Coordinator) Pair(ctx context.Context, pairNumber int) (Result, error) {
	if pairNumber < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidPairNumber, pairNumber)
	}

	c.mu.Lock()
	if c.attempt.State != StateIdle {
		c.mu.Unlock()
		return Result{}, ErrBusy
	}
	c.attempt = Attempt{
		State:      StateRequested,
		PairNumber: pairNumber,
		Remaining:  c.countdown,
		Awaiting:   true,
	}
	c.mu.Unlock()
	c.notify()

	logger := c.logger.With(slog.Int("pairNumber", pairNumber))
	logger.Info("awaiting sensor pair request", slog.Int("countdown", c.countdown))

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	countdown := c.clock.NewTicker(c.tickInterval)
	defer countdown.Stop()

	go func() {
		err := c.base.RequestPair(attemptCtx, pairNumber)
		if err == nil {
			return
		}
		if attemptCtx.Err() != nil {
			logger.Debug(fmt.Sprintf("pair request ended: %s", err.Error()))
			return
		}
		logger.Warn(fmt.Sprintf("pair request failed: %s", err.Error()))
	}()

	paired := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.poll(attemptCtx, paired, logger)
	}()

	outcome, remaining := c.countDown(ctx, countdown, paired)

	cancel()
	wg.Wait() // the poll goroutine is the only other writer of the attempt

	if outcome == OutcomeCancelled {
		if err := c.base.CancelPair(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(fmt.Sprintf("cancel pair request failed: %s", err.Error()))
		}
		logger.Info("sensor not paired")
	} else {
		logger.Info("sensor paired", slog.Int("remaining", remaining))
	}

	c.finish(outcome)

	return Result{PairNumber: pairNumber, Outcome: outcome, Remaining: remaining}, nil
}

// Run drives an operator pairing session: it prompts for a pair number and
// pairs the sensor, then offers to pair another one. When the operator
// declines, the base is scanned for every paired sensor. A cancelled attempt
// ends the session without a scan.
func (c *Coordinator) Run(ctx context.Context, p Prompter) (Summary, error) {
	var summary Summary

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		pairNumber, ok, err := p.PairNumber(ctx)
		if err != nil {
			return summary, fmt.Errorf("prompting pair number: %w", err)
		}
		if !ok {
			return summary, nil
		}

		result, err := c.Pair(ctx, pairNumber)
		if err != nil {
			return summary, fmt.Errorf("pairing sensor %d: %w", pairNumber, err)
		}
		summary.Results = append(summary.Results, result)

		if result.Outcome == OutcomeCancelled {
			return summary, nil
		}

		again, err := p.PairAnother(ctx)
		if err != nil {
			return summary, fmt.Errorf("prompting pair another: %w", err)
		}
		if again {
			continue
		}

		sensors, err := c.base.Scan(ctx)
		if err != nil {
			return summary, fmt.Errorf("scanning for sensors: %w", err)
		}

		summary.Scanned = true
		summary.Sensors = sensors
		return summary, nil
	}
}

// countDown ticks the countdown until it reaches zero, the poll reports the
// sensor paired or ctx is done. The paired signal is checked before every
// tick is consumed, so a success observed before the last tick always wins.
func (c *Coordinator) countDown(ctx context.Context, ticker Ticker, paired <-chan struct{}) (Outcome, int) {
	remaining := c.countdown

	for remaining > 0 {
		select {
		case <-paired:
			return OutcomePaired, remaining

		case <-ctx.Done():
			return OutcomeCancelled, remaining

		case <-ticker.C():
			select {
			case <-paired:
				return OutcomePaired, remaining
			default:
			}

			remaining--

			c.mu.Lock()
			c.attempt.Remaining = remaining
			c.mu.Unlock()
			c.notify()
		}
	}

	return OutcomeCancelled, remaining
}

// poll asks the base for the pairing status until it reports the request
// completed, then closes paired. The first status read happens one poll
// interval after the request is issued, giving the base time to register it.
func (c *Coordinator) poll(ctx context.Context, paired chan<- struct{}, logger *slog.Logger) {
	ticker := c.clock.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C():
			awaiting, err := c.base.PairStatus(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn(fmt.Sprintf("checking pair status: %s", err.Error()))
				}
				continue
			}
			if awaiting {
				continue
			}

			close(paired)

			c.mu.Lock()
			c.attempt.Awaiting = false
			c.mu.Unlock()
			return
		}
	}
}

func (c *Coordinator) finish(outcome Outcome) {
	c.mu.Lock()
	if outcome == OutcomePaired {
		c.attempt.State = StatePaired
	} else {
		c.attempt.State = StateCancelled
	}
	c.mu.Unlock()
	c.notify()

	c.mu.Lock()
	c.attempt = Attempt{State: StateIdle}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) notify() {
	if c.observer == nil {
		return
	}
	c.observer(c.Attempt())
}
