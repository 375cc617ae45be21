package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeslice  = 5 * time.Second
	DefaultSampleRate = 16000
)

// Config tunes a capture
type Config struct {
	Timeslice  time.Duration
	SampleRate int
}

// Capturer reads mixed PCM continuously and, every timeslice, hands at
// most one timeslice of audio to the sink as a WAV chunk. Audio read
// faster than real time (a file) waits in the buffer for later ticks.
// Sends run in their own goroutines and may overlap.
type Capturer struct {
	mixer  *Mixer
	sink   Sink
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	pending []int16

	inflight sync.WaitGroup
}

// NewCapturer creates a capturer. It owns mixer and closes it when Run returns.
func NewCapturer(mixer *Mixer, sink Sink, cfg Config, logger zerolog.Logger) *Capturer {
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = DefaultTimeslice
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	return &Capturer{
		mixer:  mixer,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With().Str("component", "capturer").Logger(),
	}
}

// Run captures until ctx is cancelled or every source is exhausted. Chunks
// already handed to the sink are allowed to finish before Run returns.
func (c *Capturer) Run(ctx context.Context) error {
	defer c.inflight.Wait()
	defer func() {
		if err := c.mixer.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to close sources")
		}
	}()

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(ctx)
	}()

	ticker := time.NewTicker(c.cfg.Timeslice)
	defer ticker.Stop()

	c.logger.Info().
		Dur("timeslice", c.cfg.Timeslice).
		Int("sample_rate", c.cfg.SampleRate).
		Msg("capture started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("capture stopped")
			return nil

		case <-ticker.C:
			c.flush(ctx, false)

		case err := <-readErr:
			c.flush(ctx, true)
			if errors.Is(err, io.EOF) {
				c.logger.Info().Msg("sources exhausted, capture finished")
				return nil
			}
			return fmt.Errorf("capture audio: %w", err)
		}
	}
}

// readLoop moves mixed samples into the pending buffer in 100ms windows
func (c *Capturer) readLoop(ctx context.Context) error {
	window := c.cfg.SampleRate / 10
	if window == 0 {
		window = 1
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		samples, err := c.mixer.Read(window)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.pending = append(c.pending, samples...)
		c.mu.Unlock()
	}
}

// windowSamples is the number of samples in one timeslice
func (c *Capturer) windowSamples() int {
	n := int(int64(c.cfg.SampleRate) * int64(c.cfg.Timeslice) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return n
}

// flush sends one timeslice of pending samples without waiting for the
// result. With drain set, everything pending goes out as consecutive
// timeslice chunks, sent in order.
func (c *Capturer) flush(ctx context.Context, drain bool) {
	window := c.windowSamples()

	c.mu.Lock()
	var chunks [][]byte
	for len(c.pending) > 0 {
		n := min(window, len(c.pending))
		chunks = append(chunks, EncodeWAV(c.pending[:n], c.cfg.SampleRate))
		c.pending = c.pending[n:]
		if !drain {
			break
		}
	}
	if len(c.pending) == 0 {
		c.pending = nil
	}
	c.mu.Unlock()

	if len(chunks) == 0 {
		return
	}

	// a stopped capture does not cancel chunks already on their way
	sendCtx := context.WithoutCancel(ctx)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		for _, chunk := range chunks {
			if err := c.sink.Send(sendCtx, chunk); err != nil {
				c.logger.Warn().Err(err).Int("bytes", len(chunk)).Msg("failed to send chunk")
			}
		}
	}()
}
