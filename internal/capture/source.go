package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// OpenSource opens a stream of 16-bit little-endian mono PCM. path may be a
// regular file, a named pipe fed by a recorder, or "-" for stdin.
func OpenSource(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	return f, nil
}

// Mixer merges two PCM sources (system audio and microphone) into one
// mono stream. When one source ends the other continues alone.
type Mixer struct {
	sources []*pcmSource
}

type pcmSource struct {
	r    io.ReadCloser
	buf  []byte
	done bool
}

// NewMixer creates a mixer over the given sources; nil sources are skipped
func NewMixer(sources ...io.ReadCloser) *Mixer {
	m := &Mixer{}
	for _, r := range sources {
		if r != nil {
			m.sources = append(m.sources, &pcmSource{r: r})
		}
	}
	return m
}

// Read returns the next window of up to n mixed samples. It returns io.EOF
// once every source is exhausted.
func (m *Mixer) Read(n int) ([]int16, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid window of %d samples", n)
	}

	var mixed []int32
	for _, s := range m.sources {
		if s.done {
			continue
		}
		samples, err := s.read(n)
		if err != nil {
			return nil, err
		}
		for i, v := range samples {
			if i >= len(mixed) {
				mixed = append(mixed, 0)
			}
			mixed[i] += int32(v)
		}
	}

	if len(mixed) == 0 {
		return nil, io.EOF
	}

	out := make([]int16, len(mixed))
	for i, v := range mixed {
		out[i] = saturate(v)
	}
	return out, nil
}

// Close releases every source
func (m *Mixer) Close() error {
	var errs []error
	for _, s := range m.sources {
		if err := s.r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// read returns up to n samples. A short read marks the source done.
func (s *pcmSource) read(n int) ([]int16, error) {
	if cap(s.buf) < n*2 {
		s.buf = make([]byte, n*2)
	}
	buf := s.buf[:n*2]

	read, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	default:
		return nil, fmt.Errorf("read source: %w", err)
	}

	samples := make([]int16, read/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return samples, nil
}

func saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
