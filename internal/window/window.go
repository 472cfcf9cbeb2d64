// Package window implements the sliding-window decision engine that turns a
// stream of PCM chunks into the audio slices submitted for translation.
//
// A [Buffer] accumulates audio and, after every chunk, decides whether a new
// slice should be emitted. Slice end boundaries are always whole multiples of
// the step size and strictly increase between emissions (the watermark).
// Until a full window of audio is available every slice starts at 0; after
// that each slice covers exactly the most recent window ending at the step
// boundary.
//
// Each emission is a fresh, stateless re-transcription of the window: no
// decoder state is carried between slices.
package window

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Unset is the watermark value before any slice has been emitted.
const Unset = -1.0

const (
	DefaultStepSeconds   = 1.5
	DefaultWindowSeconds = 10.0
)

// Params configures a [Buffer].
type Params struct {
	// StepSeconds is the atomic audio unit. Slice ends are multiples of it.
	StepSeconds float64

	// WindowSeconds is the maximum slice length.
	WindowSeconds float64

	// BytesPerSecond is sample rate × frame size (e.g. 16000 × 2).
	BytesPerSecond int

	// FrameSize is the byte size of one PCM frame. Slice offsets are rounded
	// down to a frame boundary. Zero means 1.
	FrameSize int
}

// Validate reports whether p can drive a [Buffer].
func (p Params) Validate() error {
	var errs []error
	if p.StepSeconds <= 0 {
		errs = append(errs, fmt.Errorf("step seconds %.3f must be positive", p.StepSeconds))
	}
	if p.WindowSeconds < p.StepSeconds {
		errs = append(errs, fmt.Errorf("window seconds %.3f must be >= step seconds %.3f", p.WindowSeconds, p.StepSeconds))
	}
	if p.BytesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("bytes per second %d must be positive", p.BytesPerSecond))
	}
	return errors.Join(errs...)
}

// Slice is an immutable range of buffered audio. Start and End are in seconds
// from the beginning of the session.
type Slice struct {
	Start float64
	End   float64
	Data  []byte
}

// Duration returns the slice length in seconds.
func (s Slice) Duration() float64 { return s.End - s.Start }

// Buffer accumulates session audio and decides when to emit slices.
//
// A Buffer is not safe for concurrent use; it is owned by a single session's
// inbound-chunk handler.
type Buffer struct {
	params Params
	frame  int

	buf         []byte
	lastSentEnd float64
}

// New returns an empty Buffer. It returns an error when params is invalid.
func New(params Params) (*Buffer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	frame := params.FrameSize
	if frame <= 0 {
		frame = 1
	}
	return &Buffer{params: params, frame: frame, lastSentEnd: Unset}, nil
}

// Params returns the parameters the Buffer was created with.
func (b *Buffer) Params() Params { return b.params }

// TotalSeconds returns the amount of audio accumulated so far.
func (b *Buffer) TotalSeconds() float64 {
	return float64(len(b.buf)) / float64(b.params.BytesPerSecond)
}

// LastSentEnd returns the watermark, or [Unset].
func (b *Buffer) LastSentEnd() float64 { return b.lastSentEnd }

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return len(b.buf) }

// Append adds chunk to the buffer and evaluates the emit decision. ok is
// false when no slice is due.
func (b *Buffer) Append(chunk []byte) (s Slice, ok bool) {
	b.buf = append(b.buf, chunk...)
	return b.decide()
}

// Flush evaluates the emit decision one last time, so trailing audio that has
// crossed a step boundary is not lost, and then resets the buffer.
func (b *Buffer) Flush() (s Slice, ok bool) {
	s, ok = b.decide()
	b.Reset()
	return s, ok
}

// Reset discards all audio and clears the watermark.
func (b *Buffer) Reset() {
	b.buf = nil
	b.lastSentEnd = Unset
}

func (b *Buffer) decide() (Slice, bool) {
	total := b.TotalSeconds()
	step := b.params.StepSeconds
	win := b.params.WindowSeconds

	if total < step {
		slog.Debug("window: not enough audio", "total", total)
		b.lastSentEnd = Unset
		return Slice{}, false
	}

	end := math.Floor(total/step) * step
	if end <= b.lastSentEnd {
		slog.Debug("window: step already sent", "total", total, "end", end)
		return Slice{}, false
	}

	start := 0.0
	if total >= win {
		start = end - win
		if start < 0 {
			// A single chunk longer than the window arrived before any
			// emission; there is no audio before 0.
			start = 0
		}
	}
	b.lastSentEnd = end

	from := b.offset(start)
	to := b.offset(end)
	if total >= win && start > 0 {
		to = from + b.offset(win)
	}
	if to > len(b.buf) {
		to = len(b.buf)
	}

	data := make([]byte, to-from)
	copy(data, b.buf[from:to])

	slog.Debug("window: emitting slice", "start", start, "end", end, "bytes", len(data), "buffered", len(b.buf))
	return Slice{Start: start, End: end, Data: data}, true
}

// offset converts seconds to a frame-aligned byte offset.
func (b *Buffer) offset(sec float64) int {
	n := int(sec * float64(b.params.BytesPerSecond))
	return n - n%b.frame
}
