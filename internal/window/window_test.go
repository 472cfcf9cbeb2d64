package window

import (
	"math"
	"math/rand"
	"testing"
)

const bps = 16000 * 2

func defaultParams() Params {
	return Params{
		StepSeconds:    DefaultStepSeconds,
		WindowSeconds:  DefaultWindowSeconds,
		BytesPerSecond: bps,
		FrameSize:      2,
	}
}

func mustNew(t *testing.T, p Params) *Buffer {
	t.Helper()
	b, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func seconds(s float64) []byte {
	return make([]byte, int(s*bps))
}

func isMultiple(v, step float64) bool {
	q := v / step
	return math.Abs(q-math.Round(q)) < 1e-9
}

func TestNew_InvalidParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		p    Params
	}{
		{"zero step", Params{StepSeconds: 0, WindowSeconds: 10, BytesPerSecond: bps}},
		{"window below step", Params{StepSeconds: 2, WindowSeconds: 1, BytesPerSecond: bps}},
		{"zero byte rate", Params{StepSeconds: 1.5, WindowSeconds: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.p); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestAppend_BelowStepResetsWatermark(t *testing.T) {
	t.Parallel()
	b := mustNew(t, defaultParams())

	if _, ok := b.Append(seconds(1)); ok {
		t.Fatal("unexpected emission below step size")
	}
	if b.LastSentEnd() != Unset {
		t.Errorf("LastSentEnd = %v, want %v", b.LastSentEnd(), Unset)
	}
}

func TestAppend_ExactlyOneStep(t *testing.T) {
	t.Parallel()
	b := mustNew(t, defaultParams())

	var emitted []Slice
	for range 3 {
		if s, ok := b.Append(seconds(0.5)); ok {
			emitted = append(emitted, s)
		}
	}

	if len(emitted) != 1 {
		t.Fatalf("emitted %d slices, want 1", len(emitted))
	}
	s := emitted[0]
	if s.Start != 0 || s.End != 1.5 {
		t.Errorf("slice = [%v, %v), want [0, 1.5)", s.Start, s.End)
	}
	if len(s.Data) != int(1.5*bps) {
		t.Errorf("slice bytes = %d, want %d", len(s.Data), int(1.5*bps))
	}
}

func TestAppend_WindowPlusStep(t *testing.T) {
	t.Parallel()
	b := mustNew(t, defaultParams())

	var last Slice
	var n int
	for range 23 { // 23 × 0.5s = 11.5s = window + step
		if s, ok := b.Append(seconds(0.5)); ok {
			last = s
			n++
		}
	}

	if n == 0 {
		t.Fatal("no slices emitted")
	}
	if last.End != 11.5 {
		t.Errorf("final end = %v, want 11.5", last.End)
	}
	if last.Start == 0 {
		t.Error("final slice starts at 0, want a sliding window")
	}
	if last.Duration() != DefaultWindowSeconds {
		t.Errorf("final duration = %v, want %v", last.Duration(), DefaultWindowSeconds)
	}
	if len(last.Data) != int(DefaultWindowSeconds*bps) {
		t.Errorf("final bytes = %d, want %d", len(last.Data), int(DefaultWindowSeconds*bps))
	}
}

func TestAppend_TwentyOneSecondChunks(t *testing.T) {
	t.Parallel()
	b := mustNew(t, defaultParams())

	var ends []float64
	for range 20 {
		if s, ok := b.Append(seconds(1)); ok {
			ends = append(ends, s.End)
		}
	}

	want := int(math.Floor(20 / 1.5))
	if len(ends) != want {
		t.Fatalf("emissions = %d, want %d (ends %v)", len(ends), want, ends)
	}
	for i := 1; i < len(ends); i++ {
		if ends[i] <= ends[i-1] {
			t.Errorf("ends not strictly increasing at %d: %v", i, ends)
		}
	}
}

func TestAppend_WatermarkProperty(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))

	for round := range 50 {
		p := defaultParams()
		b := mustNew(t, p)
		prev := Unset
		for range 200 {
			chunk := make([]byte, 2*rng.Intn(20000))
			s, ok := b.Append(chunk)
			wm := b.LastSentEnd()
			if wm < prev {
				t.Fatalf("round %d: watermark decreased from %v to %v", round, prev, wm)
			}
			if ok {
				if s.End <= prev {
					t.Fatalf("round %d: slice end %v not above prior watermark %v", round, s.End, prev)
				}
				if s.End <= 0 || !isMultiple(s.End, p.StepSeconds) {
					t.Fatalf("round %d: slice end %v is not a positive multiple of %v", round, s.End, p.StepSeconds)
				}
				if s.Duration() > p.WindowSeconds+1e-9 {
					t.Fatalf("round %d: slice duration %v exceeds window", round, s.Duration())
				}
			}
			prev = wm
		}
	}
}

func TestAppend_OversizedFirstChunkClampsStart(t *testing.T) {
	t.Parallel()
	b := mustNew(t, defaultParams())

	s, ok := b.Append(seconds(10))
	if !ok {
		t.Fatal("expected an emission")
	}
	if s.Start != 0 || s.End != 9 {
		t.Errorf("slice = [%v, %v), want [0, 9)", s.Start, s.End)
	}
	if len(s.Data) != 9*bps {
		t.Errorf("bytes = %d, want %d", len(s.Data), 9*bps)
	}
}

func TestFlush_EmitsTrailingAudioAndResets(t *testing.T) {
	t.Parallel()
	b := mustNew(t, defaultParams())

	// Drive the buffer to 3.0s (emitted), then add 0.5s... nothing new.
	b.Append(seconds(3))
	b.Append(seconds(0.5))
	if _, ok := b.Flush(); ok {
		t.Error("flush emitted although no new step boundary was crossed")
	}
	if b.Len() != 0 || b.LastSentEnd() != Unset {
		t.Errorf("after flush: len=%d watermark=%v, want empty/unset", b.Len(), b.LastSentEnd())
	}

	b.Append(seconds(1))
	if _, ok := b.Flush(); ok {
		t.Error("flush below one step should not emit")
	}
}

func TestSlice_IsCopy(t *testing.T) {
	t.Parallel()
	b := mustNew(t, defaultParams())

	chunk := seconds(1.5)
	s, ok := b.Append(chunk)
	if !ok {
		t.Fatal("expected emission")
	}
	b.Append([]byte{0xff, 0xff})
	s.Data[0] = 0x42
	if b.buf[0] == 0x42 {
		t.Error("slice data aliases the buffer")
	}
}
