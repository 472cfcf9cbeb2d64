package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hlt-mt/smarterp/internal/window"
	"github.com/hlt-mt/smarterp/pkg/wav"
)

// WarmupConfig describes the warm-up run issued before the server accepts
// clients. The first requests after model load are much slower than steady
// state, so they are spent on a known recording instead of a live session.
type WarmupConfig struct {
	// WavPath is the recording to submit. Both the plain and the LIST header
	// layouts are accepted.
	WavPath string

	// Seconds caps the submitted audio. Default: 12.
	Seconds float64

	// Rounds is the number of submissions. Default: 3.
	Rounds int

	// SrcLang and TgtLang default to "en" and "es".
	SrcLang string
	TgtLang string
}

// Warmup submits the beginning of cfg.WavPath cfg.Rounds times without a
// dictionary. Results are discarded; the first error aborts the warm-up.
func Warmup(ctx context.Context, b *Bridge, cfg WarmupConfig) error {
	if cfg.Seconds <= 0 {
		cfg.Seconds = 12
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = 3
	}
	if cfg.SrcLang == "" {
		cfg.SrcLang = "en"
	}
	if cfg.TgtLang == "" {
		cfg.TgtLang = "es"
	}

	file, err := os.ReadFile(cfg.WavPath)
	if err != nil {
		return fmt.Errorf("worker: read warm-up file: %w", err)
	}
	pcm, err := wav.PCM(file)
	if err != nil {
		return fmt.Errorf("worker: warm-up file %s: %w", cfg.WavPath, err)
	}

	bps := b.format.BytesPerSecond()
	n := min(int(cfg.Seconds*float64(bps)), len(pcm))
	slice := window.Slice{Start: 0, End: float64(n) / float64(bps), Data: pcm[:n]}

	start := time.Now()
	for i := range cfg.Rounds {
		if _, err := b.Submit(ctx, slice, cfg.SrcLang, cfg.TgtLang, ""); err != nil {
			return fmt.Errorf("worker: warm-up round %d: %w", i+1, err)
		}
	}
	slog.Info("worker warm-up complete", "rounds", cfg.Rounds, "audio_seconds", slice.End, "elapsed", time.Since(start))
	return nil
}
