package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hlt-mt/smarterp/internal/config"
	"github.com/hlt-mt/smarterp/internal/window"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  metrics_addr: ":9100"
  origin_patterns: ["*.example.org"]

audio:
  sample_rate: 16000
  frame_size: 2
  step_seconds: 2
  window_seconds: 8

worker:
  command: ["/opt/st/run.sh", "en-es"]
  artifact_dir: /var/lib/smarterp
  ready_timeout: 2m
  warmup_wav: ./warmupFile.wav
  warmup_seconds: 6
  warmup_rounds: 2
  save_audio: true

oracle:
  urls:
    - http://10.0.0.1/api/
    - http://10.0.0.2/api/
  timeout: 3s
  circuit_breaker:
    max_failures: 2
    reset_timeout: 1m
    half_open_max: 1

alignment:
  enabled: true
  convert_numerals: false
  terms_from_transcript_only: false
  fuzzy_floor: 0.7
  term_threshold: 0.85

store:
  postgres_dsn: "postgres://localhost/smarterp"
`

// minimalYAML is the smallest valid file.
const minimalYAML = `
worker:
  command: ["st-server"]
oracle:
  urls: ["http://kb.local/api/"]
`

func mustLoad(t *testing.T, y string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(y))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// envMap returns a lookup function over m, for [config.ApplyEnv].
func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.MetricsAddr != ":9100" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !slices.Equal(cfg.Server.OriginPatterns, []string{"*.example.org"}) {
		t.Errorf("origin_patterns = %v", cfg.Server.OriginPatterns)
	}
	if got, want := cfg.Audio.Params(), (window.Params{StepSeconds: 2, WindowSeconds: 8, BytesPerSecond: 32000, FrameSize: 2}); got != want {
		t.Errorf("audio params = %+v, want %+v", got, want)
	}
	if !slices.Equal(cfg.Worker.Command, []string{"/opt/st/run.sh", "en-es"}) {
		t.Errorf("worker.command = %v", cfg.Worker.Command)
	}
	if cfg.Worker.ReadyTimeout != 2*time.Minute || cfg.Worker.WarmupRounds != 2 || !cfg.Worker.SaveAudio {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if len(cfg.Oracle.URLs) != 2 || cfg.Oracle.Timeout != 3*time.Second {
		t.Errorf("oracle = %+v", cfg.Oracle)
	}
	cb := cfg.Oracle.CircuitBreaker.Resilience("kb")
	if cb.Name != "kb" || cb.MaxFailures != 2 || cb.ResetTimeout != time.Minute || cb.HalfOpenMax != 1 {
		t.Errorf("circuit breaker = %+v", cb)
	}
	if cfg.Alignment.ConvertNumerals || cfg.Alignment.TermsFromTranscriptOnly || cfg.Alignment.FuzzyFloor != 0.7 {
		t.Errorf("alignment = %+v", cfg.Alignment)
	}
	if cfg.Store.PostgresDSN == "" {
		t.Error("store.postgres_dsn not loaded")
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, minimalYAML)

	if cfg.Server.ListenAddr != ":8765" || cfg.Server.LogLevel != config.LogInfo || cfg.Server.TLS != nil {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Audio.StepSeconds != 1.5 || cfg.Audio.WindowSeconds != 10 || cfg.Audio.SampleRate != 16000 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Worker.WarmupSeconds != 12 || cfg.Worker.WarmupRounds != 3 {
		t.Errorf("worker warm-up = %v s x %d", cfg.Worker.WarmupSeconds, cfg.Worker.WarmupRounds)
	}
	a := cfg.Alignment
	if !a.Enabled || !a.ConvertNumerals || !a.TermsFromTranscriptOnly || a.FuzzyFloor != 0.6 || a.TermThreshold != 0.8 {
		t.Errorf("alignment = %+v", a)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + "\nnpcs: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, cfg *config.Config)
		wantErr bool
	}{
		{
			name: "linked data ip replaces primary",
			env:  map[string]string{config.EnvLinkedDataIP: "3.121.98.219"},
			check: func(t *testing.T, cfg *config.Config) {
				want := []string{"http://3.121.98.219/api/", "http://10.0.0.2/api/"}
				if !slices.Equal(cfg.Oracle.URLs, want) {
					t.Errorf("urls = %v, want %v", cfg.Oracle.URLs, want)
				}
			},
		},
		{
			name: "flags disable",
			env:  map[string]string{config.EnvTermsTranscriptOnly: "0", config.EnvConvertNumerals: "0"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Alignment.TermsFromTranscriptOnly || cfg.Alignment.ConvertNumerals {
					t.Errorf("alignment = %+v", cfg.Alignment)
				}
			},
		},
		{
			name: "flags enable",
			env:  map[string]string{config.EnvTermsTranscriptOnly: " 1 ", config.EnvConvertNumerals: "1"},
			check: func(t *testing.T, cfg *config.Config) {
				if !cfg.Alignment.TermsFromTranscriptOnly || !cfg.Alignment.ConvertNumerals {
					t.Errorf("alignment = %+v", cfg.Alignment)
				}
			},
		},
		{
			name: "credential home enables tls",
			env:  map[string]string{config.EnvCredentialHome: "/etc/smarterp"},
			check: func(t *testing.T, cfg *config.Config) {
				tls := cfg.Server.TLS
				if tls == nil || tls.CertFile != "/etc/smarterp/ca.pem" || tls.KeyFile != "/etc/smarterp/privatekey.pem" {
					t.Errorf("tls = %+v", tls)
				}
			},
		},
		{
			name:    "non-integer flag",
			env:     map[string]string{config.EnvConvertNumerals: "yes"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Oracle.URLs = []string{"http://10.0.0.1/api/", "http://10.0.0.2/api/"}
			cfg.Alignment.TermsFromTranscriptOnly = false
			cfg.Alignment.ConvertNumerals = false
			if tt.name == "flags disable" {
				cfg.Alignment.TermsFromTranscriptOnly = true
				cfg.Alignment.ConvertNumerals = true
			}

			err := config.ApplyEnv(cfg, envMap(tt.env))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnv err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// LoadFromReader reads the process environment, so this test cannot run in
// parallel.
func TestLoadFromReader_EnvSatisfiesOracle(t *testing.T) {
	t.Setenv(config.EnvLinkedDataIP, "192.0.2.7")
	cfg := mustLoad(t, "worker:\n  command: [st-server]\n")
	if !slices.Equal(cfg.Oracle.URLs, []string{"http://192.0.2.7/api/"}) {
		t.Errorf("urls = %v", cfg.Oracle.URLs)
	}
}
