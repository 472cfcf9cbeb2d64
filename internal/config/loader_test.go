package config_test

import (
	"strings"
	"testing"

	"github.com/hlt-mt/smarterp/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name: "valid minimal",
			yaml: minimalYAML,
		},
		{
			name: "alignment disabled needs no oracle",
			yaml: `
worker:
  command: [st-server]
alignment:
  enabled: false
`,
		},
		{
			name:    "missing worker command",
			yaml:    "oracle:\n  urls: [\"http://kb/api/\"]\n",
			wantErr: []string{"worker.command"},
		},
		{
			name:    "missing oracle",
			yaml:    "worker:\n  command: [st]\n",
			wantErr: []string{"oracle.urls is required"},
		},
		{
			name: "bad log level",
			yaml: minimalYAML + `
server:
  log_level: loud
`,
			wantErr: []string{"server.log_level"},
		},
		{
			name: "window shorter than step",
			yaml: minimalYAML + `
audio:
  step_seconds: 3
  window_seconds: 2
`,
			wantErr: []string{"window seconds"},
		},
		{
			name: "bad audio format",
			yaml: minimalYAML + `
audio:
  sample_rate: 0
  frame_size: -1
`,
			wantErr: []string{"audio.sample_rate", "audio.frame_size"},
		},
		{
			name: "relative oracle url",
			yaml: `
worker:
  command: [st]
oracle:
  urls: ["kb/api"]
`,
			wantErr: []string{"oracle.urls[0]"},
		},
		{
			name: "thresholds out of range",
			yaml: minimalYAML + `
alignment:
  fuzzy_floor: 60
  term_threshold: -0.1
`,
			wantErr: []string{"alignment.fuzzy_floor", "alignment.term_threshold"},
		},
		{
			name: "incomplete tls",
			yaml: minimalYAML + `
server:
  tls:
    cert_file: /etc/ca.pem
`,
			wantErr: []string{"server.tls"},
		},
		{
			name: "warm-up without rounds",
			yaml: `
worker:
  command: [st]
  warmup_wav: w.wav
  warmup_rounds: 0
alignment:
  enabled: false
`,
			wantErr: []string{"worker.warmup_rounds"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %v, got nil", tt.wantErr)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace" should be invalid`)
	}
}
