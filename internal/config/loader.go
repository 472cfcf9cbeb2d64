package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. They follow the
// deployment conventions of the translation service.
const (
	EnvLinkedDataIP        = "LINKEDDATA_IP"
	EnvTermsTranscriptOnly = "EXTRACT_TERMS_FROM_TRANSCRIPT"
	EnvConvertNumerals     = "CONVERT_ALPHA2DIGITS"
	EnvCredentialHome      = "CREDENTIAL_HOME"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// the environment overrides and validates the result. An empty document
// yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// ApplyEnv overlays the environment variables read through lookup onto cfg.
//
//   - LINKEDDATA_IP replaces the primary oracle URL with http://<ip>/api/.
//   - EXTRACT_TERMS_FROM_TRANSCRIPT and CONVERT_ALPHA2DIGITS are "1" to
//     enable and any other integer to disable.
//   - CREDENTIAL_HOME enables TLS with <dir>/ca.pem and <dir>/privatekey.pem.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	if ip, ok := lookup(EnvLinkedDataIP); ok && ip != "" {
		primary := "http://" + ip + "/api/"
		if len(cfg.Oracle.URLs) == 0 {
			cfg.Oracle.URLs = []string{primary}
		} else {
			cfg.Oracle.URLs[0] = primary
		}
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{EnvTermsTranscriptOnly, &cfg.Alignment.TermsFromTranscriptOnly},
		{EnvConvertNumerals, &cfg.Alignment.ConvertNumerals},
	}
	for _, f := range flags {
		v, ok := lookup(f.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q is not an integer", f.name, v))
			continue
		}
		*f.dst = n == 1
	}

	if dir, ok := lookup(EnvCredentialHome); ok && dir != "" {
		cfg.Server.TLS = &TLSConfig{
			CertFile: filepath.Join(dir, "ca.pem"),
			KeyFile:  filepath.Join(dir, "privatekey.pem"),
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if err := cfg.Audio.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}

	// Worker
	if len(cfg.Worker.Command) == 0 {
		errs = append(errs, errors.New("worker.command is required"))
	}
	if cfg.Worker.WarmupWAV != "" && cfg.Worker.WarmupRounds <= 0 {
		errs = append(errs, fmt.Errorf("worker.warmup_rounds %d must be positive when warmup_wav is set", cfg.Worker.WarmupRounds))
	}

	// Oracle
	if cfg.Alignment.Enabled && len(cfg.Oracle.URLs) == 0 {
		errs = append(errs, fmt.Errorf("oracle.urls is required when alignment is enabled (or set %s)", EnvLinkedDataIP))
	}
	for i, raw := range cfg.Oracle.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("oracle.urls[%d] %q is not an absolute URL", i, raw))
		}
	}
	if cfg.Oracle.Timeout < 0 {
		errs = append(errs, fmt.Errorf("oracle.timeout %s must not be negative", cfg.Oracle.Timeout))
	}

	// Alignment
	if f := cfg.Alignment.FuzzyFloor; f < 0 || f > 1 {
		errs = append(errs, fmt.Errorf("alignment.fuzzy_floor %.2f is out of range [0, 1]", f))
	}
	if th := cfg.Alignment.TermThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("alignment.term_threshold %.2f is out of range [0, 1]", th))
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		slog.Debug("store.postgres_dsn is empty; processed windows will not be recorded")
	}

	return errors.Join(errs...)
}
