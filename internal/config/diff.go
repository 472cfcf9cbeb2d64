package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only the log level and the window parameters are applied without a
// restart; every other change is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AudioChanged is true when the step or window length changed. New
	// values only affect sessions started afterwards.
	AudioChanged bool
	NewAudio     AudioConfig

	// RestartRequired names the sections whose changes are ignored until the
	// process restarts.
	RestartRequired []string
}

// Changed reports whether d carries any difference.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.AudioChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Audio.StepSeconds != new.Audio.StepSeconds || old.Audio.WindowSeconds != new.Audio.WindowSeconds {
		d.AudioChanged = true
		d.NewAudio = new.Audio
	}
	if old.Audio.SampleRate != new.Audio.SampleRate || old.Audio.FrameSize != new.Audio.FrameSize {
		d.RestartRequired = append(d.RestartRequired, "audio.format")
	}

	if !serverEqual(old.Server, new.Server) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !workerEqual(old.Worker, new.Worker) {
		d.RestartRequired = append(d.RestartRequired, "worker")
	}
	if !oracleEqual(old.Oracle, new.Oracle) {
		d.RestartRequired = append(d.RestartRequired, "oracle")
	}
	if old.Alignment != new.Alignment {
		d.RestartRequired = append(d.RestartRequired, "alignment")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}

	return d
}

// serverEqual ignores the log level, which is hot-reloadable.
func serverEqual(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.MetricsAddr != b.MetricsAddr {
		return false
	}
	if (a.TLS == nil) != (b.TLS == nil) || (a.TLS != nil && *a.TLS != *b.TLS) {
		return false
	}
	return slices.Equal(a.OriginPatterns, b.OriginPatterns)
}

func workerEqual(a, b WorkerConfig) bool {
	return slices.Equal(a.Command, b.Command) &&
		a.ArtifactDir == b.ArtifactDir &&
		a.ReadyTimeout == b.ReadyTimeout &&
		a.WarmupWAV == b.WarmupWAV &&
		a.WarmupSeconds == b.WarmupSeconds &&
		a.WarmupRounds == b.WarmupRounds &&
		a.SaveAudio == b.SaveAudio
}

func oracleEqual(a, b OracleConfig) bool {
	return slices.Equal(a.URLs, b.URLs) && a.Timeout == b.Timeout && a.CircuitBreaker == b.CircuitBreaker
}
