package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/cadence/internal/scoring"
)

// ValidProviderNames lists the speech recognition providers that ship with
// cadence. Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"deepgram", "whisper"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v is outside [0, 1]", r))
	}

	// Engine
	e := cfg.Engine
	if e.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("engine.tick_interval %v must not be negative", e.TickInterval))
	}
	if e.LookaheadBeats < 0 {
		errs = append(errs, fmt.Errorf("engine.lookahead_beats %.2f must not be negative", e.LookaheadBeats))
	}
	if e.GraceBeats < 0 {
		errs = append(errs, fmt.Errorf("engine.grace_beats %.2f must not be negative", e.GraceBeats))
	}
	if e.EventQueueSize < 0 {
		errs = append(errs, fmt.Errorf("engine.event_queue_size %d must not be negative", e.EventQueueSize))
	}
	if e.RestartBackoff < 0 || e.MaxRestartBackoff < 0 {
		errs = append(errs, errors.New("engine.restart_backoff and engine.max_restart_backoff must not be negative"))
	}
	if e.MaxRestartBackoff > 0 && e.MaxRestartBackoff < e.RestartBackoff {
		errs = append(errs, fmt.Errorf("engine.max_restart_backoff %v is below engine.restart_backoff %v", e.MaxRestartBackoff, e.RestartBackoff))
	}
	if e.MatchPolicy != "" && !e.MatchPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("engine.match_policy %q is invalid; valid values: substring, phonetic", e.MatchPolicy))
	}

	// Scoring overrides are validated after defaults fill the gaps.
	if _, err := scoring.New(cfg.Scoring.Config()); err != nil {
		errs = append(errs, err)
	}

	// STT
	validateProviderName(cfg.STT.Name)
	if cfg.STT.Name != "" && cfg.STT.APIKey == "" && cfg.STT.BaseURL == "" {
		slog.Warn("stt provider configured without api_key or base_url", "name", cfg.STT.Name)
	}

	for i, fb := range cfg.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName(fb.Name)
	}
	if len(cfg.STTFallbacks) > 0 && cfg.STT.Name == "" {
		errs = append(errs, errors.New("stt_fallbacks requires a primary stt provider"))
	}
	if cfg.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures %d must not be negative", cfg.Breaker.MaxFailures))
	}
	if cfg.Breaker.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("breaker.cooldown %v must not be negative", cfg.Breaker.Cooldown))
	}

	// Store
	if cfg.Store.PostgresDSN == "" {
		slog.Debug("store.postgres_dsn is empty; results are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown stt provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
