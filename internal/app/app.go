// Package app wires the cadence subsystems together.
//
// An [App] owns the song library, the result store, the scorer and the
// optional speech-to-text provider. It hands out ready-to-run engines for
// individual practice sessions and persists their summaries.
//
// Typical lifecycle:
//
//	a, err := app.New(ctx, cfg, provider)
//	sum, err := a.Play(ctx, "happy_vibes", src)
//	err = a.Shutdown(ctx)
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/scoring"
	"github.com/MrWong99/cadence/internal/session"
	"github.com/MrWong99/cadence/internal/store"
	"github.com/MrWong99/cadence/internal/store/postgres"
	"github.com/MrWong99/cadence/internal/transcript"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/song"
)

var (
	// ErrUnknownSong is returned for a song id missing from the library.
	ErrUnknownSong = errors.New("app: unknown song")

	// ErrSongLocked is returned when the prerequisite song has not been cleared.
	ErrSongLocked = errors.New("app: song locked")

	// ErrNoSTT is returned by [App.STTSource] when no provider is configured.
	ErrNoSTT = errors.New("app: no speech-to-text provider configured")
)

// Speech-to-text stream defaults used when the provider options are silent.
const (
	defaultSampleRate   = 16000
	defaultLanguage     = "en"
	defaultAlternatives = 3
	keywordBoost        = 2.0
)

// Listing is one library entry as presented to the player.
type Listing struct {
	Song *song.Song

	// Locked is true while the song's UnlockedBy prerequisite is uncleared.
	Locked bool

	// Best is the best recorded result. Valid only when HasBest is true.
	Best    store.Best
	HasBest bool
}

// App owns all subsystems and manages their lifecycle.
type App struct {
	cfg     *config.Config
	stt     stt.Provider
	library *song.Library
	store   store.Store
	metrics *observe.Metrics
	scorer  *scoring.Scorer

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithStore overrides the result store. When unset, New connects to
// PostgreSQL if a DSN is configured and falls back to an in-memory store.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLibrary overrides the song library.
func WithLibrary(l *song.Library) Option {
	return func(a *App) { a.library = l }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from cfg. provider may be nil when sessions are fed by
// a non-speech source.
func New(ctx context.Context, cfg *config.Config, provider stt.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		stt: provider,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	scorer, err := scoring.New(cfg.Scoring.Config())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.scorer = scorer

	if err := a.initLibrary(); err != nil {
		return nil, err
	}
	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// initLibrary loads the built-in songs and any configured song file.
func (a *App) initLibrary() error {
	if a.library == nil {
		a.library = song.Default()
	}
	if a.cfg.Songs.File == "" {
		return nil
	}
	songs, err := song.LoadFile(a.cfg.Songs.File)
	if err != nil {
		return fmt.Errorf("app: load songs: %w", err)
	}
	var errs []error
	for _, s := range songs {
		if err := a.library.Add(s); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: add songs from %s: %w", a.cfg.Songs.File, err)
	}
	slog.Info("songs loaded", "file", a.cfg.Songs.File, "count", len(songs))
	return nil
}

// initStore connects the result store.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.Store.PostgresDSN == "" {
		slog.Info("no postgres dsn configured, results are kept in memory")
		a.store = store.NewMemStore()
		return nil
	}
	pg, err := postgres.NewStore(ctx, a.cfg.Store.PostgresDSN, postgres.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("app: connect store: %w", err)
	}
	a.store = pg
	a.closers = append(a.closers, func() error { pg.Close(); return nil })
	return nil
}

// Library returns the song library.
func (a *App) Library() *song.Library { return a.library }

// Store returns the result store.
func (a *App) Store() store.Store { return a.store }

// Songs lists the library in order with lock state and best results.
func (a *App) Songs(ctx context.Context) ([]Listing, error) {
	cleared, err := a.store.ClearedSongs(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list cleared songs: %w", err)
	}
	bests, err := a.store.BestScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list best scores: %w", err)
	}

	all := a.library.All()
	out := make([]Listing, 0, len(all))
	for _, s := range all {
		b, ok := bests[s.ID]
		out = append(out, Listing{
			Song:    s,
			Locked:  s.UnlockedBy != "" && !slices.Contains(cleared, s.UnlockedBy),
			Best:    b,
			HasBest: ok,
		})
	}
	return out, nil
}

// EngineOptions translates the engine configuration into engine options.
// Zero values keep the engine defaults.
func (a *App) EngineOptions() ([]engine.Option, error) {
	ec := a.cfg.Engine
	policy, err := engine.ParseMatchPolicy(string(ec.MatchPolicy))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	opts := []engine.Option{
		engine.WithScorer(a.scorer),
		engine.WithMatchPolicy(policy),
		engine.WithMetrics(a.metrics),
	}
	if ec.TickInterval > 0 {
		opts = append(opts, engine.WithTickInterval(ec.TickInterval))
	}
	if ec.LookaheadBeats > 0 {
		opts = append(opts, engine.WithLookahead(ec.LookaheadBeats))
	}
	if ec.GraceBeats > 0 {
		opts = append(opts, engine.WithGrace(ec.GraceBeats))
	}
	if ec.EventQueueSize > 0 {
		opts = append(opts, engine.WithEventQueueSize(ec.EventQueueSize))
	}
	if ec.RestartBackoff > 0 || ec.MaxRestartBackoff > 0 {
		opts = append(opts, engine.WithRestartBackoff(ec.RestartBackoff, ec.MaxRestartBackoff))
	}
	return opts, nil
}

// NewSession returns an idle engine for songID fed by src. Options in opts
// are applied after the configured ones.
func (a *App) NewSession(ctx context.Context, songID string, src transcript.Source, opts ...engine.Option) (*engine.Engine, error) {
	s, ok := a.library.Get(songID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSong, songID)
	}
	if s.UnlockedBy != "" {
		cleared, err := a.store.ClearedSongs(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: list cleared songs: %w", err)
		}
		if !slices.Contains(cleared, s.UnlockedBy) {
			return nil, fmt.Errorf("%w: %q requires %q", ErrSongLocked, songID, s.UnlockedBy)
		}
	}

	base, err := a.EngineOptions()
	if err != nil {
		return nil, err
	}
	if src != nil {
		base = append(base, engine.WithSource(src))
	}
	return engine.New(s, append(base, opts...)...)
}

// Play runs one session to completion and persists its summary. An aborted
// session is returned with [engine.ErrAborted] and is not stored.
func (a *App) Play(ctx context.Context, songID string, src transcript.Source, opts ...engine.Option) (session.Summary, error) {
	eng, err := a.NewSession(ctx, songID, src, opts...)
	if err != nil {
		return session.Summary{}, err
	}
	sum, err := eng.Run(ctx)
	if err != nil {
		return sum, err
	}

	// The session ended on its own; persist even if ctx is cancelled now.
	saveCtx := context.WithoutCancel(ctx)
	if err := a.store.SaveSession(saveCtx, sum); err != nil {
		return sum, fmt.Errorf("app: save session %s: %w", sum.SessionID, err)
	}
	return sum, nil
}

// STTSource builds a transcript source that streams audio to the configured
// provider, biased towards the words of s.
func (a *App) STTSource(audio <-chan []byte, s *song.Song) (*transcript.STTSource, error) {
	if a.stt == nil {
		return nil, ErrNoSTT
	}
	po := a.cfg.STT.Options

	cfg := stt.StreamConfig{
		SampleRate:   defaultSampleRate,
		Channels:     1,
		Language:     defaultLanguage,
		Alternatives: defaultAlternatives,
	}
	if v, ok := config.OptInt(po, "sample_rate"); ok && v > 0 {
		cfg.SampleRate = v
	}
	if v := config.OptString(po, "language"); v != "" {
		cfg.Language = v
	}
	if v, ok := config.OptInt(po, "alternatives"); ok && v > 0 {
		cfg.Alternatives = v
	}
	if s != nil {
		seen := make(map[string]struct{}, len(s.Notes))
		for _, w := range s.Words() {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: w, Boost: keywordBoost})
		}
	}
	return &transcript.STTSource{
		Provider: a.stt,
		Config:   cfg,
		Audio:    audio,
	}, nil
}

// Checkers returns readiness checks for the observability endpoint.
func (a *App) Checkers() []observe.Checker {
	return []observe.Checker{
		{Name: "store", Check: a.store.Ping},
	}
}

// Shutdown releases resources. It is safe to call more than once; only the
// first call has any effect.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
