// Command cadence runs a rhythm-synchronized pronunciation practice session
// in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/cadence/internal/app"
	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/resilience"
	"github.com/MrWong99/cadence/internal/session"
	"github.com/MrWong99/cadence/internal/transcript"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/provider/stt/deepgram"
	"github.com/MrWong99/cadence/pkg/provider/stt/whisper"
	"github.com/MrWong99/cadence/pkg/song"
)

// pcmFrame is the audio pacing interval for -audio playback.
const pcmFrame = 20 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	songID := flag.String("song", "happy_vibes", "id of the song to play")
	list := flag.Bool("list", false, "list songs and exit")
	history := flag.Int("history", 0, "print the N most recent sessions of -song and exit")
	audioPath := flag.String("audio", "", "WAV or raw 16-bit mono PCM file streamed to the stt provider instead of reading text from stdin")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:      "cadence",
		MatchPolicy:      string(cfg.Engine.MatchPolicy),
		STTProvider:      cfg.STT.Name,
		TraceSampleRatio: cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildSTT(cfg, reg)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, provider)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if cfg.Server.ListenAddr != "" {
		mux := observe.NewMux(observe.DefaultMetrics(), application.Checkers()...)
		go func() {
			if err := observe.Serve(ctx, cfg.Server.ListenAddr, mux); err != nil {
				slog.Error("observability server error", "err", err)
			}
		}()
	}

	switch {
	case *list:
		return listSongs(ctx, application)
	case *history > 0:
		return printHistory(ctx, application, *songID, *history)
	}
	return play(ctx, application, cfg, *songID, *audioPath)
}

// loadConfig reads path, or returns the validated defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", path)
		}
		return cfg, err
	}
	cfg := &config.Config{}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ── Commands ──────────────────────────────────────────────────────────────────

func listSongs(ctx context.Context, a *app.App) int {
	listings, err := a.Songs(ctx)
	if err != nil {
		slog.Error("failed to list songs", "err", err)
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tSTARS\tBPM\tNOTES\tBEST\tSTATUS")
	for _, l := range listings {
		best := "-"
		if l.HasBest {
			best = fmt.Sprintf("%d (%s)", l.Best.Score, l.Best.Grade)
		}
		status := "open"
		if l.Locked {
			status = "locked by " + l.Song.UnlockedBy
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%d\t%s\t%s\n",
			l.Song.ID, l.Song.Title, l.Song.Category, strings.Repeat("*", l.Song.Stars),
			l.Song.BPM, len(l.Song.Notes), best, status)
	}
	if err := w.Flush(); err != nil {
		slog.Error("failed to write listing", "err", err)
		return 1
	}
	return 0
}

func printHistory(ctx context.Context, a *app.App, songID string, n int) int {
	sums, err := a.Store().RecentSessions(ctx, songID, n)
	if err != nil {
		slog.Error("failed to read history", "song_id", songID, "err", err)
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENDED\tSCORE\tGRADE\tACCURACY\tMAX COMBO\tSESSION")
	for _, s := range sums {
		fmt.Fprintf(w, "%s\t%d\t%s\t%.1f%%\t%d\t%s\n",
			s.EndedAt.Local().Format(time.DateTime), s.Score, s.Grade, s.Accuracy, s.MaxCombo, s.SessionID)
	}
	if err := w.Flush(); err != nil {
		slog.Error("failed to write history", "err", err)
		return 1
	}
	return 0
}

func play(ctx context.Context, a *app.App, cfg *config.Config, songID, audioPath string) int {
	s, ok := a.Library().Get(songID)
	if !ok {
		slog.Error("unknown song", "song_id", songID)
		return 1
	}

	var src transcript.Source
	if audioPath != "" {
		target := audio.Speech
		if v, ok := config.OptInt(cfg.STT.Options, "sample_rate"); ok && v > 0 {
			target.SampleRate = v
		}
		pcm, err := audio.ReadFile(audioPath, target, target)
		if err != nil {
			slog.Error("failed to read audio", "path", audioPath, "err", err)
			return 1
		}
		slog.Debug("audio loaded", "path", audioPath, "format", target.String(), "duration", target.Duration(len(pcm)))
		sttSrc, err := a.STTSource(audio.Pace(ctx, pcm, target, pcmFrame, nil), s)
		if err != nil {
			slog.Error("failed to create stt source", "err", err)
			return 1
		}
		src = sttSrc
	} else {
		fmt.Fprintln(os.Stderr, "type each word as it comes up; separate alternatives with |")
		src = transcript.NewLineSource(os.Stdin, time.Now)
	}

	printIntro(s)
	sum, err := a.Play(ctx, songID, src,
		engine.WithNoteHandler(printNote),
		engine.WithHearingHandler(printHearing),
		engine.WithProgressHandler(newCuePrinter()),
	)
	switch {
	case errors.Is(err, engine.ErrAborted):
		fmt.Println("\nsession aborted")
		return 130
	case err != nil && sum.SessionID == "":
		slog.Error("session failed", "song_id", songID, "err", err)
		return 1
	case err != nil:
		// Played to the end but not persisted.
		slog.Error("failed to save session", "session_id", sum.SessionID, "err", err)
		printSummary(sum)
		return 1
	}
	printSummary(sum)
	return 0
}

// ── Output ────────────────────────────────────────────────────────────────────

func printIntro(s *song.Song) {
	fmt.Printf("♪ %s (%s, %.0f BPM, %d words)\n", s.Title, s.Category, s.BPM, len(s.Notes))
}

func printNote(ev engine.NoteEvent) {
	spoken := ev.Result.Spoken
	if spoken == "" {
		spoken = "-"
	}
	fmt.Printf("  %-12s %-8s %+5d  combo %-3d heard %q\n",
		ev.Note.Word, strings.ToUpper(ev.Rating.String()), ev.Points, ev.ComboAfter, spoken)
}

func printHearing(text string) {
	fmt.Fprintf(os.Stderr, "  … %s\n", text)
}

// newCuePrinter announces each note once it enters the lookahead window.
func newCuePrinter() engine.ProgressHandler {
	announced := -1
	return func(p engine.Progress) {
		for _, u := range p.Upcoming {
			if u.Index <= announced {
				continue
			}
			announced = u.Index
			hint := ""
			if u.Phonetic != "" {
				hint = " " + u.Phonetic
			}
			fmt.Printf("next: %s%s (beat %.0f)\n", u.Word, hint, u.Beat)
		}
	}
}

func printSummary(sum session.Summary) {
	fmt.Println()
	fmt.Printf("score    %d\n", sum.Score)
	fmt.Printf("grade    %s\n", sum.Grade)
	fmt.Printf("accuracy %.1f%%\n", sum.Accuracy)
	fmt.Printf("combo    %d max\n", sum.MaxCombo)
	fmt.Printf("notes    %d perfect, %d great, %d good, %d miss\n",
		sum.Counts.Perfect, sum.Counts.Great, sum.Counts.Good, sum.Counts.Miss)
	fmt.Printf("time     %s\n", sum.Duration().Round(time.Second))
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in stt factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate, ok := config.OptInt(entry.Options, "sample_rate"); ok && rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms, ok := config.OptInt(entry.Options, "silence_ms"); ok && ms > 0 {
			opts = append(opts, whisper.WithSilence(time.Duration(ms)*time.Millisecond))
		}
		if ms, ok := config.OptInt(entry.Options, "max_utterance_ms"); ok && ms > 0 {
			opts = append(opts, whisper.WithMaxUtterance(time.Duration(ms)*time.Millisecond))
		}
		if rms, ok := config.OptInt(entry.Options, "threshold"); ok && rms > 0 {
			opts = append(opts, whisper.WithThreshold(float64(rms)))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildSTT instantiates the configured stt provider, wrapped in a failover
// chain when fallbacks are configured. It returns nil when none is
// configured.
func buildSTT(cfg *config.Config, reg *config.Registry) (stt.Provider, error) {
	primary, err := createSTT(reg, cfg.STT)
	if err != nil || primary == nil || len(cfg.STTFallbacks) == 0 {
		return primary, err
	}

	chain := resilience.NewSTTFailover(cfg.STT.Name, primary, resilience.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Cooldown:    cfg.Breaker.Cooldown,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("stt circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	}, observe.DefaultMetrics())
	for _, entry := range cfg.STTFallbacks {
		p, err := createSTT(reg, entry)
		if err != nil {
			return nil, err
		}
		if p != nil {
			chain.Add(entry.Name, p)
		}
	}
	slog.Info("stt failover enabled", "order", chain.Names())
	return chain, nil
}

// createSTT builds one provider. Unregistered names are skipped with a
// warning.
func createSTT(reg *config.Registry, entry config.ProviderEntry) (stt.Provider, error) {
	if entry.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateSTT(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("stt provider not available, skipping", "name", entry.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name)
	return p, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
