// Package whisper implements [stt.Provider] on a whisper.cpp server
// (POST /inference).
//
// whisper.cpp transcribes whole clips, so a session gates incoming audio by
// energy, cuts it into utterances at pauses and submits each utterance as
// one request. Every response becomes a single final transcript; there are
// no partials and no ranked alternatives. The song's keywords are passed as
// the decoding prompt, which biases whisper towards them.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithSilence(300*time.Millisecond))
//	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/stt"
)

const (
	defaultLanguage     = "en"
	defaultSilence      = 400 * time.Millisecond
	defaultMaxUtterance = 5 * time.Second

	// defaultThreshold is the RMS level below which audio counts as silence.
	defaultThreshold = 300.0

	flushTimeout = 15 * time.Second
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("whisper: session is closed")

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty uses the model the
// server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language used when the stream config has none.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilence sets the pause that ends an utterance. Default 400ms.
func WithSilence(d time.Duration) Option {
	return func(p *Provider) { p.silence = d }
}

// WithMaxUtterance caps the length of one utterance. Default 5s.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Provider) { p.maxUtterance = d }
}

// WithThreshold sets the RMS silence level. Default 300.
func WithThreshold(rms float64) Option {
	return func(p *Provider) { p.threshold = rms }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider opens whisper.cpp sessions. It is safe for concurrent use.
type Provider struct {
	serverURL    string
	model        string
	language     string
	silence      time.Duration
	maxUtterance time.Duration
	threshold    float64
	client       *http.Client
}

// New returns a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server url must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		language:     defaultLanguage,
		silence:      defaultSilence,
		maxUtterance: defaultMaxUtterance,
		threshold:    defaultThreshold,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session. No request is made until the first
// utterance completes.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	f := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = audio.Speech.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	s := &session{
		p:        p,
		format:   f,
		language: lang,
		prompt:   prompt(cfg.Keywords),
		seg: segmenter{
			format:    f,
			threshold: p.threshold,
			silence:   p.silence,
			maxLen:    p.maxUtterance,
		},
		audio:    make(chan []byte, 64),
		partials: make(chan stt.Transcript),
		finals:   make(chan stt.Transcript, 16),
		done:     make(chan struct{}),
	}
	close(s.partials)
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

func prompt(keywords []stt.KeywordBoost) string {
	words := make([]string, 0, len(keywords))
	for _, k := range keywords {
		words = append(words, k.Keyword)
	}
	return strings.Join(words, ", ")
}

// session implements [stt.SessionHandle]. Segmentation state is owned by
// the run goroutine.
type session struct {
	p        *Provider
	format   audio.Format
	language string
	seg      segmenter

	mu     sync.Mutex
	prompt string

	audio    chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords replaces the decoding prompt for later utterances.
func (s *session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	s.prompt = prompt(keywords)
	s.mu.Unlock()
	return nil
}

// Close transcribes any pending speech, then closes Finals.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.finals)

	for {
		select {
		case chunk := <-s.audio:
			if u, ok := s.seg.push(chunk); ok {
				s.transcribe(ctx, u, false)
			}
		case <-ctx.Done():
			s.drain()
			return
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain segments audio still queued, then transcribes the pending utterance
// on a fresh context; the session context may already be cancelled.
func (s *session) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for queued := true; queued; {
		select {
		case chunk := <-s.audio:
			if u, ok := s.seg.push(chunk); ok {
				s.transcribe(ctx, u, true)
			}
		default:
			queued = false
		}
	}
	u, ok := s.seg.flush()
	if !ok {
		return
	}
	s.transcribe(ctx, u, true)
}

func (s *session) transcribe(ctx context.Context, u utterance, closing bool) {
	text, err := s.infer(ctx, u.pcm)
	if err != nil {
		slog.Warn("whisper inference failed", "err", err)
		return
	}
	if text == "" {
		return
	}
	t := stt.Transcript{
		Text:      text,
		IsFinal:   true,
		Timestamp: u.start,
		Duration:  s.format.Duration(len(u.pcm)),
	}
	if closing {
		select {
		case s.finals <- t:
		default:
		}
		return
	}
	select {
	case s.finals <- t:
	case <-ctx.Done():
	case <-s.done:
	}
}

// infer posts pcm as a WAV upload and returns the trimmed text.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	s.mu.Lock()
	prompt := s.prompt
	s.mu.Unlock()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, s.format)); err != nil {
		return "", fmt.Errorf("whisper: write audio: %w", err)
	}
	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0",
		"language":        s.language,
		"model":           s.p.model,
		"prompt":          prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
