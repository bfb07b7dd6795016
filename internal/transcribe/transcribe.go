// Package transcribe turns audio references into timed, speaker-labelled
// transcripts. Backends are tried in order; the caller decides what to do
// when every backend fails.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/callscore/internal/config"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

var (
	ErrNoBackends          = errors.New("no transcription backends configured")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Transcriber converts audio to a transcript. language may be empty, in
// which case the backend detects it when it can.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef, language string) (models.Transcript, error)
	Name() string
}

// Chain tries its transcribers in order and returns the first success.
type Chain struct {
	backends []Transcriber
	timeout  time.Duration
}

// NewChain returns a Chain over backends. A positive timeout bounds each
// attempt separately.
func NewChain(timeout time.Duration, backends ...Transcriber) *Chain {
	return &Chain{backends: backends, timeout: timeout}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Len returns the number of backends.
func (c *Chain) Len() int { return len(c.backends) }

// Transcribe returns the first successful transcript. When all backends
// fail the error wraps ErrTranscriptionFailed and every backend error.
func (c *Chain) Transcribe(ctx context.Context, audioRef, language string) (models.Transcript, error) {
	if len(c.backends) == 0 {
		return models.Transcript{}, ErrNoBackends
	}

	errs := []error{ErrTranscriptionFailed}
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		t, err := c.attempt(ctx, b, audioRef, language)
		if err == nil {
			return t, nil
		}
		slog.Warn("transcription backend failed, trying next", "backend", b.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}
	return models.Transcript{}, errors.Join(errs...)
}

func (c *Chain) attempt(ctx context.Context, b Transcriber, audioRef, language string) (models.Transcript, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return b.Transcribe(ctx, audioRef, language)
}

// Degraded is the empty transcript used when transcription is unavailable.
func Degraded(language string) models.Transcript {
	return models.Transcript{Language: language, Degraded: true}
}

// OrDegraded transcribes audioRef, falling back to Degraded on failure.
func OrDegraded(ctx context.Context, t Transcriber, audioRef, language string) models.Transcript {
	if t == nil {
		return Degraded(language)
	}
	out, err := t.Transcribe(ctx, audioRef, language)
	if err != nil {
		slog.Warn("transcription unavailable, continuing with empty transcript", "transcriber", t.Name(), "error", err)
		return Degraded(language)
	}
	if out.Language == "" {
		out.Language = language
	}
	return out
}

// New builds the configured chain. An empty provider list returns a Chain
// with no backends, which always fails with ErrNoBackends.
func New(cfg config.TranscriberConfig) (*Chain, error) {
	var backends []Transcriber
	for _, p := range cfg.Providers {
		switch p {
		case "assemblyai":
			backends = append(backends, NewAssemblyAI(cfg.AssemblyAI.APIKey))
		case "http":
			backends = append(backends, NewHTTPASR(cfg.HTTP.URL, cfg.Timeout))
		default:
			return nil, fmt.Errorf("unsupported transcription provider: %q", p)
		}
	}
	return NewChain(cfg.Timeout, backends...), nil
}
