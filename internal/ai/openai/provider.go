// Package openai implements models.Classifier on top of chat completions.
// The model is prompted to answer with a label line and a confidence line,
// which are parsed into a models.Classification.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

const maxInputRunes = 4000

var prompts = map[ai.Task]string{
	ai.TaskSentiment: `You classify the emotional tone of a call-center customer's words.
The text may be in Russian or Kazakh.
Answer with exactly two lines:
LABEL: <positive|negative|neutral>
CONFIDENCE: <number between 0 and 1>`,
	ai.TaskResolution: `You decide whether a call-center customer's issue was resolved, based on what the customer said.
The text may be in Russian or Kazakh.
Answer with exactly two lines:
LABEL: <resolved|partial|unresolved|unclear>
CONFIDENCE: <number between 0 and 1>`,
}

// Config holds the settings for one classifier instance.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider implements models.Classifier using OpenAI.
type Provider struct {
	client  oai.Client
	model   string
	task    ai.Task
	timeout time.Duration
}

// NewProvider returns a classifier for task.
func NewProvider(cfg Config, task ai.Task) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	if _, ok := prompts[task]; !ok {
		return nil, fmt.Errorf("openai: %w: %q", ai.ErrUnsupportedTask, task)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// One attempt per call; the caller falls back to keywords on failure.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return &Provider{
		client:  oai.NewClient(opts...),
		model:   cfg.Model,
		task:    task,
		timeout: cfg.Timeout,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

// Classify sends text to the model and parses its answer.
func (p *Provider) Classify(ctx context.Context, text string) (models.Classification, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(prompts[p.task]),
			oai.UserMessage(truncateRunes(text, maxInputRunes)),
		},
		Temperature:         param.NewOpt(0.0),
		MaxCompletionTokens: param.NewOpt(int64(20)),
	})
	if err != nil {
		return models.Classification{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return models.Classification{}, fmt.Errorf("%w: empty choices", ai.ErrInvalidResponse)
	}
	return parseAnswer(resp.Choices[0].Message.Content)
}

// parseAnswer reads "LABEL:" and "CONFIDENCE:" lines. A missing confidence
// defaults to 0.5; a missing label is an invalid response.
func parseAnswer(content string) (models.Classification, error) {
	out := models.Classification{Score: models.DefaultConfidence}
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "LABEL", "SENTIMENT", "STATUS":
			out.Label = strings.ToLower(strings.Trim(value, " .*\"'"))
		case "CONFIDENCE":
			f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
			if err != nil {
				continue
			}
			if strings.HasSuffix(value, "%") || f > 1 {
				f /= 100
			}
			out.Score = min(max(f, 0), 1)
		}
	}
	if out.Label == "" {
		return models.Classification{}, fmt.Errorf("%w: no label in %q", ai.ErrInvalidResponse, truncateRunes(content, 80))
	}
	return out, nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ai.ErrInferenceTimeout, err)
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %v", ai.ErrProviderUnavailable, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%w: %v", ai.ErrProviderUnavailable, err)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ models.Classifier = (*Provider)(nil)
