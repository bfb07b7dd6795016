// Package factory builds classifiers from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/internal/ai/emotionhttp"
	"github.com/kiranshivaraju/callscore/internal/ai/openai"
	"github.com/kiranshivaraju/callscore/internal/config"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// NewClassifier constructs the classifier named by provider for task.
func NewClassifier(provider string, task ai.Task, cfg config.ClassifierConfig) (models.Classifier, error) {
	switch provider {
	case "openai":
		model := cfg.OpenAI.SentimentModel
		if task == ai.TaskResolution {
			model = cfg.OpenAI.ResolutionModel
		}
		return openai.NewProvider(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   model,
			Timeout: cfg.Timeout,
		}, task)
	case "emotion-http":
		if task != ai.TaskSentiment {
			return nil, fmt.Errorf("emotion-http: %w: %q", ai.ErrUnsupportedTask, task)
		}
		return emotionhttp.NewClient(cfg.Emotion.URL, cfg.Emotion.Token, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q: must be one of openai, emotion-http", provider)
	}
}

// Accessors returns registry-backed accessors for the sentiment and
// resolution classifiers. A component configured as "none" gets a nil
// accessor and stays rule-based.
func Accessors(reg *ai.Registry, cfg config.ClassifierConfig) (sentiment, resolution ai.Accessor) {
	return accessor(reg, cfg.Sentiment, ai.TaskSentiment, cfg), accessor(reg, cfg.Resolution, ai.TaskResolution, cfg)
}

func accessor(reg *ai.Registry, provider string, task ai.Task, cfg config.ClassifierConfig) ai.Accessor {
	if provider == "" || provider == "none" {
		return nil
	}
	id := fmt.Sprintf("%s:%s", task, provider)
	return reg.Accessor(id, func(ctx context.Context) (models.Classifier, error) {
		c, err := NewClassifier(provider, task, cfg)
		if err != nil {
			return nil, err
		}
		if r, ok := c.(interface{ Ready(context.Context) error }); ok {
			if err := r.Ready(ctx); err != nil {
				return nil, err
			}
		}
		return c, nil
	})
}
