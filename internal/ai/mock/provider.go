package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// Classifier satisfies models.Classifier for testing.
type Classifier struct {
	Name_        string
	ClassifyFunc func(ctx context.Context, text string) (models.Classification, error)

	calls atomic.Int32
}

func (m *Classifier) Name() string { return m.Name_ }

func (m *Classifier) Classify(ctx context.Context, text string) (models.Classification, error) {
	m.calls.Add(1)
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text)
	}
	return models.Classification{}, nil
}

// Calls returns how many times Classify has been invoked.
func (m *Classifier) Calls() int { return int(m.calls.Load()) }

// NewClassifier returns a Classifier that labels everything neutral.
func NewClassifier() *Classifier {
	return NewStaticClassifier("neutral", 0.5)
}

// NewStaticClassifier returns a Classifier that always answers label/score.
func NewStaticClassifier(label string, score float64) *Classifier {
	return &Classifier{
		Name_: "mock",
		ClassifyFunc: func(context.Context, string) (models.Classification, error) {
			return models.Classification{Label: label, Score: score}, nil
		},
	}
}

// NewFailingClassifier returns a Classifier that always returns the given error.
func NewFailingClassifier(err error) *Classifier {
	return &Classifier{
		Name_: "mock-failing",
		ClassifyFunc: func(context.Context, string) (models.Classification, error) {
			return models.Classification{}, err
		},
	}
}

// NewTimeoutClassifier returns a Classifier that blocks until context is cancelled.
func NewTimeoutClassifier() *Classifier {
	return &Classifier{
		Name_: "mock-timeout",
		ClassifyFunc: func(ctx context.Context, _ string) (models.Classification, error) {
			<-ctx.Done()
			return models.Classification{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that Classifier implements models.Classifier.
var _ models.Classifier = (*Classifier)(nil)
