package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

// Call is one entry of a batch. A zero Duration is derived from the
// utterance timings.
type Call struct {
	ID         string
	Utterances []models.Utterance
	Language   string
	Duration   float64
}

// BatchResult pairs a call with its outcome. Exactly one of Result and Err
// is set.
type BatchResult struct {
	ID     string
	Result *models.AssessmentResult
	Err    error
}

// AssessBatch assesses calls with at most concurrency in flight. Results are
// returned in input order. A failing call does not stop the others; a
// cancelled context marks the calls that had not started with ctx.Err().
func (a *Assessor) AssessBatch(ctx context.Context, calls []Call, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]BatchResult, len(calls))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, c := range calls {
		results[i].ID = c.ID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			t := models.Transcript{Segments: c.Utterances, Duration: c.Duration}
			results[i].Result, results[i].Err = a.AssessTranscript(ctx, t, c.Language)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
