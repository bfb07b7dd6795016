// Package conversation derives turn-taking signals from a call: how quickly
// the agent answers, how often speakers talk over each other, and whether
// the agent opened and closed the call properly.
package conversation

import (
	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/internal/speaker"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

const (
	greetingWindow = 100
	closingWindow  = 200
)

// Labeler assigns a speaker to an utterance. Unknown utterances are ignored
// by the timing metrics.
type Labeler func(models.Utterance) models.SpeakerLabel

// Compute returns all metrics for one call.
func Compute(utterances []models.Utterance, label Labeler, agentText string, set *lexicon.Set) models.ConversationMetrics {
	sorted := speaker.Chronological(utterances)
	return models.ConversationMetrics{
		ResponseTimes: responseTimes(sorted, label),
		Interruptions: interruptions(sorted, label),
		Greeting:      Greeting(agentText, set),
		Closing:       Closing(agentText, set),
	}
}

// ResponseTimes measures, for each customer turn, the gap until the first
// agent utterance that follows it. Overlapping replies count as zero.
func ResponseTimes(utterances []models.Utterance, label Labeler) []float64 {
	return responseTimes(speaker.Chronological(utterances), label)
}

func responseTimes(sorted []models.Utterance, label Labeler) []float64 {
	out := []float64{}
	waiting := false
	var customerEnd float64
	for _, u := range sorted {
		switch label(u) {
		case models.SpeakerCustomer:
			customerEnd = u.End
			waiting = true
		case models.SpeakerAgent:
			if waiting {
				out = append(out, max(0, u.Start-customerEnd))
				waiting = false
			}
		}
	}
	return out
}

// Interruptions counts adjacent utterances that overlap in time and belong
// to different known speakers.
func Interruptions(utterances []models.Utterance, label Labeler) int {
	return interruptions(speaker.Chronological(utterances), label)
}

func interruptions(sorted []models.Utterance, label Labeler) int {
	n := 0
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Start >= prev.End {
			continue
		}
		a, b := label(prev), label(cur)
		if a.Known() && b.Known() && a != b {
			n++
		}
	}
	return n
}

// Greeting reports a greeting phrase within the first 100 characters of the
// agent text.
func Greeting(agentText string, set *lexicon.Set) bool {
	r := []rune(agentText)
	if len(r) > greetingWindow {
		r = r[:greetingWindow]
	}
	return set.Any(lexicon.Greetings, string(r))
}

// Closing reports a closing phrase within the last 200 characters of the
// agent text.
func Closing(agentText string, set *lexicon.Set) bool {
	r := []rune(agentText)
	if len(r) > closingWindow {
		r = r[len(r)-closingWindow:]
	}
	return set.Any(lexicon.Closings, string(r))
}

// MeanResponseTime returns the average gap, or false when there is none.
func MeanResponseTime(times []float64) (float64, bool) {
	if len(times) == 0 {
		return 0, false
	}
	var sum float64
	for _, t := range times {
		sum += t
	}
	return sum / float64(len(times)), true
}
