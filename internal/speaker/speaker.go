// Package speaker assigns utterances to the agent or the customer side of a
// call. Acoustic diarization is not available, so attribution relies on the
// transcriber's speaker hint and falls back to phrase lexicons.
package speaker

import (
	"sort"
	"strings"

	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// Attributor labels utterances using a lexicon. Safe for concurrent use.
type Attributor struct {
	lex *lexicon.Lexicon
}

// New returns an Attributor backed by lex.
func New(lex *lexicon.Lexicon) *Attributor {
	return &Attributor{lex: lex}
}

// Label derives a speaker from the utterance hint alone. Channel 0 is the
// customer line and every other channel is an agent. Textual hints are
// matched against the agent synonyms first, then the customer synonyms.
func (a *Attributor) Label(u models.Utterance) models.SpeakerLabel {
	if ch, ok := u.SpeakerHint.Channel(); ok {
		if ch == 0 {
			return models.SpeakerCustomer
		}
		return models.SpeakerAgent
	}
	name, ok := u.SpeakerHint.Name()
	if !ok {
		return models.SpeakerUnknown
	}
	name = strings.ToLower(name)
	if containsAny(name, a.lex.AgentHints()) {
		return models.SpeakerAgent
	}
	if containsAny(name, a.lex.CustomerHints()) {
		return models.SpeakerCustomer
	}
	return models.SpeakerUnknown
}

// Resolve returns the hint label when there is one, otherwise the lexical
// label. It never returns unknown; lexical ties go to the customer.
func (a *Attributor) Resolve(u models.Utterance, language string) models.SpeakerLabel {
	if l := a.Label(u); l.Known() {
		return l
	}
	set := a.lex.For(language)
	if set.Count(lexicon.AgentPhrases, u.Text) > set.Count(lexicon.CustomerPhrases, u.Text) {
		return models.SpeakerAgent
	}
	return models.SpeakerCustomer
}

// Attribute splits a call into agent text and customer text. Utterances are
// taken in start order (ties keep input order) and joined with single spaces.
func (a *Attributor) Attribute(utterances []models.Utterance, language string) (agentText, customerText string) {
	if len(utterances) == 0 {
		return "", ""
	}
	var agent, customer []string
	for _, u := range Chronological(utterances) {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		if a.Resolve(u, language) == models.SpeakerAgent {
			agent = append(agent, text)
		} else {
			customer = append(customer, text)
		}
	}
	return strings.Join(agent, " "), strings.Join(customer, " ")
}

// Chronological returns a copy of utterances stably sorted by start time.
func Chronological(utterances []models.Utterance) []models.Utterance {
	sorted := append([]models.Utterance(nil), utterances...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	return sorted
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
