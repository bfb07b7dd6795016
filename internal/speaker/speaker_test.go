package speaker_test

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/internal/speaker"
	"github.com/kiranshivaraju/callscore/pkg/models"
	"github.com/stretchr/testify/assert"
)

func newAttributor() *speaker.Attributor {
	return speaker.New(lexicon.Default())
}

func TestLabel_FromHint(t *testing.T) {
	a := newAttributor()
	tests := []struct {
		name string
		hint *models.SpeakerHint
		want models.SpeakerLabel
	}{
		{"no hint", nil, models.SpeakerUnknown},
		{"channel zero is customer", models.ChannelHint(0), models.SpeakerCustomer},
		{"channel one is agent", models.ChannelHint(1), models.SpeakerAgent},
		{"any other channel is agent", models.ChannelHint(7), models.SpeakerAgent},
		{"operator", models.NameHint("Operator 2"), models.SpeakerAgent},
		{"russian operator", models.NameHint("Оператор"), models.SpeakerAgent},
		{"caller", models.NameHint("caller"), models.SpeakerCustomer},
		{"russian client", models.NameHint("Клиент"), models.SpeakerCustomer},
		{"diarization letter", models.NameHint("A"), models.SpeakerUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Label(models.Utterance{Text: "x", SpeakerHint: tt.hint}))
		})
	}
}

func TestResolve_LexicalFallback(t *testing.T) {
	a := newAttributor()

	agent := models.Utterance{Text: "Добрый день, чем могу помочь?"}
	customer := models.Utterance{Text: "Помогите, у меня проблема"}
	tie := models.Utterance{Text: "алло"}

	assert.Equal(t, models.SpeakerAgent, a.Resolve(agent, "ru"))
	assert.Equal(t, models.SpeakerCustomer, a.Resolve(customer, "ru"))
	assert.Equal(t, models.SpeakerCustomer, a.Resolve(tie, "ru"))
	// Unsupported language routes to the default lexicon.
	assert.Equal(t, models.SpeakerAgent, a.Resolve(agent, "de"))
}

func TestResolve_HintWinsOverLexicon(t *testing.T) {
	a := newAttributor()
	u := models.Utterance{Text: "Здравствуйте, чем могу помочь?", SpeakerHint: models.ChannelHint(0)}
	assert.Equal(t, models.SpeakerCustomer, a.Resolve(u, "ru"))
}

func TestAttribute_Empty(t *testing.T) {
	agent, customer := newAttributor().Attribute(nil, "ru")
	assert.Empty(t, agent)
	assert.Empty(t, customer)
}

func TestAttribute_ChronologicalJoin(t *testing.T) {
	utts := []models.Utterance{
		{Text: "second agent", Start: 4, End: 5, SpeakerHint: models.NameHint("agent")},
		{Text: "first customer", Start: 0, End: 1, SpeakerHint: models.NameHint("customer")},
		{Text: "first agent", Start: 2, End: 3, SpeakerHint: models.NameHint("agent")},
		{Text: "second customer", Start: 2, End: 4, SpeakerHint: models.NameHint("customer")},
	}
	agent, customer := newAttributor().Attribute(utts, "ru")
	assert.Equal(t, "first agent second agent", agent)
	assert.Equal(t, "first customer second customer", customer)
}

func TestAttribute_CoversEveryWord(t *testing.T) {
	utts := []models.Utterance{
		{Text: "Здравствуйте, чем могу помочь?", Start: 0, End: 2},
		{Text: "  У меня проблема   с картой ", Start: 2, End: 5},
		{Text: "понимаю", Start: 5, End: 6, SpeakerHint: models.ChannelHint(3)},
		{Text: "", Start: 6, End: 6},
		{Text: "спасибо", Start: 6, End: 7, SpeakerHint: models.NameHint("B")},
	}
	agent, customer := newAttributor().Attribute(utts, "ru")

	var want []string
	for _, u := range utts {
		want = append(want, strings.Fields(u.Text)...)
	}
	got := append(strings.Fields(agent), strings.Fields(customer)...)
	assert.ElementsMatch(t, want, got)
}

func TestChronological_StableOnTies(t *testing.T) {
	utts := []models.Utterance{
		{Text: "b", Start: 1},
		{Text: "a1", Start: 0},
		{Text: "a2", Start: 0},
	}
	sorted := speaker.Chronological(utts)
	assert.Equal(t, "a1", sorted[0].Text)
	assert.Equal(t, "a2", sorted[1].Text)
	assert.Equal(t, "b", sorted[2].Text)
	assert.Equal(t, "b", utts[0].Text, "input must not be reordered")
}
