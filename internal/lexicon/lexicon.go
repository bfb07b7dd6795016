// Package lexicon loads the per-language phrase lists used by the rule-based
// analysis stages. Lexicons are read once from a versioned YAML resource and
// never mutated afterwards, so a *Lexicon may be shared across goroutines.
package lexicon

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/kiranshivaraju/callscore/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed lexicons.yaml
var embedded []byte

// DefaultLanguage is used when neither the caller nor the resource names one.
const DefaultLanguage = "ru"

// Category names a phrase list inside a language set.
type Category string

const (
	AgentPhrases    Category = "agent_phrases"
	CustomerPhrases Category = "customer_phrases"
	Positive        Category = "positive"
	Negative        Category = "negative"
	Greetings       Category = "greetings"
	Closings        Category = "closings"
	Clarity         Category = "clarity"
	Unclear         Category = "unclear"
	Politeness      Category = "politeness"
	Rudeness        Category = "rudeness"
	ExtraPolite     Category = "extra_polite"
	Empathy         Category = "empathy"
)

var (
	ErrInvalidLexicon = errors.New("invalid lexicon")
)

// ResolutionRule is one entry of the ordered resolution keyword table.
type ResolutionRule struct {
	Status   models.ResolutionStatus
	Keywords []string
}

// Set is the immutable phrase collection for one language.
type Set struct {
	language   string
	phrases    map[Category][]string
	resolution []ResolutionRule
}

// Language returns the language code the set was loaded for.
func (s *Set) Language() string { return s.language }

// Phrases returns a copy of the phrases in category c.
func (s *Set) Phrases(c Category) []string {
	return append([]string(nil), s.phrases[c]...)
}

// Count returns how many distinct phrases of category c occur in text.
// Matching is case-insensitive substring matching.
func (s *Set) Count(c Category, text string) int {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	n := 0
	for _, p := range s.phrases[c] {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}

// Any reports whether at least one phrase of category c occurs in text.
func (s *Set) Any(c Category, text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range s.phrases[c] {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Resolution returns the resolution rules in evaluation order.
func (s *Set) Resolution() []ResolutionRule {
	out := make([]ResolutionRule, len(s.resolution))
	for i, r := range s.resolution {
		out[i] = ResolutionRule{Status: r.Status, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}

// MatchResolution returns the status of the first rule with a keyword in
// text, or unclear when no rule matches.
func (s *Set) MatchResolution(text string) models.ResolutionStatus {
	lower := strings.ToLower(text)
	for _, r := range s.resolution {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Status
			}
		}
	}
	return models.StatusUnclear
}

// Lexicon maps language codes to phrase sets.
type Lexicon struct {
	version         int
	defaultLanguage string
	sets            map[string]*Set
	agentHints      []string
	customerHints   []string
}

// Version returns the resource version the lexicon was loaded from.
func (l *Lexicon) Version() int { return l.version }

// DefaultLanguage returns the fallback language code.
func (l *Lexicon) DefaultLanguage() string { return l.defaultLanguage }

// Languages returns the supported language codes, sorted.
func (l *Lexicon) Languages() []string {
	out := make([]string, 0, len(l.sets))
	for lang := range l.sets {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether lang has its own set.
func (l *Lexicon) Supports(lang string) bool {
	_, ok := l.sets[normalize(lang)]
	return ok
}

// For returns the set for lang, falling back to the default language.
func (l *Lexicon) For(lang string) *Set {
	if s, ok := l.sets[normalize(lang)]; ok {
		return s
	}
	return l.sets[l.defaultLanguage]
}

// AgentHints returns the speaker-hint synonyms that identify the agent.
func (l *Lexicon) AgentHints() []string { return append([]string(nil), l.agentHints...) }

// CustomerHints returns the speaker-hint synonyms that identify the customer.
func (l *Lexicon) CustomerHints() []string { return append([]string(nil), l.customerHints...) }

type fileFormat struct {
	Version         int    `yaml:"version"`
	DefaultLanguage string `yaml:"default_language"`
	SpeakerHints    struct {
		Agent    []string `yaml:"agent"`
		Customer []string `yaml:"customer"`
	} `yaml:"speaker_hints"`
	Languages map[string]languageFormat `yaml:"languages"`
}

type languageFormat struct {
	AgentPhrases    []string `yaml:"agent_phrases"`
	CustomerPhrases []string `yaml:"customer_phrases"`
	Positive        []string `yaml:"positive"`
	Negative        []string `yaml:"negative"`
	Resolution      []struct {
		Status   string   `yaml:"status"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"resolution"`
	Greetings   []string `yaml:"greetings"`
	Closings    []string `yaml:"closings"`
	Clarity     []string `yaml:"clarity"`
	Unclear     []string `yaml:"unclear"`
	Politeness  []string `yaml:"politeness"`
	Rudeness    []string `yaml:"rudeness"`
	ExtraPolite []string `yaml:"extra_polite"`
	Empathy     []string `yaml:"empathy"`
}

// Load parses a lexicon resource.
func Load(r io.Reader) (*Lexicon, error) {
	var f fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrInvalidLexicon, err)
	}
	return build(f)
}

// LoadFile parses the lexicon resource at path.
func LoadFile(path string) (*Lexicon, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lexicon: %w", err)
	}
	defer fh.Close()
	return Load(fh)
}

var loadDefault = sync.OnceValues(func() (*Lexicon, error) {
	return Load(bytes.NewReader(embedded))
})

// Default returns the lexicon compiled into the binary.
func Default() *Lexicon {
	l, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon: %v", err))
	}
	return l
}

// Resolve returns the override lexicon at path, or the embedded one when
// path is empty.
func Resolve(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func build(f fileFormat) (*Lexicon, error) {
	if len(f.Languages) == 0 {
		return nil, fmt.Errorf("%w: no languages", ErrInvalidLexicon)
	}
	def := normalize(f.DefaultLanguage)
	if def == "" {
		def = DefaultLanguage
	}

	l := &Lexicon{
		version:         f.Version,
		defaultLanguage: def,
		sets:            make(map[string]*Set, len(f.Languages)),
		agentHints:      lowerAll(f.SpeakerHints.Agent),
		customerHints:   lowerAll(f.SpeakerHints.Customer),
	}

	for lang, lf := range f.Languages {
		code := normalize(lang)
		s := &Set{
			language: code,
			phrases: map[Category][]string{
				AgentPhrases:    lowerAll(lf.AgentPhrases),
				CustomerPhrases: lowerAll(lf.CustomerPhrases),
				Positive:        lowerAll(lf.Positive),
				Negative:        lowerAll(lf.Negative),
				Greetings:       lowerAll(lf.Greetings),
				Closings:        lowerAll(lf.Closings),
				Clarity:         lowerAll(lf.Clarity),
				Unclear:         lowerAll(lf.Unclear),
				Politeness:      lowerAll(lf.Politeness),
				Rudeness:        lowerAll(lf.Rudeness),
				ExtraPolite:     lowerAll(lf.ExtraPolite),
				Empathy:         lowerAll(lf.Empathy),
			},
		}
		for _, r := range lf.Resolution {
			status := models.ResolutionStatus(strings.ToLower(strings.TrimSpace(r.Status)))
			if !status.Valid() || status == models.StatusUnclear {
				return nil, fmt.Errorf("%w: language %q: unknown resolution status %q", ErrInvalidLexicon, code, r.Status)
			}
			s.resolution = append(s.resolution, ResolutionRule{Status: status, Keywords: lowerAll(r.Keywords)})
		}
		l.sets[code] = s
	}

	if _, ok := l.sets[def]; !ok {
		return nil, fmt.Errorf("%w: default language %q has no set", ErrInvalidLexicon, def)
	}
	return l, nil
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
