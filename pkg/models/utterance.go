// Package models contains shared data models used across the callscore codebase.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Utterance is one timed, transcribed span of speech. Produced by the
// transcription collaborator and never mutated afterwards.
type Utterance struct {
	Text        string       `json:"text"`
	Start       float64      `json:"start"`
	End         float64      `json:"end"`
	SpeakerHint *SpeakerHint `json:"speaker,omitempty"`
}

// SpeakerHint is the optional speaker metadata attached to an utterance.
// It is either a free-form name ("operator", "Customer 1") or a channel index.
type SpeakerHint struct {
	name      string
	channel   int
	isChannel bool
}

// NameHint returns a textual speaker hint.
func NameHint(name string) *SpeakerHint {
	return &SpeakerHint{name: name}
}

// ChannelHint returns a numeric speaker hint. Channel 0 is the customer line.
func ChannelHint(channel int) *SpeakerHint {
	return &SpeakerHint{channel: channel, isChannel: true}
}

// Name returns the textual hint and whether the hint is textual.
func (h *SpeakerHint) Name() (string, bool) {
	if h == nil || h.isChannel {
		return "", false
	}
	return h.name, true
}

// Channel returns the numeric hint and whether the hint is numeric.
func (h *SpeakerHint) Channel() (int, bool) {
	if h == nil || !h.isChannel {
		return 0, false
	}
	return h.channel, true
}

func (h *SpeakerHint) String() string {
	if h == nil {
		return ""
	}
	if h.isChannel {
		return strconv.Itoa(h.channel)
	}
	return h.name
}

// MarshalJSON encodes the hint as a JSON string or number.
func (h SpeakerHint) MarshalJSON() ([]byte, error) {
	if h.isChannel {
		return []byte(strconv.Itoa(h.channel)), nil
	}
	return json.Marshal(h.name)
}

// UnmarshalJSON accepts either a JSON string or an integer.
func (h *SpeakerHint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = SpeakerHint{name: s}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("speaker hint must be a string or integer: %w", err)
	}
	*h = SpeakerHint{channel: n, isChannel: true}
	return nil
}

// SpeakerLabel is the derived role of an utterance's speaker.
type SpeakerLabel string

const (
	SpeakerAgent    SpeakerLabel = "agent"
	SpeakerCustomer SpeakerLabel = "customer"
	SpeakerUnknown  SpeakerLabel = "unknown"
)

// Known reports whether the label is agent or customer.
func (l SpeakerLabel) Known() bool {
	return l == SpeakerAgent || l == SpeakerCustomer
}

// Transcript is the output of the transcription collaborator.
type Transcript struct {
	Text     string      `json:"text"`
	Segments []Utterance `json:"segments"`
	Language string      `json:"language"`
	Duration float64     `json:"duration"`
	Degraded bool        `json:"degraded,omitempty"`
}
