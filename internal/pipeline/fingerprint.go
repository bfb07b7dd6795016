package pipeline

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/kiranshivaraju/callscore/internal/speaker"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// Fingerprint identifies a transcript by content. Two submissions with the
// same language, utterance texts, timings and speaker hints share a
// fingerprint. Utterances are hashed in the order the stages see them:
// sorted by start time, with ties kept in submission order.
func Fingerprint(utterances []models.Utterance, language string) string {
	return fingerprint(utterances, language, 0)
}

// TranscriptFingerprint is Fingerprint that also covers a declared
// transcript duration, since it changes the efficiency score.
func TranscriptFingerprint(t models.Transcript, language string) string {
	return fingerprint(t.Segments, language, t.Duration)
}

func fingerprint(utterances []models.Utterance, language string, duration float64) string {
	h, _ := blake2b.New256(nil)

	writeString := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeFloat := func(f float64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
		h.Write(b[:])
	}

	writeString(strings.ToLower(strings.TrimSpace(language)))
	if duration > 0 && !math.IsInf(duration, 0) {
		writeString("duration")
		writeFloat(duration)
	}
	for _, u := range speaker.Chronological(utterances) {
		writeString(strings.TrimSpace(u.Text))
		writeFloat(u.Start)
		writeFloat(u.End)
		if ch, ok := u.SpeakerHint.Channel(); ok {
			writeString("channel")
			writeFloat(float64(ch))
		} else {
			name, _ := u.SpeakerHint.Name()
			writeString("name")
			writeString(name)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
