package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

// AssemblyAI transcribes through the AssemblyAI API with speaker labels.
type AssemblyAI struct {
	client *aai.Client
}

// NewAssemblyAI returns a backend using apiKey.
func NewAssemblyAI(apiKey string, opts ...aai.ClientOption) *AssemblyAI {
	opts = append([]aai.ClientOption{aai.WithAPIKey(apiKey)}, opts...)
	return &AssemblyAI{client: aai.NewClientWithOptions(opts...)}
}

func (a *AssemblyAI) Name() string { return "assemblyai" }

// Transcribe submits audioRef and waits for the transcript. URLs are fetched
// by AssemblyAI; anything else is read as a local file and uploaded. An empty
// language enables language detection.
func (a *AssemblyAI) Transcribe(ctx context.Context, audioRef, language string) (models.Transcript, error) {
	params := &aai.TranscriptOptionalParams{SpeakerLabels: aai.Bool(true)}
	if language != "" {
		params.LanguageCode = aai.TranscriptLanguageCode(language)
	} else {
		params.LanguageDetection = aai.Bool(true)
	}

	var (
		tr  aai.Transcript
		err error
	)
	if isURL(audioRef) {
		tr, err = a.client.Transcripts.TranscribeFromURL(ctx, audioRef, params)
	} else {
		f, openErr := os.Open(audioRef)
		if openErr != nil {
			return models.Transcript{}, fmt.Errorf("opening audio: %w", openErr)
		}
		defer f.Close()
		tr, err = a.client.Transcripts.TranscribeFromReader(ctx, f, params)
	}
	if err != nil {
		return models.Transcript{}, fmt.Errorf("assemblyai: %w", err)
	}

	if tr.Status == aai.TranscriptStatusError {
		msg := "unknown error"
		if tr.Error != nil {
			msg = *tr.Error
		}
		return models.Transcript{}, fmt.Errorf("assemblyai: transcript failed: %s", msg)
	}
	return fromAssemblyAI(tr, language), nil
}

// fromAssemblyAI converts millisecond utterances into seconds. A transcript
// with text but no utterances becomes a single unlabelled segment.
func fromAssemblyAI(tr aai.Transcript, language string) models.Transcript {
	out := models.Transcript{Language: language}
	if tr.LanguageCode != "" {
		out.Language = strings.ToLower(string(tr.LanguageCode))
	}
	if tr.Text != nil {
		out.Text = *tr.Text
	}
	if tr.AudioDuration != nil {
		out.Duration = float64(*tr.AudioDuration)
	}

	for _, u := range tr.Utterances {
		var seg models.Utterance
		if u.Text != nil {
			seg.Text = *u.Text
		}
		if u.Start != nil {
			seg.Start = float64(*u.Start) / 1000.0
		}
		if u.End != nil {
			seg.End = float64(*u.End) / 1000.0
		}
		if u.Speaker != nil && *u.Speaker != "" {
			seg.SpeakerHint = models.NameHint(*u.Speaker)
		}
		out.Segments = append(out.Segments, seg)
	}

	if len(out.Segments) == 0 && strings.TrimSpace(out.Text) != "" {
		out.Segments = []models.Utterance{{Text: out.Text, End: max(out.Duration, 0)}}
	}
	return out
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

var _ Transcriber = (*AssemblyAI)(nil)
