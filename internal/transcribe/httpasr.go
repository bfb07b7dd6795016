package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

// maxUploadRetries bounds retries of the upload after the first attempt.
const maxUploadRetries = 3

type asrSegment struct {
	Start   float64             `json:"start"`
	End     float64             `json:"end"`
	Text    string              `json:"text"`
	Speaker *models.SpeakerHint `json:"speaker,omitempty"`
}

type asrResponse struct {
	Segments []asrSegment `json:"segments"`
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
}

// HTTPASR uploads audio to a self-hosted speech recognition service
// exposing POST /transcribe.
type HTTPASR struct {
	baseURL    string
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// HTTPASROption configures an HTTPASR backend.
type HTTPASROption func(*HTTPASR)

// WithBackOff replaces the exponential backoff between upload retries.
func WithBackOff(f func() backoff.BackOff) HTTPASROption {
	return func(h *HTTPASR) { h.newBackOff = f }
}

// NewHTTPASR returns a backend for the service at baseURL.
func NewHTTPASR(baseURL string, timeout time.Duration, opts ...HTTPASROption) *HTTPASR {
	h := &HTTPASR{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		newBackOff: defaultBackOff,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 30 * time.Second
	return bo
}

func (h *HTTPASR) Name() string { return "http" }

// Transcribe uploads the audio as the multipart field "file". Remote audio is
// downloaded first. Network errors, 429 and 5xx answers are retried with
// backoff; other answers fail at once.
func (h *HTTPASR) Transcribe(ctx context.Context, audioRef, language string) (models.Transcript, error) {
	audio, name, err := h.open(ctx, audioRef)
	if err != nil {
		return models.Transcript{}, err
	}
	defer audio.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", name)
	if err != nil {
		return models.Transcript{}, err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return models.Transcript{}, fmt.Errorf("reading audio: %w", err)
	}
	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return models.Transcript{}, err
		}
	}
	if err := w.Close(); err != nil {
		return models.Transcript{}, err
	}

	var out asrResponse
	upload := func() error {
		return h.upload(ctx, b.Bytes(), w.FormDataContentType(), &out)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(h.newBackOff(), maxUploadRetries), ctx)
	if err := backoff.Retry(upload, bo); err != nil {
		return models.Transcript{}, err
	}
	return out.transcript(language), nil
}

func (h *HTTPASR) upload(ctx context.Context, body []byte, contentType string, out *asrResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("asr %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("asr decode: %w", err))
	}
	return nil
}

func (h *HTTPASR) open(ctx context.Context, audioRef string) (io.ReadCloser, string, error) {
	if !isURL(audioRef) {
		f, err := os.Open(audioRef)
		if err != nil {
			return nil, "", fmt.Errorf("opening audio: %w", err)
		}
		return f, filepath.Base(audioRef), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioRef, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building audio request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("downloading audio: %s", resp.Status)
	}
	name := path.Base(req.URL.Path)
	if name == "/" || name == "." {
		name = "audio"
	}
	return resp.Body, name, nil
}

func (r asrResponse) transcript(language string) models.Transcript {
	out := models.Transcript{Language: strings.ToLower(r.Language), Duration: r.Duration}
	if out.Language == "" {
		out.Language = language
	}
	texts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		out.Segments = append(out.Segments, models.Utterance{
			Text:        s.Text,
			Start:       s.Start,
			End:         s.End,
			SpeakerHint: s.Speaker,
		})
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
	}
	out.Text = strings.Join(texts, " ")
	return out
}

var _ Transcriber = (*HTTPASR)(nil)
