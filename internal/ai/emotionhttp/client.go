// Package emotionhttp classifies text through an HTTP emotion-detection
// service exposing POST /detect and GET /health.
package emotionhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

type detectRequest struct {
	Text string `json:"text"`
}

type emotionScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type detectResponse struct {
	Emotions        []emotionScore `json:"emotions"`
	DominantEmotion string         `json:"dominant_emotion"`
}

// Client implements models.Classifier against an emotion service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the service at baseURL. An empty token
// sends no Authorization header.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "emotion-http" }

// Classify returns the highest scoring emotion. When the service lists no
// scores, the dominant emotion is returned with confidence 0.5.
func (c *Client) Classify(ctx context.Context, text string) (models.Classification, error) {
	body, err := json.Marshal(detectRequest{Text: text})
	if err != nil {
		return models.Classification{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return models.Classification{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Classification{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Classification{}, fmt.Errorf("%w: status %d: %s", ai.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Classification{}, fmt.Errorf("%w: decoding: %v", ai.ErrInvalidResponse, err)
	}
	return top(out)
}

// Ready checks the service health endpoint.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: emotion service not ready (status %d)", ai.ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

func top(r detectResponse) (models.Classification, error) {
	var best emotionScore
	for _, e := range r.Emotions {
		if e.Label != "" && e.Score > best.Score {
			best = e
		}
	}
	if best.Label != "" {
		return models.Classification{Label: strings.ToLower(best.Label), Score: min(best.Score, 1)}, nil
	}
	if r.DominantEmotion != "" {
		return models.Classification{Label: strings.ToLower(r.DominantEmotion), Score: models.DefaultConfidence}, nil
	}
	return models.Classification{}, fmt.Errorf("%w: no emotions in response", ai.ErrInvalidResponse)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ai.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ai.ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ai.ErrProviderUnavailable, err)
}

var _ models.Classifier = (*Client)(nil)
