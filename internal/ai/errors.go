package ai

import "errors"

var (
	ErrProviderUnavailable = errors.New("classifier provider unavailable")
	ErrInferenceTimeout    = errors.New("classifier inference timeout")
	ErrInvalidResponse     = errors.New("classifier returned invalid response")
	ErrUnsupportedTask     = errors.New("classifier provider does not support task")
)

// Task is the job a classifier is configured for.
type Task string

const (
	TaskSentiment  Task = "sentiment"
	TaskResolution Task = "resolution"
)
