package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kiranshivaraju/callscore/internal/api/response"
	"github.com/kiranshivaraju/callscore/pkg/models"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a size-limited JSON body into dst and validates it. On
// failure it writes a 400 INVALID_REQUEST and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{ normalize() }) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	dst.normalize()
	if err := validate.Struct(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", validationMessage(err), nil)
		return false
	}
	return true
}

// validationMessage reports the first failing field in API terms.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s entries", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte":
		return fe.Field() + " must not be negative"
	case "http_url":
		return fe.Field() + " must be an http or https URL"
	default:
		return fe.Field() + " is invalid"
	}
}

type assessRequest struct {
	WorkerID   string             `json:"worker_id" validate:"required,max=128"`
	Language   string             `json:"language" validate:"max=16"`
	Duration   float64            `json:"duration" validate:"gte=0"`
	Utterances []models.Utterance `json:"utterances" validate:"max=5000"`
}

func (r *assessRequest) normalize() {
	r.WorkerID = strings.TrimSpace(r.WorkerID)
	r.Language = strings.TrimSpace(r.Language)
}

type submitCallRequest struct {
	WorkerID string `json:"worker_id" validate:"required,max=128"`
	AudioURL string `json:"audio_url" validate:"required,http_url"`
	Language string `json:"language" validate:"max=16"`
}

func (r *submitCallRequest) normalize() {
	r.WorkerID = strings.TrimSpace(r.WorkerID)
	r.AudioURL = strings.TrimSpace(r.AudioURL)
	r.Language = strings.TrimSpace(r.Language)
}
