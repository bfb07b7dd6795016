package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func AssessmentKey(id uuid.UUID) string {
	return fmt.Sprintf("assessment:%s", id)
}

// FingerprintKey maps a transcript fingerprint within a worker's scope to
// the assessment it produced.
func FingerprintKey(workerID, fingerprint string) string {
	return fmt.Sprintf("fingerprint:%s:%s", workerID, fingerprint)
}

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
