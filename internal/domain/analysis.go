package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Analysis is the stored detailed evaluation of one session. Result is the
// provider's evaluation as JSON.
type Analysis struct {
	SessionID uuid.UUID       `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// AnalysisRequest is the answer to a request for detailed analysis: either
// the queued job or the analysis that already exists.
type AnalysisRequest struct {
	JobID    *uuid.UUID `json:"job_id,omitempty"`
	Existing *Analysis  `json:"analysis,omitempty"`
}

// AnalysisCacheKey is the cache key of a session's analysis.
func AnalysisCacheKey(sessionID uuid.UUID) string {
	return "analysis:" + sessionID.String()
}
