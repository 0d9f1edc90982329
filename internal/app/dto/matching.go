package dto

import (
	"time"

	"kindbossing/internal/domain/matching"
)

// Candidate is an application card shown to the employer.
type Candidate struct {
	ApplicationID string    `json:"application_id"`
	JobID         string    `json:"job_id"`
	ApplicantID   string    `json:"applicant_id"`
	Name          string    `json:"name"`
	Headline      string    `json:"headline,omitempty"`
	AppliedAt     time.Time `json:"applied_at"`
}

type CandidateList struct {
	Items  []Candidate `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

type Decision struct {
	ApplicationID  string    `json:"application_id"`
	Status         string    `json:"status"`
	ConversationID string    `json:"conversation_id,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
}

func MapCandidate(app *matching.Application) Candidate {
	if app == nil {
		return Candidate{}
	}
	return Candidate{
		ApplicationID: string(app.ID),
		JobID:         app.JobID,
		ApplicantID:   app.ApplicantID,
		Name:          app.ApplicantName,
		Headline:      app.Headline,
		AppliedAt:     app.AppliedAt,
	}
}
