package matching

import "time"

type ApplicationApproved struct {
	ApplicationID ApplicationID `json:"application_id"`
	JobID         string        `json:"job_id"`
	EmployerID    string        `json:"employer_id"`
	ApplicantID   string        `json:"applicant_id"`
	At            time.Time     `json:"at"`
}

func (e ApplicationApproved) EventName() string     { return "application.approved" }
func (e ApplicationApproved) AggregateID() string   { return string(e.ApplicationID) }
func (e ApplicationApproved) OccurredAt() time.Time { return e.At }

type ApplicationSkipped struct {
	ApplicationID ApplicationID `json:"application_id"`
	JobID         string        `json:"job_id"`
	At            time.Time     `json:"at"`
}

func (e ApplicationSkipped) EventName() string     { return "application.skipped" }
func (e ApplicationSkipped) AggregateID() string   { return string(e.ApplicationID) }
func (e ApplicationSkipped) OccurredAt() time.Time { return e.At }
