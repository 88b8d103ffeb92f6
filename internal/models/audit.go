package models

import (
	"errors"
	"time"
)

// Iteration outcomes recorded in the audit log.
const (
	OutcomeSubmitted = "submitted"
	OutcomeSkipped   = "skipped"
)

// IterationRecord summarizes one epoch of the weight pipeline.
type IterationRecord struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Outcome         string    `json:"outcome"`
	Campaigns       int       `json:"campaigns"`
	CampaignsFailed int       `json:"campaigns_failed"`
	Submitted       bool      `json:"submitted"`
	Message         string    `json:"message,omitempty"`
}

// Validate checks iteration record field constraints.
func (r *IterationRecord) Validate() error {
	if r.ID == "" {
		return errors.New("iteration ID must not be empty")
	}
	if r.Outcome != OutcomeSubmitted && r.Outcome != OutcomeSkipped {
		return errors.New("iteration outcome must be submitted or skipped")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return errors.New("finished at must be >= started at")
	}
	return nil
}

// SubmissionRecord is one ledger submission attempt, kept so operators can
// reconstruct exactly what was sent and whether the ledger accepted it.
type SubmissionRecord struct {
	IterationID string             `json:"iteration_id"`
	SubmittedAt time.Time          `json:"submitted_at"`
	Success     bool               `json:"success"`
	Message     string             `json:"message,omitempty"`
	Weights     map[string]float64 `json:"weights"`
}

// CampaignResult is the per-scope outcome of one iteration: how many miners
// were scored, what the campaign's weight vector looked like, and whether it
// carried emission weight into the aggregate.
type CampaignResult struct {
	IterationID  string             `json:"iteration_id"`
	Scope        string             `json:"scope"`
	MechanismID  int                `json:"mechanism_id"`
	MinersScored int                `json:"miners_scored"`
	TotalScore   float64            `json:"total_score"`
	BurnPct      float64            `json:"burn_pct"`
	Included     bool               `json:"included"`
	Weights      map[string]float64 `json:"weights"`
}
