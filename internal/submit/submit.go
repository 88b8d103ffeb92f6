// Package submit defines the ledger submission boundary. The pipeline hands
// each epoch's final weight vector to a Submitter exactly once; retry and
// backoff, if any, belong behind this interface, never in the pipeline.
package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/adgrid-network/weightd/internal/logger"
	"github.com/adgrid-network/weightd/internal/models"
	"github.com/adgrid-network/weightd/internal/storage"
)

// Submission is one epoch's final weight vector plus the metadata the ledger
// transport needs to attribute it.
type Submission struct {
	IterationID string
	Weights     map[string]float64
	MechanismID int
	Campaigns   int
	Beneficiary string
}

// Submitter pushes one weight vector to the ledger. The returned message is
// human-readable transport feedback; a non-nil error means the vector did not
// reach the ledger and the previous on-chain weights stay authoritative.
type Submitter interface {
	Submit(ctx context.Context, sub *Submission) (string, error)
}

// DryRun logs the vector instead of sending it anywhere. It stands in for
// the chain transport during local runs and tests.
type DryRun struct{}

// Submit logs the submission and reports success.
func (DryRun) Submit(_ context.Context, sub *Submission) (string, error) {
	var total float64
	for _, w := range sub.Weights {
		total += w
	}
	logger.Info("Dry-run submission %s: %d weights over %d campaigns (sum=%.6f)",
		sub.IterationID, len(sub.Weights), sub.Campaigns, total)
	return fmt.Sprintf("dry-run: %d weights not sent to ledger", len(sub.Weights)), nil
}

// Recorder decorates a Submitter with an audit-trail write. The attempt is
// recorded whether or not the inner submitter succeeded.
type Recorder struct {
	next  Submitter
	store *storage.Storage
}

// NewRecorder wraps next so every submission attempt lands in storage.
func NewRecorder(next Submitter, store *storage.Storage) *Recorder {
	return &Recorder{next: next, store: store}
}

// Submit forwards to the wrapped submitter and records the outcome.
func (r *Recorder) Submit(ctx context.Context, sub *Submission) (string, error) {
	msg, err := r.next.Submit(ctx, sub)

	rec := &models.SubmissionRecord{
		IterationID: sub.IterationID,
		SubmittedAt: time.Now(),
		Success:     err == nil,
		Message:     msg,
		Weights:     sub.Weights,
	}
	if err != nil {
		rec.Message = err.Error()
	}
	if recErr := r.store.RecordSubmission(rec); recErr != nil {
		logger.Warn("Failed to record submission %s: %v", sub.IterationID, recErr)
	}
	return msg, err
}
