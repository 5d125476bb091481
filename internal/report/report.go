// Package report aggregates execution results into the structured dispatch
// summary handed to logging and monitoring collaborators. Building the
// report has no side effects; emission is the caller's responsibility.
package report

import (
	"time"

	"github.com/devsec-ops/policy-dispatcher/internal/models"
)

// Build assembles the report for one completed dispatch: per-status counts,
// the ordered failure list (failures and skips, in execution order), and the
// derived overall status.
//
// Status derivation:
//   - no results            → no-op (nothing applied; informational)
//   - no failures, no skips → ok
//   - every result failed   → failed
//   - anything else         → partial
func Build(dispatchID string, env *models.Envelope, results []models.ExecutionResult, started, completed time.Time) *models.DispatchReport {
	rep := &models.DispatchReport{
		DispatchID:  dispatchID,
		Source:      env.Source,
		AccountID:   env.AccountID,
		EventName:   env.EventName,
		Results:     results,
		StartedAt:   started,
		CompletedAt: completed,
	}

	for _, r := range results {
		switch r.Status {
		case models.StatusSuccess:
			rep.Succeeded++
		case models.StatusFailure:
			rep.Failed++
		case models.StatusSkipped:
			rep.Skipped++
		}
		if r.Status != models.StatusSuccess {
			rep.Failures = append(rep.Failures, models.DispatchFailure{
				PolicyName: r.PolicyName,
				AccountID:  r.AccountID,
				Status:     r.Status,
				Reason:     r.Reason,
			})
		}
	}

	switch {
	case len(results) == 0:
		rep.Status = models.DispatchNoOp
	case rep.Failed == 0 && rep.Skipped == 0:
		rep.Status = models.DispatchOK
	case rep.Failed == len(results):
		rep.Status = models.DispatchFailed
	default:
		rep.Status = models.DispatchPartial
	}

	return rep
}

// Rejected builds the terminal report for a payload that failed validation.
// No resolution or execution happened; the reason is the validation error.
func Rejected(dispatchID, reason string, started, completed time.Time) *models.DispatchReport {
	return &models.DispatchReport{
		DispatchID:  dispatchID,
		Source:      models.SourceUnrecognized,
		Status:      models.DispatchRejected,
		Reason:      reason,
		StartedAt:   started,
		CompletedAt: completed,
	}
}
