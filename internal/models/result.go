package models

import "time"

// ExecutionStatus is the outcome of one policy execution attempt.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailure ExecutionStatus = "failure"
	StatusSkipped ExecutionStatus = "skipped"
)

// ExecutionResult records the outcome of running one policy against one
// target account. It is the atomic output unit of the orchestrator.
type ExecutionResult struct {
	PolicyName string          `json:"policy_name"`
	AccountID  string          `json:"account_id"`
	Region     string          `json:"region"`
	Status     ExecutionStatus `json:"status"`

	// Reason carries the skip reason or failure detail. Empty on success.
	Reason string `json:"reason,omitempty"`

	// ResourceCount is the number of resources the policy matched.
	ResourceCount int `json:"resource_count"`

	Duration time.Duration `json:"duration_ns"`
}

// DispatchStatus is the overall outcome of one dispatch invocation.
type DispatchStatus string

const (
	DispatchOK       DispatchStatus = "ok"
	DispatchPartial  DispatchStatus = "partial"
	DispatchFailed   DispatchStatus = "failed"
	DispatchNoOp     DispatchStatus = "no-op"
	DispatchRejected DispatchStatus = "rejected"
)

// DispatchFailure is one entry in the report's failure list: which policy
// failed or was skipped, where, and why.
type DispatchFailure struct {
	PolicyName string          `json:"policy_name"`
	AccountID  string          `json:"account_id"`
	Status     ExecutionStatus `json:"status"`
	Reason     string          `json:"reason"`
}

// DispatchReport is the structured summary of one complete dispatch,
// handed to logging and monitoring collaborators. The dispatcher itself
// never persists or transmits it.
type DispatchReport struct {
	DispatchID string         `json:"dispatch_id"`
	Source     SourceType     `json:"source"`
	AccountID  string         `json:"account_id"`
	EventName  string         `json:"event_name"`
	Status     DispatchStatus `json:"status"`

	// Reason is populated only for rejected dispatches.
	Reason string `json:"reason,omitempty"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	Failures []DispatchFailure `json:"failures,omitempty"`
	Results  []ExecutionResult `json:"results,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
