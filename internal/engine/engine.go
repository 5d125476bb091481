// Package engine defines the capability boundary to the external
// policy-evaluation engine and ships the Cloud Custodian adapter.
package engine

import (
	"context"

	"github.com/devsec-ops/policy-dispatcher/internal/models"
)

// RunOptions configures one engine invocation.
type RunOptions struct {
	// Region the engine evaluates resources in.
	Region string

	// DryRun evaluates filters without taking actions.
	DryRun bool
}

// RunResult is what the engine reports back for one policy run.
type RunResult struct {
	// ResourceCount is the number of resources the policy matched.
	ResourceCount int

	// ActionErrors lists per-action failures reported by the engine.
	// A non-empty list means the run partially failed even when the
	// engine process itself exited cleanly.
	ActionErrors []string
}

// PolicyEngine evaluates one policy definition under a credential grant.
//
// Implementations must not retain the grant beyond the call and must honour
// ctx cancellation. The dispatcher treats the definition as a black box;
// only the engine interprets filters and actions.
type PolicyEngine interface {
	Run(ctx context.Context, def *models.PolicyDefinition, grant *models.CredentialGrant, opts RunOptions) (*RunResult, error)
}
