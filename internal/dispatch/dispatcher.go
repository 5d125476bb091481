// Package dispatch wires validation, resolution, credential brokering, and
// policy execution into one stateless pipeline. One Dispatch call processes
// one inbound event end to end; invocations share no mutable state, so
// callers may run them arbitrarily in parallel.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devsec-ops/policy-dispatcher/internal/engine"
	"github.com/devsec-ops/policy-dispatcher/internal/event"
	"github.com/devsec-ops/policy-dispatcher/internal/mapping"
	"github.com/devsec-ops/policy-dispatcher/internal/models"
	"github.com/devsec-ops/policy-dispatcher/internal/policystore"
	"github.com/devsec-ops/policy-dispatcher/internal/report"
)

// CredentialBroker mints a grant for one target account.
type CredentialBroker interface {
	Assume(ctx context.Context, targetAccount string) (*models.CredentialGrant, error)
}

// Options tunes per-dispatch behaviour.
type Options struct {
	// DefaultRegion is used when the envelope carries no region.
	DefaultRegion string

	// DryRun asks the engine to evaluate filters without acting.
	DryRun bool
}

// Dispatcher is the production orchestrator. All collaborators are
// interfaces so tests swap them without touching dispatch logic.
type Dispatcher struct {
	mapping mapping.Source
	store   policystore.Store
	broker  CredentialBroker
	engine  engine.PolicyEngine
	opts    Options
	logger  *slog.Logger

	// now is replaceable in tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a Dispatcher from its collaborators.
func New(src mapping.Source, store policystore.Store, b CredentialBroker, eng engine.PolicyEngine, opts Options, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mapping: src,
		store:   store,
		broker:  b,
		engine:  eng,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch processes one raw inbound payload end to end and returns the
// dispatch report.
//
// A validation failure yields a rejected report and a nil error: malformed
// events are logged and dropped, never retried. A non-nil error is returned
// only for infrastructure failures (mapping document unavailable) where the
// invoking trigger should retry the whole event — the dispatcher is
// idempotent, so re-invocation with the same payload is safe.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (*models.DispatchReport, error) {
	started := d.now().UTC()
	dispatchID := "dispatch-" + uuid.NewString()

	env, err := event.Validate(raw)
	if err != nil {
		d.logger.Warn("event rejected at validation", "dispatch_id", dispatchID, "reason", err.Error())
		return report.Rejected(dispatchID, err.Error(), started, d.now().UTC()), nil
	}

	log := d.logger.With(
		"dispatch_id", dispatchID,
		"source", env.Source,
		"account", env.AccountID,
		"event_name", env.EventName,
	)

	doc, err := d.mapping.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", dispatchID, err)
	}

	targets := mapping.Targets(doc, env.AccountID)

	// Per-target branches are fully isolated (own grant, own result slice),
	// so they run in parallel; policies inside a branch stay sequential.
	branches := make([][]models.ExecutionResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		policies := mapping.Resolve(doc, target, env.EventName)
		if len(policies) == 0 {
			log.Info("no policies resolved", "target_account", target)
			continue
		}
		wg.Add(1)
		go func(i int, target string, policies []string) {
			defer wg.Done()
			branches[i] = d.runAccount(ctx, log, env, target, policies)
		}(i, target, policies)
	}
	wg.Wait()

	var results []models.ExecutionResult
	for _, branch := range branches {
		results = append(results, branch...)
	}

	rep := report.Build(dispatchID, env, results, started, d.now().UTC())
	log.Info("dispatch completed",
		"status", rep.Status,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
	)
	return rep, nil
}

// runAccount executes one target account's policy list under a fresh grant.
//
// Policies run strictly sequentially in resolved order because later
// policies may depend on side effects of earlier ones (tagging before
// remediation). A failure records its result and execution continues with
// the remaining policies. A failed trust exchange skips the entire list —
// for this account only.
func (d *Dispatcher) runAccount(ctx context.Context, log *slog.Logger, env *models.Envelope, target string, policies []string) []models.ExecutionResult {
	region := env.Region
	if region == "" {
		region = d.opts.DefaultRegion
	}

	grant, err := d.broker.Assume(ctx, target)
	if err != nil {
		log.Error("credential grant unavailable", "target_account", target, "error", err.Error())
		return skipAll(policies, target, region, "credential unavailable: "+err.Error())
	}

	results := make([]models.ExecutionResult, 0, len(policies))
	for i, name := range policies {
		// The grant must be live before every invocation, not just the
		// first: a long branch must not run past its expiry mid-list.
		if grant.Expired(d.now()) {
			log.Warn("credential grant expired mid-branch", "target_account", target, "policy", name)
			results = append(results, skipAll(policies[i:], target, region, "credential grant expired")...)
			break
		}
		results = append(results, d.runPolicy(ctx, log, name, target, region, grant))
	}
	return results
}

// runPolicy fetches one definition and executes it, mapping every failure
// mode to a typed result. Nothing escapes to the caller unguarded.
func (d *Dispatcher) runPolicy(ctx context.Context, log *slog.Logger, name, target, region string, grant *models.CredentialGrant) models.ExecutionResult {
	result := models.ExecutionResult{
		PolicyName: name,
		AccountID:  target,
		Region:     region,
	}

	def, err := d.store.Fetch(ctx, name)
	if err != nil {
		// All fetch failures skip the policy and continue the branch.
		result.Status = models.StatusSkipped
		result.Reason = err.Error()
		log.Warn("policy definition unavailable", "policy", name, "target_account", target, "reason", err.Error())
		return result
	}

	start := d.now()
	run, err := d.engine.Run(ctx, def, grant, engine.RunOptions{Region: region, DryRun: d.opts.DryRun})
	result.Duration = d.now().Sub(start)

	switch {
	case err != nil:
		result.Status = models.StatusFailure
		result.Reason = err.Error()
		log.Error("policy execution failed", "policy", name, "target_account", target, "error", err.Error())
	case len(run.ActionErrors) > 0:
		result.Status = models.StatusFailure
		result.Reason = fmt.Sprintf("%d action error(s): %s", len(run.ActionErrors), run.ActionErrors[0])
		result.ResourceCount = run.ResourceCount
	default:
		result.Status = models.StatusSuccess
		result.ResourceCount = run.ResourceCount
	}
	return result
}

// skipAll records one skipped result per policy with a shared reason.
func skipAll(policies []string, target, region, reason string) []models.ExecutionResult {
	results := make([]models.ExecutionResult, 0, len(policies))
	for _, name := range policies {
		results = append(results, models.ExecutionResult{
			PolicyName: name,
			AccountID:  target,
			Region:     region,
			Status:     models.StatusSkipped,
			Reason:     reason,
		})
	}
	return results
}
