package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/devsec-ops/policy-dispatcher/internal/models"
)

// CustodianEngine runs policies through the Cloud Custodian CLI. Each run
// gets its own scratch directory: the definition is written to a temp file,
// the CLI executes it with the grant's credentials injected via environment,
// and the per-policy resources.json output is read back for the match count.
type CustodianEngine struct {
	binary string
	logger *slog.Logger
}

// NewCustodianEngine returns an engine invoking binary ("custodian" when
// empty, resolved via PATH).
func NewCustodianEngine(binary string, logger *slog.Logger) *CustodianEngine {
	if binary == "" {
		binary = "custodian"
	}
	return &CustodianEngine{binary: binary, logger: logger}
}

// Run implements PolicyEngine. The subprocess inherits the parent
// environment with the AWS credential variables replaced by the grant's, so
// the engine acts in the target account and nothing else leaks across.
func (e *CustodianEngine) Run(ctx context.Context, def *models.PolicyDefinition, grant *models.CredentialGrant, opts RunOptions) (*RunResult, error) {
	workDir, err := os.MkdirTemp("", "policy-run-")
	if err != nil {
		return nil, fmt.Errorf("create engine scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	policyFile := filepath.Join(workDir, def.Name+".yml")
	if err := os.WriteFile(policyFile, def.Body, 0o600); err != nil {
		return nil, fmt.Errorf("write policy file for %q: %w", def.Name, err)
	}

	outputDir := filepath.Join(workDir, "output")
	cmd := exec.CommandContext(ctx, e.binary, buildArgs(policyFile, outputDir, opts)...)
	cmd.Env = credentialEnv(os.Environ(), grant, opts.Region)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("engine run %q: %w: %s", def.Name, err, tail(string(output), 512))
	}

	result := &RunResult{ResourceCount: countResources(outputDir)}
	result.ActionErrors = scanActionErrors(string(output))

	e.logger.Debug("engine run completed",
		"policy", def.Name, "account", grant.TargetAccountID,
		"resources", result.ResourceCount, "action_errors", len(result.ActionErrors))
	return result, nil
}

// buildArgs assembles the CLI argument list for one run.
func buildArgs(policyFile, outputDir string, opts RunOptions) []string {
	args := []string{"run", "-s", outputDir}
	if opts.Region != "" {
		args = append(args, "--region", opts.Region)
	}
	if opts.DryRun {
		args = append(args, "--dryrun")
	}
	return append(args, policyFile)
}

// credentialEnv returns base with the AWS credential variables replaced by
// the grant's temporary keys and the region pinned. Existing credential
// variables are dropped first so ambient identity can never shadow the grant.
func credentialEnv(base []string, grant *models.CredentialGrant, region string) []string {
	env := make([]string, 0, len(base)+4)
	for _, kv := range base {
		switch {
		case strings.HasPrefix(kv, "AWS_ACCESS_KEY_ID="),
			strings.HasPrefix(kv, "AWS_SECRET_ACCESS_KEY="),
			strings.HasPrefix(kv, "AWS_SESSION_TOKEN="),
			strings.HasPrefix(kv, "AWS_PROFILE="):
			continue
		}
		env = append(env, kv)
	}
	env = append(env,
		"AWS_ACCESS_KEY_ID="+grant.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY="+grant.SecretAccessKey,
		"AWS_SESSION_TOKEN="+grant.SessionToken,
	)
	if region != "" {
		env = append(env, "AWS_DEFAULT_REGION="+region)
	}
	return env
}

// countResources sums the entries of every resources.json the engine wrote
// under outputDir (one subdirectory per policy in the definition).
func countResources(outputDir string) int {
	matches, err := filepath.Glob(filepath.Join(outputDir, "*", "resources.json"))
	if err != nil {
		return 0
	}
	total := 0
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var resources []json.RawMessage
		if err := json.Unmarshal(data, &resources); err != nil {
			continue
		}
		total += len(resources)
	}
	return total
}

// scanActionErrors extracts ERROR lines from the engine's combined output.
// The CLI exits zero even when individual actions fail, so the log is the
// only signal for partial action failure.
func scanActionErrors(output string) []string {
	var errs []string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "ERROR") {
			errs = append(errs, strings.TrimSpace(line))
		}
	}
	return errs
}

// tail returns at most n trailing bytes of s for error messages.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
