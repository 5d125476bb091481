package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_AppliesDefaults(t *testing.T) {
	t.Setenv(EnvMappingBucket, "dispatch-config")
	t.Setenv(EnvPolicyBucket, "policy-defs")
	t.Setenv(EnvRoleName, "SecurityRemediation")
	t.Setenv(EnvExternalIDTemplate, "remediation-{account_id}")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MappingKey != DefaultMappingKey {
		t.Fatalf("mapping key = %q", cfg.MappingKey)
	}
	if cfg.PolicyPrefix != DefaultPolicyPrefix {
		t.Fatalf("policy prefix = %q", cfg.PolicyPrefix)
	}
	if cfg.SessionDuration != DefaultSessionDuration {
		t.Fatalf("session duration = %s", cfg.SessionDuration)
	}
	if cfg.EngineBinary != DefaultEngineBinary {
		t.Fatalf("engine binary = %q", cfg.EngineBinary)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

func TestFromEnv_ParsesDurationAndDryRun(t *testing.T) {
	t.Setenv(EnvSessionDuration, "30m")
	t.Setenv(EnvDryRun, "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionDuration != 30*time.Minute {
		t.Fatalf("session duration = %s", cfg.SessionDuration)
	}
	if !cfg.DryRun {
		t.Fatalf("dry-run not set")
	}
}

func TestFromEnv_BadDuration(t *testing.T) {
	t.Setenv(EnvSessionDuration, "soon")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{SessionDuration: time.Minute}

	errs := cfg.Validate()
	if len(errs) != 5 {
		t.Fatalf("got %d errors, want 5: %v", len(errs), errs)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pd.yaml")
	content := `
mapping_bucket: dispatch-config
policy_bucket: policy-defs
role_name: SecurityRemediation
external_id_template: remediation-{account_id}
session_duration: 20m
default_region: us-east-1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionDuration != 20*time.Minute {
		t.Fatalf("session duration = %s", cfg.SessionDuration)
	}
	if cfg.MappingKey != DefaultMappingKey {
		t.Fatalf("defaults not applied to file config")
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}
