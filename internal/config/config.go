// Package config holds the dispatcher's explicit configuration. There are
// no process-wide mutable singletons: a Config is loaded once and passed
// into the dispatcher at construction time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable keys, one per Config field. The Lambda deployment
// configures everything through these.
const (
	EnvMappingBucket      = "MAPPING_BUCKET"
	EnvMappingKey         = "MAPPING_KEY"
	EnvPolicyBucket       = "POLICY_BUCKET"
	EnvPolicyPrefix       = "POLICY_PREFIX"
	EnvRoleName           = "DISPATCH_ROLE_NAME"
	EnvExternalIDTemplate = "DISPATCH_EXTERNAL_ID"
	EnvSessionDuration    = "SESSION_DURATION"
	EnvDefaultRegion      = "DISPATCH_DEFAULT_REGION"
	EnvDryRun             = "DISPATCH_DRY_RUN"
	EnvEngineBinary       = "ENGINE_BINARY"
)

// Defaults applied by Load* when a field is unset.
const (
	DefaultMappingKey      = "accounts.yml"
	DefaultPolicyPrefix    = "policies"
	DefaultSessionDuration = 15 * time.Minute
	DefaultEngineBinary    = "custodian"
)

// Config is the full dispatcher configuration.
type Config struct {
	// MappingBucket / MappingKey locate the account-policy mapping
	// document in the object store.
	MappingBucket string `yaml:"mapping_bucket"`
	MappingKey    string `yaml:"mapping_key"`

	// PolicyBucket / PolicyPrefix locate policy definitions; each policy
	// lives at <prefix>/<name>.yml.
	PolicyBucket string `yaml:"policy_bucket"`
	PolicyPrefix string `yaml:"policy_prefix"`

	// RoleName is the role assumed in target accounts. May contain
	// "{account_id}".
	RoleName string `yaml:"role_name"`

	// ExternalIDTemplate is the external identifier presented during the
	// trust exchange. May contain "{account_id}".
	ExternalIDTemplate string `yaml:"external_id_template"`

	// SessionDuration bounds each credential grant.
	SessionDuration time.Duration `yaml:"session_duration"`

	// DefaultRegion is used when an envelope carries no region.
	DefaultRegion string `yaml:"default_region"`

	// DryRun asks the engine to evaluate without acting.
	DryRun bool `yaml:"dry_run"`

	// EngineBinary is the policy engine CLI to invoke.
	EngineBinary string `yaml:"engine_binary"`
}

// FromEnv builds a Config from environment variables, applying defaults for
// unset optional fields. It does not validate; call Validate separately so
// callers can collect every problem at once.
func FromEnv() (*Config, error) {
	cfg := &Config{
		MappingBucket:      os.Getenv(EnvMappingBucket),
		MappingKey:         os.Getenv(EnvMappingKey),
		PolicyBucket:       os.Getenv(EnvPolicyBucket),
		PolicyPrefix:       os.Getenv(EnvPolicyPrefix),
		RoleName:           os.Getenv(EnvRoleName),
		ExternalIDTemplate: os.Getenv(EnvExternalIDTemplate),
		DefaultRegion:      os.Getenv(EnvDefaultRegion),
		DryRun:             os.Getenv(EnvDryRun) == "true",
		EngineBinary:       os.Getenv(EnvEngineBinary),
	}

	if raw := os.Getenv(EnvSessionDuration); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", EnvSessionDuration, raw, err)
		}
		cfg.SessionDuration = d
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads a yaml config file, applying the same defaults as FromEnv.
// Used by the CLI; the Lambda is env-only.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MappingKey == "" {
		c.MappingKey = DefaultMappingKey
	}
	if c.PolicyPrefix == "" {
		c.PolicyPrefix = DefaultPolicyPrefix
	}
	if c.SessionDuration <= 0 {
		c.SessionDuration = DefaultSessionDuration
	}
	if c.EngineBinary == "" {
		c.EngineBinary = DefaultEngineBinary
	}
}

// Validate returns every configuration problem found. An empty slice means
// the config is usable for a store-backed dispatch.
func (c *Config) Validate() []error {
	var errs []error
	if c.MappingBucket == "" {
		errs = append(errs, fmt.Errorf("mapping bucket is required (%s)", EnvMappingBucket))
	}
	if c.PolicyBucket == "" {
		errs = append(errs, fmt.Errorf("policy bucket is required (%s)", EnvPolicyBucket))
	}
	if c.RoleName == "" {
		errs = append(errs, fmt.Errorf("role name is required (%s)", EnvRoleName))
	}
	if c.ExternalIDTemplate == "" {
		errs = append(errs, fmt.Errorf("external ID template is required (%s)", EnvExternalIDTemplate))
	}
	if c.SessionDuration < 15*time.Minute || c.SessionDuration > time.Hour {
		errs = append(errs, fmt.Errorf("session duration %s outside allowed range [15m, 1h]", c.SessionDuration))
	}
	return errs
}
