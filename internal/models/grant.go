package models

import "time"

// CredentialGrant is a time-boxed, scoped set of temporary credentials for
// one target account. Grants are minted per dispatch, used for a single
// orchestration pass, and never cached or persisted.
type CredentialGrant struct {
	// TargetAccountID is the 12-digit account the grant is scoped to.
	TargetAccountID string `json:"target_account_id"`

	// RoleARN is the fully qualified role assumed in the target account.
	RoleARN string `json:"role_arn"`

	// ExternalID is the pre-registered identifier presented during the
	// trust exchange. It must match the target account's trust policy.
	ExternalID string `json:"-"`

	// SessionName identifies this grant in the target account's audit log.
	SessionName string `json:"session_name"`

	// Expiry is when the credentials stop being valid. The orchestrator
	// checks it before every engine invocation.
	Expiry time.Time `json:"expiry"`

	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
	SessionToken    string `json:"-"`
}

// Expired reports whether the grant is no longer usable at now.
// A zero Expiry counts as expired so an unpopulated grant can never be used.
func (g *CredentialGrant) Expired(now time.Time) bool {
	return g.Expiry.IsZero() || !now.Before(g.Expiry)
}
