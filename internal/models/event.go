package models

import "time"

// SourceType identifies which external feed produced an inbound event.
type SourceType string

const (
	SourceAuditLog          SourceType = "audit-log"
	SourceComplianceFinding SourceType = "compliance-finding"
	SourceThreatFinding     SourceType = "threat-finding"
	SourceConfigChange      SourceType = "config-change"

	// SourceUnrecognized marks payloads whose shape matched none of the
	// known feeds. Envelopes never carry it; it only appears in logs and
	// validation errors.
	SourceUnrecognized SourceType = "unrecognized"
)

// Envelope is one normalized security-relevant occurrence. It is created at
// the ingestion boundary, immutable afterwards, and discarded once the
// dispatch completes — nothing persists it.
type Envelope struct {
	// Source is the feed the payload was recognised as.
	Source SourceType `json:"source"`

	// AccountID is the 12-digit account the event originated in.
	AccountID string `json:"account_id"`

	// Region is the region the event was recorded in. May be empty for
	// global-service events; callers fall back to a configured default.
	Region string `json:"region"`

	// EventName is the feed-specific event or finding name used for
	// policy resolution (e.g. "RunInstances", a GuardDuty finding type).
	EventName string `json:"event_name"`

	// Detail is the raw decoded payload, kept opaque for downstream
	// consumers. The dispatcher never interprets it beyond extraction.
	Detail map[string]any `json:"detail,omitempty"`

	// ReceivedAt is when the dispatcher ingested the payload.
	ReceivedAt time.Time `json:"received_at"`
}
