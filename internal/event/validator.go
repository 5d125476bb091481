// Package event normalizes raw inbound payloads into validated envelopes.
//
// Four source shapes are recognised: CloudTrail API call records, Security
// Hub compliance findings, GuardDuty threat findings, and AWS Config change
// items. Each shape has its own extractor; a payload that matches none of
// them is rejected with an unrecognized-source error rather than parsed on a
// best-effort basis.
package event

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/devsec-ops/policy-dispatcher/internal/models"
)

// ValidationReason is the machine-readable cause of a validation failure.
type ValidationReason string

const (
	ReasonBadPayload         ValidationReason = "bad-payload"
	ReasonUnrecognizedSource ValidationReason = "unrecognized-source"
	ReasonMissingField       ValidationReason = "missing-field"
	ReasonMalformedAccount   ValidationReason = "malformed-account"
)

// ValidationError describes why a payload was rejected. Rejected payloads are
// logged and dropped, never retried.
type ValidationError struct {
	Reason ValidationReason
	Source models.SourceType
	Field  string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissingField:
		return fmt.Sprintf("invalid %s event: missing field %q", e.Source, e.Field)
	case ReasonMalformedAccount:
		return fmt.Sprintf("invalid %s event: malformed account identifier", e.Source)
	case ReasonUnrecognizedSource:
		return "payload matches no recognised event source shape"
	default:
		return "payload is not valid JSON"
	}
}

// accountIDPattern is the shape of a well-formed AWS account identifier.
var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

// Validate decodes raw, matches it against the known source shapes, and
// returns a fully populated envelope or a *ValidationError. It never returns
// a partially populated envelope and has no side effects.
//
// Payloads may arrive bare or wrapped in an EventBridge envelope; the
// wrapper's "detail" object is unwrapped transparently.
func Validate(raw []byte) (*models.Envelope, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ValidationError{Reason: ReasonBadPayload}
	}

	payload = unwrapEventBridge(payload)

	switch {
	case isAuditLog(payload):
		return buildEnvelope(models.SourceAuditLog, payload, extractAuditLog)
	case isComplianceFinding(payload):
		return buildEnvelope(models.SourceComplianceFinding, payload, extractComplianceFinding)
	case isThreatFinding(payload):
		return buildEnvelope(models.SourceThreatFinding, payload, extractThreatFinding)
	case isConfigChange(payload):
		return buildEnvelope(models.SourceConfigChange, payload, extractConfigChange)
	default:
		return nil, &ValidationError{Reason: ReasonUnrecognizedSource, Source: models.SourceUnrecognized}
	}
}

// extractor pulls (accountID, eventName, region) from a matched payload.
// It reports the first missing field by name.
type extractor func(payload map[string]any) (account, eventName, region, missing string)

// buildEnvelope runs the shape-specific extractor and applies the invariants
// shared by every source: the account must be a well-formed identifier and
// the event name must be non-empty.
func buildEnvelope(source models.SourceType, payload map[string]any, extract extractor) (*models.Envelope, error) {
	account, eventName, region, missing := extract(payload)
	if missing != "" {
		return nil, &ValidationError{Reason: ReasonMissingField, Source: source, Field: missing}
	}
	if !accountIDPattern.MatchString(account) {
		return nil, &ValidationError{Reason: ReasonMalformedAccount, Source: source}
	}
	if eventName == "" {
		return nil, &ValidationError{Reason: ReasonMissingField, Source: source, Field: "event name"}
	}

	return &models.Envelope{
		Source:     source,
		AccountID:  account,
		Region:     region,
		EventName:  eventName,
		Detail:     payload,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// unwrapEventBridge returns the "detail" object when payload looks like an
// EventBridge envelope (detail-type + detail present), otherwise payload
// unchanged. The wrapper's account and region are folded into the detail as
// fallbacks when the inner shape does not carry its own.
func unwrapEventBridge(payload map[string]any) map[string]any {
	if _, ok := payload["detail-type"]; !ok {
		return payload
	}
	detail, ok := payload["detail"].(map[string]any)
	if !ok {
		return payload
	}
	if acct := str(payload, "account"); acct != "" {
		if _, set := detail["accountId"]; !set {
			detail["accountId"] = acct
		}
	}
	if region := str(payload, "region"); region != "" {
		if _, set := detail["region"]; !set {
			detail["region"] = region
		}
	}
	return detail
}

// ---------------------------------------------------------------------------
// Shape matchers and extractors
// ---------------------------------------------------------------------------

// isAuditLog matches a CloudTrail API call record: it always carries
// eventName plus eventSource or userIdentity.
func isAuditLog(p map[string]any) bool {
	if _, ok := p["eventName"]; !ok {
		return false
	}
	_, hasSource := p["eventSource"]
	_, hasIdentity := p["userIdentity"]
	return hasSource || hasIdentity
}

func extractAuditLog(p map[string]any) (string, string, string, string) {
	account := str(p, "recipientAccountId")
	if account == "" {
		if identity, ok := p["userIdentity"].(map[string]any); ok {
			account = str(identity, "accountId")
		}
	}
	if account == "" {
		account = str(p, "accountId") // EventBridge wrapper fallback
	}
	if account == "" {
		return "", "", "", "recipientAccountId"
	}
	eventName := str(p, "eventName")
	if eventName == "" {
		return "", "", "", "eventName"
	}
	region := str(p, "awsRegion")
	if region == "" {
		region = str(p, "region")
	}
	return account, eventName, region, ""
}

// isComplianceFinding matches a Security Hub finding batch ("findings" list)
// or a single ASFF finding (AwsAccountId + Types).
func isComplianceFinding(p map[string]any) bool {
	if _, ok := p["findings"].([]any); ok {
		return true
	}
	_, hasAccount := p["AwsAccountId"]
	_, hasTypes := p["Types"]
	return hasAccount && hasTypes
}

func extractComplianceFinding(p map[string]any) (string, string, string, string) {
	finding := p
	if list, ok := p["findings"].([]any); ok {
		if len(list) == 0 {
			return "", "", "", "findings"
		}
		first, ok := list[0].(map[string]any)
		if !ok {
			return "", "", "", "findings"
		}
		finding = first
	}

	account := str(finding, "AwsAccountId")
	if account == "" {
		return "", "", "", "AwsAccountId"
	}
	// Prefer the generator rule over the free-text title: generator IDs are
	// stable across finding instances and are what mappings key on.
	eventName := str(finding, "GeneratorId")
	if eventName == "" {
		eventName = str(finding, "Title")
	}
	if eventName == "" {
		return "", "", "", "GeneratorId"
	}
	region := str(finding, "Region")
	return account, eventName, region, ""
}

// isThreatFinding matches a GuardDuty finding: type + accountId + severity.
func isThreatFinding(p map[string]any) bool {
	if _, ok := p["type"]; !ok {
		return false
	}
	if _, ok := p["accountId"]; !ok {
		return false
	}
	_, hasSeverity := p["severity"]
	return hasSeverity
}

func extractThreatFinding(p map[string]any) (string, string, string, string) {
	account := str(p, "accountId")
	if account == "" {
		return "", "", "", "accountId"
	}
	eventName := str(p, "type")
	if eventName == "" {
		return "", "", "", "type"
	}
	return account, eventName, str(p, "region"), ""
}

// isConfigChange matches an AWS Config change notification carrying a
// configurationItem.
func isConfigChange(p map[string]any) bool {
	_, ok := p["configurationItem"].(map[string]any)
	return ok
}

func extractConfigChange(p map[string]any) (string, string, string, string) {
	item, _ := p["configurationItem"].(map[string]any)
	account := str(item, "awsAccountId")
	if account == "" {
		return "", "", "", "configurationItem.awsAccountId"
	}
	// Mappings key config changes on the resource type of the changed item.
	eventName := str(item, "resourceType")
	if eventName == "" {
		return "", "", "", "configurationItem.resourceType"
	}
	return account, eventName, str(item, "awsRegion"), ""
}

// str returns m[key] when it is a non-empty string, otherwise "".
func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
