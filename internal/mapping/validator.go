package mapping

import (
	"fmt"
	"regexp"
)

var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

// Validate checks doc for semantic correctness and returns all validation
// errors found. An empty slice means the document is valid.
//
// Checks performed:
//   - account keys must be well-formed 12-digit identifiers
//   - also_dispatch_to entries must be well-formed 12-digit identifiers
//   - policy names must be non-empty in every list
//   - event names must be non-empty
//
// All errors are collected before returning; Validate never stops at the
// first error.
func Validate(doc *Document) []error {
	if doc == nil {
		return []error{fmt.Errorf("mapping document is nil")}
	}

	var errs []error

	for i, name := range doc.Defaults {
		if name == "" {
			errs = append(errs, fmt.Errorf("defaults[%d]: empty policy name", i))
		}
	}

	for accountID, entry := range doc.Accounts {
		if !accountIDPattern.MatchString(accountID) {
			errs = append(errs, fmt.Errorf("account %q: malformed account identifier", accountID))
		}

		for eventName, policies := range entry.Events {
			if eventName == "" {
				errs = append(errs, fmt.Errorf("account %q: empty event name", accountID))
			}
			for i, name := range policies {
				if name == "" {
					errs = append(errs, fmt.Errorf("account %q event %q: policies[%d] is empty", accountID, eventName, i))
				}
			}
		}

		for i, name := range entry.Default {
			if name == "" {
				errs = append(errs, fmt.Errorf("account %q: default[%d] is empty", accountID, i))
			}
		}

		for _, target := range entry.AlsoDispatchTo {
			if !accountIDPattern.MatchString(target) {
				errs = append(errs, fmt.Errorf("account %q: also_dispatch_to entry %q is malformed", accountID, target))
			}
		}
	}

	return errs
}
