// Package mapping models the account-policy mapping document and resolves
// (account, event name) pairs to ordered policy lists.
//
// The document is authored out of band and fetched fresh per dispatch; the
// dispatcher never mutates it.
package mapping

// Document is the versioned account-policy mapping.
type Document struct {
	Version int `yaml:"version"`

	// Defaults is the global fallback policy list applied to accounts
	// absent from the mapping (and to mapped accounts without their own
	// default). Order is significant: first-listed policies run first.
	Defaults []string `yaml:"defaults"`

	// Accounts maps a 12-digit account identifier to its entry.
	Accounts map[string]AccountEntry `yaml:"accounts"`
}

// AccountEntry describes one account's routing.
type AccountEntry struct {
	// Name is the human-readable account name, informational only.
	Name string `yaml:"name"`

	// Environment tags the account (e.g. "prod", "staging").
	Environment string `yaml:"environment"`

	// Events maps an event name to the ordered policy list for it.
	// A matching entry fully overrides Default and the global defaults;
	// lists are never merged.
	Events map[string][]string `yaml:"events"`

	// Default is the account-level fallback for events with no entry in
	// Events. It takes precedence over the document-level Defaults.
	Default []string `yaml:"default"`

	// AlsoDispatchTo lists additional target accounts that process a
	// copy of every event originating in this account.
	AlsoDispatchTo []string `yaml:"also_dispatch_to"`
}
