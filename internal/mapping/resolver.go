package mapping

// Resolve returns the ordered, de-duplicated policy list for one
// (account, event name) pair.
//
// Resolution order:
//  1. account absent from the document → the document-level defaults
//  2. event name present in the account entry → exactly that list; a match
//     fully overrides both fallbacks, lists are never merged
//  3. otherwise the account-level default, else the document-level defaults
//
// An empty result is a normal outcome, not an error. Resolution is
// deterministic: the same document and inputs always yield the same list.
func Resolve(doc *Document, accountID, eventName string) []string {
	entry, ok := doc.Accounts[accountID]
	if !ok {
		return dedupe(doc.Defaults)
	}

	if policies, ok := entry.Events[eventName]; ok {
		return dedupe(policies)
	}

	if len(entry.Default) > 0 {
		return dedupe(entry.Default)
	}
	return dedupe(doc.Defaults)
}

// Targets returns the accounts that must process an event originating in
// originAccount: the origin itself first, followed by any also_dispatch_to
// fan-out accounts in document order, de-duplicated.
func Targets(doc *Document, originAccount string) []string {
	targets := []string{originAccount}
	if entry, ok := doc.Accounts[originAccount]; ok {
		targets = append(targets, entry.AlsoDispatchTo...)
	}
	return dedupe(targets)
}

// dedupe returns a copy of list with later duplicates removed, preserving
// first-occurrence order. Callers may rely on order for dependency-like
// sequencing (e.g. a tagging policy listed before a remediation policy).
func dedupe(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, item := range list {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
