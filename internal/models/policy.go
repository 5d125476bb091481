package models

// PolicyDefinition is an externally authored filter+action artifact fetched
// from the policy store. The dispatcher treats Body as a black box handed to
// the policy engine; only Name is interpreted (store lookup and reporting).
type PolicyDefinition struct {
	Name string
	Body []byte
}
