package reconcile

import "strings"

// AliasRule rewrites a broker token that contains Contains. When Remove is
// set the substring is dropped; otherwise the token is split on "_" and the
// Segment-th part is kept.
type AliasRule struct {
	Contains string
	Segment  int
	Remove   string
}

// DefaultAliasRules maps region-qualified names to the canonical ids used by
// failed-signal records: BROKER_LONDON1 becomes LONDON1 and BROKER_NY_A
// becomes NY_A.
func DefaultAliasRules() []AliasRule {
	return []AliasRule{
		{Contains: "LONDON", Segment: 1},
		{Contains: "NY", Remove: "BROKER_"},
	}
}

// AliasNormalizer applies alias rules in order. A nil normalizer leaves
// tokens unchanged.
type AliasNormalizer struct {
	rules []AliasRule
}

// NewAliasNormalizer creates a normalizer for the given rules.
func NewAliasNormalizer(rules ...AliasRule) *AliasNormalizer {
	return &AliasNormalizer{rules: rules}
}

// Normalize returns the canonical form of a broker token. Every matching
// rule fires, each on the output of the previous one.
func (n *AliasNormalizer) Normalize(token string) string {
	if n == nil {
		return token
	}
	for _, r := range n.rules {
		if r.Contains == "" || !strings.Contains(token, r.Contains) {
			continue
		}
		if r.Remove != "" {
			token = strings.ReplaceAll(token, r.Remove, "")
			continue
		}
		parts := strings.Split(token, "_")
		if r.Segment >= 0 && r.Segment < len(parts) {
			token = parts[r.Segment]
		}
	}
	return token
}
