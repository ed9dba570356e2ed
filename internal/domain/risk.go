package domain

// RiskReport is the classifier output for one command evaluation.
// It is surfaced to the user for the approval decision and persisted with
// the proposal only if the command proceeds.
type RiskReport struct {
	Tier             RiskTier      `json:"tier"`
	Reversibility    Reversibility `json:"reversibility"`
	Privilege        Privilege     `json:"privilege"`
	MatchedRules     []string      `json:"matched_rules,omitempty"`
	ProtectedPaths   []string      `json:"protected_paths,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
	SaferAlternative string        `json:"safer_alternative,omitempty"`

	// Blocked marks a deny-list match. It is absolute: approval can never
	// override it, and repeated approve attempts keep failing.
	Blocked bool `json:"blocked"`
}
