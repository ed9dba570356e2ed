// Package domain defines core business entities and value objects for safecmd.
//
// The domain layer is independent of infrastructure concerns and represents
// pure business logic and data structures: proposed commands, risk reports,
// backups, change records and rollback artifacts.
package domain

import "time"

// RiskTier is the coarse severity classification assigned by the classifier.
// It governs whether backup, restore-point creation, or outright blocking is
// required before a command may execute.
type RiskTier string

const (
	TierSafe     RiskTier = "safe"
	TierCaution  RiskTier = "caution"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// Severity orders tiers so rule evaluation can fold to the maximum tier.
func (t RiskTier) Severity() int {
	switch t {
	case TierSafe:
		return 0
	case TierCaution:
		return 1
	case TierHigh:
		return 2
	case TierCritical:
		return 3
	default:
		return 3
	}
}

// MoreSevere reports whether t outranks other.
func (t RiskTier) MoreSevere(other RiskTier) bool {
	return t.Severity() > other.Severity()
}

// Reversibility describes whether a command's effect can be undone.
type Reversibility string

const (
	ReversibilityFull    Reversibility = "full"
	ReversibilityPartial Reversibility = "partial"
	ReversibilityNone    Reversibility = "none"
)

// Privilege is the privilege level a command needs on the host.
type Privilege string

const (
	PrivilegeUser  Privilege = "user"
	PrivilegeAdmin Privilege = "admin"
)

// Command is the immutable value created by the classifier for a proposed
// command. Fields are never mutated after creation; state progression lives
// on the Proposal wrapper, not here.
type Command struct {
	ID            string        `json:"id"`
	Raw           string        `json:"raw"`
	Intent        string        `json:"intent,omitempty"`
	Privilege     Privilege     `json:"privilege"`
	Tier          RiskTier      `json:"tier"`
	Reversibility Reversibility `json:"reversibility"`
	CreatedAt     time.Time     `json:"created_at"`
}
