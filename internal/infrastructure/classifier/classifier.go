// Package classifier implements the risk classifier over the pattern store.
package classifier

import (
	"strings"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// Classifier assigns a risk tier and reversibility class to command text.
// Evaluation is a pure function over the loaded tables and never fails:
// input it cannot make sense of is classified CRITICAL with reversibility
// NONE (fail closed).
type Classifier struct {
	deny      []compiledDenyRule
	protected []string
	allow     map[string]struct{}
	admin     []string
}

// New compiles the pattern store into a classifier.
func New(tables Tables) (*Classifier, error) {
	deny, err := compileDenyRules(tables.DenyRules)
	if err != nil {
		return nil, err
	}
	allow := make(map[string]struct{}, len(tables.AllowVerbs))
	for _, verb := range tables.AllowVerbs {
		allow[strings.ToLower(verb)] = struct{}{}
	}
	return &Classifier{
		deny:      deny,
		protected: tables.ProtectedPaths,
		allow:     allow,
		admin:     tables.AdminKeywords,
	}, nil
}

// Load reads the rule file at path (embedded defaults when missing) and
// builds a classifier from it.
func Load(path string) (*Classifier, error) {
	tables, err := LoadTables(path)
	if err != nil {
		return nil, err
	}
	return New(tables)
}

// Classify implements ports.Classifier.
func (c *Classifier) Classify(commandText string) domain.RiskReport {
	text := strings.TrimSpace(commandText)
	if text == "" || !balanced(text) {
		return domain.RiskReport{
			Tier:          domain.TierCritical,
			Reversibility: domain.ReversibilityNone,
			Privilege:     domain.PrivilegeAdmin,
			Warnings:      []string{"command text could not be parsed; treating as critical"},
			Blocked:       false,
		}
	}

	report := domain.RiskReport{
		Tier:          domain.TierCaution,
		Reversibility: domain.ReversibilityFull,
		Privilege:     c.privilege(text),
	}

	// Deny list first: any match forces CRITICAL and permanently blocks
	// the command. Highest tier among all matches wins; nothing below can
	// override a deny match.
	for _, rule := range c.deny {
		if rule.re.MatchString(text) {
			report.Tier = domain.TierCritical
			report.Reversibility = domain.ReversibilityNone
			report.Blocked = true
			report.MatchedRules = append(report.MatchedRules, rule.rule.Name)
			report.Warnings = append(report.Warnings, rule.rule.Message)
			if report.SaferAlternative == "" {
				report.SaferAlternative = rule.rule.Alternative
			}
		}
	}

	if hits := c.protectedOverlap(text); len(hits) > 0 {
		report.ProtectedPaths = hits
		if !report.Blocked {
			if domain.TierHigh.MoreSevere(report.Tier) {
				report.Tier = domain.TierHigh
			}
			report.Reversibility = domain.ReversibilityPartial
			report.Warnings = append(report.Warnings, "command touches a protected system path")
		}
	}

	if !report.Blocked && len(report.ProtectedPaths) == 0 {
		if _, ok := c.allow[strings.ToLower(firstToken(text))]; ok {
			report.Tier = domain.TierSafe
			report.Reversibility = domain.ReversibilityFull
		} else {
			report.Tier = maxTier(report.Tier, c.destructiveTier(text, &report))
		}
	}

	report.Warnings = append(report.Warnings, syntaxWarnings(text)...)
	return report
}

// destructiveTier upgrades the default CAUTION tier for recognisably
// destructive verbs outside protected paths and fills in reversibility.
func (c *Classifier) destructiveTier(text string, report *domain.RiskReport) domain.RiskTier {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "rm ", "rmdir ", "remove-item", "del ", "unlink "):
		report.Reversibility = domain.ReversibilityFull // restorable from backup
		report.Warnings = append(report.Warnings, "command deletes files or folders")
		return domain.TierHigh
	case containsAny(lower, "uninstall", "msiexec"):
		report.Reversibility = domain.ReversibilityNone
		report.Warnings = append(report.Warnings, "uninstallation is typically not reversible")
		return domain.TierHigh
	case containsAny(lower, "stop-service", "systemctl stop", "systemctl disable", "sc stop"):
		report.Reversibility = domain.ReversibilityFull
		return domain.TierHigh
	case containsAny(lower, "reg delete", "reg add", "regedit"):
		report.Reversibility = domain.ReversibilityPartial
		report.Warnings = append(report.Warnings, "command modifies the registry")
		return domain.TierHigh
	default:
		return domain.TierCaution
	}
}

func (c *Classifier) protectedOverlap(text string) []string {
	var hits []string
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, `"'`)
		for _, prefix := range c.protected {
			if pathHasPrefix(token, prefix) {
				hits = append(hits, token)
				break
			}
		}
	}
	return hits
}

func (c *Classifier) privilege(text string) domain.Privilege {
	lower := strings.ToLower(text)
	for _, kw := range c.admin {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return domain.PrivilegeAdmin
		}
	}
	return domain.PrivilegeUser
}

// syntaxWarnings flags structural problems worth surfacing alongside the
// tier: unbalanced quoting and risky wildcard usage.
func syntaxWarnings(text string) []string {
	var warnings []string
	lower := strings.ToLower(text)
	if strings.Contains(text, "*") && containsAny(lower, "rm ", "del ", "remove") {
		warnings = append(warnings, "wildcards combined with delete can affect more than intended")
	}
	if containsAny(lower, "-rf", "-recurse", "-r ") && containsAny(lower, "rm ", "remove") {
		warnings = append(warnings, "recursive deletion can affect many files")
	}
	if strings.Contains(lower, "-force") {
		warnings = append(warnings, "-Force suppresses confirmations")
	}
	return warnings
}

func balanced(text string) bool {
	return strings.Count(text, `"`)%2 == 0 &&
		strings.Count(text, "'")%2 == 0 &&
		strings.Count(text, "(") == strings.Count(text, ")") &&
		strings.Count(text, "{") == strings.Count(text, "}")
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func pathHasPrefix(token, prefix string) bool {
	if !strings.HasPrefix(token, prefix) {
		return false
	}
	rest := token[len(prefix):]
	return rest == "" || rest[0] == '/' || rest[0] == '\\'
}

func containsAny(text string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

func maxTier(a, b domain.RiskTier) domain.RiskTier {
	if b.MoreSevere(a) {
		return b
	}
	return a
}

var _ ports.Classifier = (*Classifier)(nil)
