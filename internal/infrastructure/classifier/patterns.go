package classifier

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/safecmd/assets"
)

// DenyRule describes a regex-based deny-list signature. A match is absolute:
// the command is blocked regardless of approval or allow-list overlap.
type DenyRule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Message     string `yaml:"message"`
	Alternative string `yaml:"alternative,omitempty"`
}

// Tables is the pattern store: pure data, no state. New dangerous patterns
// are added here, never as new control flow in the classifier.
type Tables struct {
	DenyRules      []DenyRule `yaml:"deny_rules"`
	ProtectedPaths []string   `yaml:"protected_paths"`
	AllowVerbs     []string   `yaml:"allow_verbs"`
	AdminKeywords  []string   `yaml:"admin_keywords"`
}

// RulesFile is the YAML schema root.
type RulesFile struct {
	Rules Tables `yaml:"rules"`
}

// LoadTables reads the rule file, falling back to the embedded defaults when
// the file is missing. A present but malformed file is an error: silently
// dropping rules would fail open.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		data = assets.DefaultRulesYAML
	}

	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Tables{}, fmt.Errorf("parse rules: %w", err)
	}
	if len(file.Rules.DenyRules) == 0 && len(file.Rules.AllowVerbs) == 0 {
		if err := yaml.Unmarshal(assets.DefaultRulesYAML, &file); err != nil {
			return Tables{}, fmt.Errorf("parse embedded rules: %w", err)
		}
	}
	return file.Rules, nil
}

type compiledDenyRule struct {
	re   *regexp.Regexp
	rule DenyRule
}

func compileDenyRules(rules []DenyRule) ([]compiledDenyRule, error) {
	var compiled []compiledDenyRule
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledDenyRule{re: re, rule: rule})
	}
	return compiled, nil
}
