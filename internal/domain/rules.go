package domain

import "regexp"

// RuleNameSuffix is the required extension for rule file names.
const RuleNameSuffix = ".yar"

// MaxRuleSize is the server-enforced cap on rule content, mirrored
// client-side so oversized drafts fail before the network.
const MaxRuleSize = 1024 * 1024

// DefaultRuleName is the draft name preset for a new rule file.
const DefaultRuleName = "new_rule.yar"

// DefaultRuleTemplate seeds the editor when a new rule is started.
const DefaultRuleTemplate = `rule example_rule {
  meta:
    description = "Example YARA rule"
    author = "yaragent"
  strings:
    $a = "suspicious"
  condition:
    $a
}
`

var ruleNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+\.yar$`)

// ValidRuleName reports whether name is acceptable to the rule store.
// The server enforces the same pattern; the client fails fast.
func ValidRuleName(name string) bool {
	return ruleNamePattern.MatchString(name)
}
