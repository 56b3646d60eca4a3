// Package admission gates new submissions with email allow/block rules and
// sliding-window rate limits.
package admission

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/diskseek/diskseek/internal/search"
)

var ruleCharset = regexp.MustCompile(`^[a-z0-9@.*]+$`)

// CompileRule translates the rule mini-syntax into a regular expression.
// Three forms are supported:
//
//	user*@example.com   full-address match, * is a wildcard
//	*.example.com       domain suffix match including subdomains
//	example.com         domain match, * is a wildcard
func CompileRule(rule string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(rule))
	if raw == "" {
		return "", fmt.Errorf("empty rule")
	}
	if !ruleCharset.MatchString(raw) {
		return "", fmt.Errorf("rule %q: only letters, digits, @, . and * are allowed", rule)
	}

	if strings.Contains(raw, "@") {
		return "^" + expandWildcards(raw) + "$", nil
	}

	if strings.HasPrefix(raw, "*.") {
		suffix := raw[2:]
		if suffix == "" {
			return "", fmt.Errorf("rule %q: missing domain suffix", rule)
		}
		return `^.*@(?:.*\.)?` + regexp.QuoteMeta(suffix) + "$", nil
	}

	return "^.*@" + expandWildcards(raw) + "$", nil
}

func expandWildcards(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(c)))
	}
	return b.String()
}

// RuleSet is a compiled snapshot of the enabled email rules.
type RuleSet struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewRuleSet compiles enabled rules. Rules whose pattern does not compile
// are skipped, failing open for that rule only.
func NewRuleSet(rules []search.EmailRule) *RuleSet {
	rs := &RuleSet{}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		pattern := r.Pattern
		if pattern == "" {
			compiled, err := CompileRule(r.Rule)
			if err != nil {
				continue
			}
			pattern = compiled
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		switch r.ListType {
		case search.RuleAllow:
			rs.allow = append(rs.allow, re)
		case search.RuleBlock:
			rs.block = append(rs.block, re)
		}
	}
	return rs
}

// Allowed evaluates an address against the rule set. Block rules win
// unconditionally; when any allow rules exist, at least one must match.
func (rs *RuleSet) Allowed(email string) bool {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return false
	}
	for _, re := range rs.block {
		if re.MatchString(addr) {
			return false
		}
	}
	if len(rs.allow) == 0 {
		return true
	}
	for _, re := range rs.allow {
		if re.MatchString(addr) {
			return true
		}
	}
	return false
}
