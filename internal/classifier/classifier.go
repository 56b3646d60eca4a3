// Package classifier extracts downloadable-resource links from raw text and
// labels them with the cloud-storage provider they belong to.
package classifier

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// UnknownLabel is assigned to links matching no rule. Such links are dropped
// from the extraction output.
const UnknownLabel = "other"

// Links are standard URLs plus the magnet/thunder/ed2k schemes common on
// resource sites.
var linkPattern = regexp.MustCompile(
	`(https?://[^\s"'><]+|magnet:\?xt=urn:btih:[a-zA-Z0-9]+|thunder://[A-Za-z0-9+/=]+|ed2k://[^\s"'><]+)`)

// Some sites hide links behind base64 blobs; only long tokens are worth
// decoding.
var base64Pattern = regexp.MustCompile(`[A-Za-z0-9+/]{40,}=*`)

const trailingPunct = ".,;)!?"

// Rule maps a link pattern to a provider label. Order matters: the first
// matching rule wins.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Name    string `yaml:"name"`
}

type compiledRule struct {
	re   *regexp.Regexp
	name string
}

type ruleTable struct {
	rules []compiledRule
}

// Classifier holds an immutable compiled rule table. Extraction is a pure
// function of its input and the table; Replace swaps the whole table for
// collaborators that reload configuration.
type Classifier struct {
	table atomic.Pointer[ruleTable]
}

// New compiles the ordered rule list into a Classifier.
func New(rules []Rule) (*Classifier, error) {
	c := &Classifier{}
	if err := c.Replace(rules); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace atomically swaps the rule table.
func (c *Classifier) Replace(rules []Rule) error {
	table := &ruleTable{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		re, err := regexp.Compile(`(?i)` + r.Pattern)
		if err != nil {
			return fmt.Errorf("compile rule %q: %w", r.Pattern, err)
		}
		table.rules = append(table.rules, compiledRule{re: re, name: r.Name})
	}
	c.table.Store(table)
	return nil
}

// Match classifies a single link, returning UnknownLabel when no rule matches.
func (c *Classifier) Match(link string) string {
	lower := strings.ToLower(strings.TrimSpace(link))
	for _, r := range c.table.Load().rules {
		if r.re.MatchString(lower) {
			return r.name
		}
	}
	return UnknownLabel
}

// Extract scans text for resource links and classifies them. Links matching
// no rule are discarded. Both returned slices preserve first-seen order and
// the label slice is deduplicated.
func (c *Classifier) Extract(text string) (links []string, labels []string) {
	text = strings.ReplaceAll(text, `\/`, "/")
	raw := linkPattern.FindAllString(text, -1)

	for _, token := range base64Pattern.FindAllString(text, -1) {
		decoded, ok := decodeBase64(token)
		if !ok {
			continue
		}
		if strings.Contains(decoded, "http") || strings.Contains(decoded, "magnet") {
			raw = append(raw, linkPattern.FindAllString(decoded, -1)...)
		}
	}

	seenLinks := make(map[string]struct{})
	seenLabels := make(map[string]struct{})
	for _, link := range raw {
		link = strings.TrimRight(link, trailingPunct)
		name := c.Match(link)
		if name == UnknownLabel {
			continue
		}
		if _, dup := seenLinks[link]; dup {
			continue
		}
		seenLinks[link] = struct{}{}
		links = append(links, link)
		if _, dup := seenLabels[name]; !dup {
			seenLabels[name] = struct{}{}
			labels = append(labels, name)
		}
	}
	return links, labels
}

// ExtractJoined returns the comma-joined link list and slash-joined label set.
func (c *Classifier) ExtractJoined(text string) (string, string) {
	links, labels := c.Extract(text)
	return strings.Join(links, ", "), strings.Join(labels, "/")
}

func decodeBase64(token string) (string, bool) {
	if b, err := base64.StdEncoding.DecodeString(token); err == nil {
		return string(b), true
	}
	if b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(token, "=")); err == nil {
		return string(b), true
	}
	return "", false
}
