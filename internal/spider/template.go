package spider

import (
	"net/url"
	"strings"
)

// Vars is the variable map accumulated across workflow steps. The host and
// keyword are seeded at spider construction; priming steps merge what they
// extract.
type Vars map[string]string

// Render substitutes {var} placeholders. The keyword is percent-encoded so
// it can be embedded in URLs; other variables are substituted verbatim.
func (v Vars) Render(text string) string {
	for k, val := range v {
		if k == "keyword" {
			val = strings.ReplaceAll(url.QueryEscape(val), "+", "%20")
		}
		text = strings.ReplaceAll(text, "{"+k+"}", val)
	}
	return text
}

// Merge copies vars in, overwriting existing keys.
func (v Vars) Merge(extra map[string]string) {
	for k, val := range extra {
		v[k] = val
	}
}
