// Package spider executes a site's declarative crawl definition and emits
// discovered resource candidates.
package spider

import (
	"encoding/json"
	"fmt"

	"github.com/diskseek/diskseek/internal/search"
)

// Parse modes form a closed set; the strategy is chosen once per site when
// the spider is built.
type ParseMode int

// Supported result parse modes.
const (
	ParseHTML ParseMode = iota
	ParseJSON
	ParseRegexJSON
)

// WorkflowStep is one priming request issued before the search request,
// harvesting variables for later URL templates.
type WorkflowStep struct {
	URL     string            `json:"url"`
	Extract map[string]string `json:"extract"`
}

// ListRules hold the selectors for html parse mode.
type ListRules struct {
	ItemNodes  string `json:"item_nodes"`
	TitleNode  string `json:"title_node"`
	DetailLink string `json:"detail_link"`
}

// DetailRules hold the selectors applied to a detail page.
type DetailRules struct {
	Fields map[string]string `json:"fields"`
}

// SiteConfig is the declarative crawl definition stored per site.
type SiteConfig struct {
	Name          string            `json:"name"`
	Host          string            `json:"host"`
	Workflow      []WorkflowStep    `json:"workflow"`
	StartURL      string            `json:"start_url"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers"`
	Payload       map[string]any    `json:"payload"`
	KwField       string            `json:"kw_field"`
	ParseMode     string            `json:"parse_mode"`
	JSONItemsPath string            `json:"json_items_path"`
	JSONTitlePath string            `json:"json_title_path"`
	ExtractRegex  string            `json:"extract_regex"`
	JSONTitle     string            `json:"json_title"`
	JSONURL       string            `json:"json_url"`
	ListRules     ListRules         `json:"list_rules"`
	DetailRules   DetailRules       `json:"detail_rules"`
	HasDetail     *bool             `json:"has_detail"`
	Concurrent    int               `json:"concurrent"`
	Delay         float64           `json:"delay"`
}

// ParseSiteConfig decodes a stored site definition and fills defaults from
// the site row.
func ParseSiteConfig(site search.Site) (SiteConfig, error) {
	var cfg SiteConfig
	if len(site.Config) > 0 {
		if err := json.Unmarshal(site.Config, &cfg); err != nil {
			return SiteConfig{}, fmt.Errorf("site %s: decode config: %w", site.Key, err)
		}
	}
	if cfg.Name == "" {
		cfg.Name = site.Name
	}
	if cfg.Host == "" {
		cfg.Host = site.Host
	}
	if cfg.StartURL == "" {
		return SiteConfig{}, fmt.Errorf("site %s: start_url is required", site.Key)
	}
	if cfg.Method == "" {
		cfg.Method = "GET"
	}
	if cfg.KwField == "" {
		cfg.KwField = "keyword"
	}
	if cfg.Concurrent <= 0 {
		cfg.Concurrent = 4
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 1.0
	}
	return cfg, nil
}

// Mode resolves the configured parse mode; html is the default.
func (c SiteConfig) Mode() (ParseMode, error) {
	switch c.ParseMode {
	case "", "html":
		return ParseHTML, nil
	case "json":
		return ParseJSON, nil
	case "regex_json":
		return ParseRegexJSON, nil
	default:
		return ParseHTML, fmt.Errorf("unknown parse_mode %q", c.ParseMode)
	}
}

// DetailEnabled reports whether items have a per-item detail page.
// Unset means enabled.
func (c SiteConfig) DetailEnabled() bool {
	return c.HasDetail == nil || *c.HasDetail
}
