package spider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// candidate is one potential result found on a search page. Either LinkText
// carries raw text to mine links from, or DetailURL names a page to fetch
// before extraction.
type candidate struct {
	Title     string
	LinkText  string
	DetailURL string
}

// resultParser is the per-mode parse strategy applied to the search
// response.
type resultParser interface {
	parse(body []byte, base *url.URL) ([]candidate, error)
}

// newResultParser selects the strategy for the configured parse mode.
func newResultParser(cfg SiteConfig, keyword string) (resultParser, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	switch mode {
	case ParseJSON:
		return &jsonParser{cfg: cfg, keyword: keyword}, nil
	case ParseRegexJSON:
		if cfg.ExtractRegex == "" {
			return nil, fmt.Errorf("parse_mode regex_json requires extract_regex")
		}
		re, err := regexp.Compile(cfg.ExtractRegex)
		if err != nil {
			return nil, fmt.Errorf("compile extract_regex: %w", err)
		}
		return &regexJSONParser{cfg: cfg, re: re}, nil
	default:
		return &htmlParser{cfg: cfg}, nil
	}
}

// jsonParser walks a JSON response via dotted key paths. Items whose title
// does not contain the keyword are dropped.
type jsonParser struct {
	cfg     SiteConfig
	keyword string
}

func (p *jsonParser) parse(body []byte, _ *url.URL) ([]candidate, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode json response: %w", err)
	}

	itemsPath := p.cfg.JSONItemsPath
	if itemsPath == "" {
		itemsPath = "data"
	}
	items := jsonValue(data, itemsPath)
	list, ok := items.([]any)
	if !ok {
		if items == nil {
			return nil, nil
		}
		list = []any{items}
	}

	titlePath := p.cfg.JSONTitlePath
	if titlePath == "" {
		titlePath = "name"
	}

	var out []candidate
	for _, item := range list {
		title := toString(jsonValue(item, titlePath))
		if title == "" {
			continue
		}
		if p.keyword != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(p.keyword)) {
			continue
		}

		obj, _ := item.(map[string]any)
		if !p.cfg.DetailEnabled() {
			linkText := toString(obj["url"])
			if linkText == "" {
				serialized, err := json.Marshal(item)
				if err != nil {
					continue
				}
				linkText = string(serialized)
			}
			out = append(out, candidate{Title: title, LinkText: linkText})
			continue
		}

		id := firstNonEmpty(toString(obj["id"]), toString(obj["slug"]), toString(obj["uuid"]))
		if id != "" {
			out = append(out, candidate{
				Title:     title,
				DetailURL: fmt.Sprintf("https://%s/d/%s", p.cfg.Host, id),
			})
		}
	}
	return out, nil
}

// regexJSONParser captures a JSON blob embedded in the raw body and treats
// it as an item list. No keyword filter in this mode.
type regexJSONParser struct {
	cfg SiteConfig
	re  *regexp.Regexp
}

func (p *regexJSONParser) parse(body []byte, base *url.URL) ([]candidate, error) {
	m := p.re.FindSubmatch(body)
	if len(m) < 2 {
		return nil, nil
	}
	blob := strings.ReplaceAll(string(m[1]), `\/`, "/")

	var list []map[string]any
	if err := json.Unmarshal([]byte(blob), &list); err != nil {
		return nil, fmt.Errorf("decode embedded json: %w", err)
	}

	titleKey := p.cfg.JSONTitle
	if titleKey == "" {
		titleKey = "title"
	}
	urlKey := p.cfg.JSONURL
	if urlKey == "" {
		urlKey = "url"
	}

	var out []candidate
	for _, item := range list {
		title := toString(item[titleKey])
		if !p.cfg.DetailEnabled() {
			serialized, err := json.Marshal(item)
			if err != nil {
				continue
			}
			out = append(out, candidate{Title: title, LinkText: string(serialized)})
			continue
		}
		if ref := toString(item[urlKey]); ref != "" {
			out = append(out, candidate{Title: title, DetailURL: resolveURL(base, ref)})
		}
	}
	return out, nil
}

// htmlParser enumerates item nodes via a root selector.
type htmlParser struct {
	cfg SiteConfig
}

func (p *htmlParser) parse(body []byte, base *url.URL) ([]candidate, error) {
	if p.cfg.ListRules.ItemNodes == "" {
		return nil, nil
	}
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html response: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, p.cfg.ListRules.ItemNodes)
	if err != nil {
		return nil, fmt.Errorf("item_nodes selector: %w", err)
	}

	titleExpr := p.cfg.ListRules.TitleNode
	if titleExpr == "" {
		titleExpr = ".//text()"
	}

	var out []candidate
	for _, node := range nodes {
		title := queryText(node, titleExpr)
		if strings.TrimSpace(title) == "" {
			continue
		}
		if !p.cfg.DetailEnabled() {
			out = append(out, candidate{Title: title, LinkText: htmlquery.OutputHTML(node, true)})
			continue
		}
		if p.cfg.ListRules.DetailLink == "" {
			continue
		}
		if ref := queryText(node, p.cfg.ListRules.DetailLink); ref != "" {
			out = append(out, candidate{Title: title, DetailURL: resolveURL(base, ref)})
		}
	}
	return out, nil
}

// extractDetailTitle pulls the title off a detail page, joining every
// selector match.
func extractDetailTitle(body []byte, expr string) string {
	if expr == "" {
		expr = "//title/text()"
	}
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(htmlquery.InnerText(n))
	}
	return strings.TrimSpace(b.String())
}

// extractVar evaluates a workflow extraction rule of the form
// "xpath:<expr>" or "regex:<pattern-with-one-group>" against a response.
func extractVar(body []byte, rule string) string {
	switch {
	case strings.HasPrefix(rule, "xpath:"):
		doc, err := htmlquery.Parse(bytes.NewReader(body))
		if err != nil {
			return ""
		}
		node, err := htmlquery.Query(doc, rule[len("xpath:"):])
		if err != nil || node == nil {
			return ""
		}
		return htmlquery.InnerText(node)
	case strings.HasPrefix(rule, "regex:"):
		re, err := regexp.Compile(rule[len("regex:"):])
		if err != nil {
			return ""
		}
		if m := re.FindSubmatch(body); len(m) >= 2 {
			return string(m[1])
		}
	}
	return ""
}

func queryText(node *html.Node, expr string) string {
	found, err := htmlquery.Query(node, expr)
	if err != nil || found == nil {
		return ""
	}
	return htmlquery.InnerText(found)
}

func resolveURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func jsonValue(obj any, path string) any {
	if path == "" {
		return nil
	}
	for _, key := range strings.Split(path, ".") {
		switch v := obj.(type) {
		case map[string]any:
			obj = v[key]
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			obj = v[idx]
		default:
			return nil
		}
	}
	return obj
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
