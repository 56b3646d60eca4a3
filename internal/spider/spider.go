package spider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/diskseek/diskseek/internal/classifier"
	"github.com/diskseek/diskseek/internal/hash/sha256"
	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/telemetry"
)

// ErrCircuitOpen is returned by Run when the site served too many gate
// statuses in a row and the remaining requests were abandoned.
var ErrCircuitOpen = errors.New("site circuit breaker open")

// breakAfter is the consecutive 403/422/429 count that trips the breaker.
const breakAfter = 10

const requestTimeout = 20 * time.Second

// untitledPlaceholder stands in for results whose page carries no usable
// title; the links themselves are still worth keeping.
const untitledPlaceholder = "无标题"

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Item is one discovered resource, ready for persistence.
type Item struct {
	SiteName    string
	Title       string
	DiskType    string
	ResourceURL string
	SourceURL   string
}

// Deps are the collaborators shared by every spider in a run.
type Deps struct {
	Logger     *zap.Logger
	Classifier *classifier.Classifier
	Pacer      *rate.Limiter
}

// Spider runs one site's declarative crawl definition for one keyword.
// Requests flow through a single async collector; the stage recorded on
// each request's context routes its response to the right handler.
type Spider struct {
	cfg        SiteConfig
	keyword    string
	logger     *zap.Logger
	classifier *classifier.Classifier
	pacer      *rate.Limiter
	parser     resultParser

	runCtx    context.Context
	collector *colly.Collector

	broken    atomic.Bool
	errStreak atomic.Int32

	mu    sync.Mutex
	vars  Vars
	seen  map[string]struct{}
	items []Item
}

// New builds a spider for one site row.
func New(site search.Site, keyword string, deps Deps) (*Spider, error) {
	cfg, err := ParseSiteConfig(site)
	if err != nil {
		return nil, err
	}
	parser, err := newResultParser(cfg, keyword)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.Key, err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spider{
		cfg:        cfg,
		keyword:    keyword,
		logger:     logger.With(zap.String("site", cfg.Name)),
		classifier: deps.Classifier,
		pacer:      deps.Pacer,
		parser:     parser,
		vars:       Vars{"host": cfg.Host, "keyword": keyword},
		seen:       make(map[string]struct{}),
	}, nil
}

// Run walks the workflow steps, issues the search request, follows detail
// pages, and returns every item that survived classification and
// deduplication. A tripped circuit breaker ends the run early with
// ErrCircuitOpen alongside whatever was collected before the trip.
func (s *Spider) Run(ctx context.Context) ([]Item, error) {
	s.runCtx = ctx
	s.collector = s.initCollector()

	if len(s.cfg.Workflow) > 0 {
		s.requestWorkflow(0)
	} else {
		s.requestSearch()
	}
	s.collector.Wait()

	s.mu.Lock()
	items := s.items
	s.mu.Unlock()

	if s.broken.Load() {
		return items, ErrCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}

func (s *Spider) initCollector() *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	collector.SetRequestTimeout(requestTimeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.cfg.Concurrent,
		Delay:       time.Duration(s.cfg.Delay * float64(time.Second)),
		RandomDelay: time.Duration(s.cfg.Delay * float64(time.Second) / 2),
	}); err != nil {
		s.logger.Error("Failed to set collector limits", zap.Error(err))
	}

	collector.OnRequest(s.handleRequest)
	collector.OnResponse(s.handleResponse)
	collector.OnError(s.handleError)
	return collector
}

func (s *Spider) handleRequest(r *colly.Request) {
	if s.broken.Load() || s.runCtx.Err() != nil {
		r.Abort()
		return
	}
	if s.pacer != nil {
		if err := s.pacer.Wait(s.runCtx); err != nil {
			r.Abort()
			return
		}
	}
}

func (s *Spider) handleResponse(r *colly.Response) {
	switch r.Ctx.Get("stage") {
	case "workflow":
		s.handleWorkflow(r)
	case "search":
		s.handleSearch(r)
	case "detail":
		s.handleDetail(r)
	}
}

func (s *Spider) handleError(r *colly.Response, err error) {
	s.logger.Warn("Request failed",
		zap.String("url", r.Request.URL.String()),
		zap.Int("status_code", r.StatusCode),
		zap.Error(err),
	)
}

// noteStatus feeds the circuit breaker. Gate statuses extend the error
// streak; anything else resets it.
func (s *Spider) noteStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusTooManyRequests:
		if s.errStreak.Add(1) >= breakAfter && s.broken.CompareAndSwap(false, true) {
			telemetry.ObserveCircuitBreak(s.cfg.Name)
			s.logger.Warn("Circuit breaker tripped", zap.Int("threshold", breakAfter))
		}
		return false
	}
	s.errStreak.Store(0)
	return code < http.StatusBadRequest
}

func (s *Spider) handleWorkflow(r *colly.Response) {
	step, _ := strconv.Atoi(r.Ctx.Get("step"))
	if !s.noteStatus(r.StatusCode) {
		s.logger.Warn("Workflow step rejected, abandoning site",
			zap.Int("step", step),
			zap.Int("status_code", r.StatusCode),
		)
		return
	}

	extracted := make(map[string]string)
	for name, rule := range s.cfg.Workflow[step].Extract {
		if v := extractVar(r.Body, rule); v != "" {
			extracted[name] = v
		}
	}
	s.mu.Lock()
	s.vars.Merge(extracted)
	s.mu.Unlock()

	if step+1 < len(s.cfg.Workflow) {
		s.requestWorkflow(step + 1)
		return
	}
	s.requestSearch()
}

func (s *Spider) handleSearch(r *colly.Response) {
	if !s.noteStatus(r.StatusCode) {
		return
	}

	candidates, err := s.parser.parse(r.Body, r.Request.URL)
	if err != nil {
		s.logger.Warn("Failed to parse search response", zap.Error(err))
		return
	}

	for _, c := range candidates {
		if c.DetailURL != "" {
			s.requestDetail(c)
			continue
		}
		s.emit(c.Title, c.LinkText, r.Request.URL.String())
	}
}

func (s *Spider) handleDetail(r *colly.Response) {
	if !s.noteStatus(r.StatusCode) {
		return
	}

	title := extractDetailTitle(r.Body, s.cfg.DetailRules.Fields["title"])
	if title == "" {
		title = r.Ctx.Get("title")
	}
	s.emit(title, string(r.Body), r.Request.URL.String())
}

func (s *Spider) requestWorkflow(step int) {
	s.mu.Lock()
	target := s.vars.Render(s.cfg.Workflow[step].URL)
	s.mu.Unlock()

	ctx := colly.NewContext()
	ctx.Put("stage", "workflow")
	ctx.Put("step", strconv.Itoa(step))
	s.request(http.MethodGet, target, nil, ctx, browserHeaders(s.cfg.Host))
}

func (s *Spider) requestSearch() {
	s.mu.Lock()
	target := s.vars.Render(s.cfg.StartURL)
	headers := make(map[string]string, len(s.cfg.Headers))
	for k, v := range s.cfg.Headers {
		headers[k] = s.vars.Render(v)
	}
	payload := s.renderPayloadLocked()
	s.mu.Unlock()

	hdr := browserHeaders(s.cfg.Host)
	for k, v := range headers {
		hdr.Set(k, v)
	}

	var body io.Reader
	if strings.EqualFold(s.cfg.Method, http.MethodPost) {
		encoded, contentType, err := encodePayload(payload, hdr.Get("Content-Type"))
		if err != nil {
			s.logger.Error("Failed to encode search payload", zap.Error(err))
			return
		}
		hdr.Set("Content-Type", contentType)
		body = encoded
	}

	ctx := colly.NewContext()
	ctx.Put("stage", "search")
	s.request(strings.ToUpper(s.cfg.Method), target, body, ctx, hdr)
}

func (s *Spider) requestDetail(c candidate) {
	ctx := colly.NewContext()
	ctx.Put("stage", "detail")
	ctx.Put("title", c.Title)
	s.request(http.MethodGet, c.DetailURL, nil, ctx, browserHeaders(s.cfg.Host))
}

func (s *Spider) request(method, target string, body io.Reader, ctx *colly.Context, hdr http.Header) {
	if err := s.collector.Request(method, target, body, ctx, hdr); err != nil {
		s.logger.Warn("Failed to issue request",
			zap.String("method", method),
			zap.String("url", target),
			zap.Error(err),
		)
	}
}

// renderPayloadLocked renders string payload values and injects the keyword
// under the configured field. Callers hold s.mu.
func (s *Spider) renderPayloadLocked() map[string]any {
	payload := make(map[string]any, len(s.cfg.Payload)+1)
	for k, v := range s.cfg.Payload {
		if str, ok := v.(string); ok {
			payload[k] = s.vars.Render(str)
			continue
		}
		payload[k] = v
	}
	if _, ok := payload[s.cfg.KwField]; !ok {
		payload[s.cfg.KwField] = s.keyword
	}
	return payload
}

func encodePayload(payload map[string]any, contentType string) (io.Reader, string, error) {
	if strings.Contains(strings.ToLower(contentType), "json") {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(encoded), contentType, nil
	}
	form := url.Values{}
	for k, v := range payload {
		form.Set(k, toString(v))
	}
	return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
}

// emit classifies the raw text, deduplicates links by fingerprint, and
// records one item per surviving link.
func (s *Spider) emit(title, rawText, sourceURL string) {
	title = cleanTitle(title)
	if title == "" {
		title = untitledPlaceholder
	}

	links, _ := s.classifier.Extract(rawText)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range links {
		fp := sha256.Fingerprint(link)
		if _, dup := s.seen[fp]; dup {
			continue
		}
		s.seen[fp] = struct{}{}
		s.items = append(s.items, Item{
			SiteName:    s.cfg.Name,
			Title:       title,
			DiskType:    s.classifier.Match(link),
			ResourceURL: link,
			SourceURL:   sourceURL,
		})
		telemetry.ObserveResource(s.cfg.Name)
	}
}

func cleanTitle(title string) string {
	title = tagPattern.ReplaceAllString(title, "")
	title = html.UnescapeString(title)
	return strings.Join(strings.Fields(title), " ")
}
