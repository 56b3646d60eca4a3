package spider

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/diskseek/diskseek/internal/classifier"
	"github.com/diskseek/diskseek/internal/search"
)

// Sink receives every item emitted during a run.
type Sink interface {
	Persist(ctx context.Context, item Item) error
}

// Runner fans a keyword out across every enabled site. One misbehaving
// site never cancels the others; its spider logs and returns what it has.
type Runner struct {
	sites      search.SiteStore
	sink       Sink
	classifier *classifier.Classifier
	pacer      *rate.Limiter
	logger     *zap.Logger
}

// NewRunner wires a runner. The pacer caps run-wide request throughput on
// top of the per-site limits; pass nil to disable it.
func NewRunner(
	sites search.SiteStore,
	sink Sink,
	cls *classifier.Classifier,
	pacer *rate.Limiter,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		sites:      sites,
		sink:       sink,
		classifier: cls,
		pacer:      pacer,
		logger:     logger,
	}
}

// Run crawls the keyword on every enabled site and returns the number of
// items persisted.
func (r *Runner) Run(ctx context.Context, keyword string) (int, error) {
	sites, err := r.sites.ListEnabledSites(ctx)
	if err != nil {
		return 0, err
	}
	if len(sites) == 0 {
		return 0, search.ErrNoSitesEnabled
	}

	var persisted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, site := range sites {
		g.Go(func() error {
			r.runSite(gctx, site, keyword, &persisted)
			return nil
		})
	}
	_ = g.Wait()
	return int(persisted.Load()), nil
}

func (r *Runner) runSite(ctx context.Context, site search.Site, keyword string, persisted *atomic.Int64) {
	logger := r.logger.With(zap.String("site", site.Key))

	sp, err := New(site, keyword, Deps{
		Logger:     r.logger,
		Classifier: r.classifier,
		Pacer:      r.pacer,
	})
	if err != nil {
		logger.Error("Failed to build spider", zap.Error(err))
		return
	}

	items, err := sp.Run(ctx)
	if err != nil {
		logger.Warn("Site run ended early", zap.Error(err), zap.Int("items", len(items)))
	}

	for _, item := range items {
		if err := r.sink.Persist(ctx, item); err != nil {
			logger.Error("Failed to persist item",
				zap.String("resource_url", item.ResourceURL),
				zap.Error(err),
			)
			continue
		}
		persisted.Add(1)
	}
}
