// Package app wires configuration into a running service graph.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diskseek/diskseek/internal/admission"
	"github.com/diskseek/diskseek/internal/api"
	"github.com/diskseek/diskseek/internal/classifier"
	systemclock "github.com/diskseek/diskseek/internal/clock/system"
	"github.com/diskseek/diskseek/internal/config"
	"github.com/diskseek/diskseek/internal/executor"
	uuidgen "github.com/diskseek/diskseek/internal/id/uuid"
	"github.com/diskseek/diskseek/internal/notify"
	queuemem "github.com/diskseek/diskseek/internal/queue/memory"
	queueredis "github.com/diskseek/diskseek/internal/queue/redis"
	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/spider"
	"github.com/diskseek/diskseek/internal/storage/memory"
	"github.com/diskseek/diskseek/internal/storage/postgres"
	redisstore "github.com/diskseek/diskseek/internal/storage/redis"
	"github.com/diskseek/diskseek/internal/tasks"
	"github.com/diskseek/diskseek/internal/worker"
)

// App holds the assembled service graph. Construction fails fast; nothing
// here retries a missing dependency.
type App struct {
	Cfg        config.Config
	Logger     *zap.Logger
	TaskStore  search.TaskStore
	Results    search.ResultStore
	Sites      search.SiteStore
	Classifier *classifier.Classifier
	Service    *tasks.Service
	Server     *api.Server
	Dispatcher *worker.Dispatcher

	pool  *pgxpool.Pool
	redis *goredis.Client
}

// New assembles the graph from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Cfg: cfg, Logger: logger}

	var (
		taskStore   search.TaskStore
		resultStore search.ResultStore
		siteStore   search.SiteStore
		ruleStore   search.RuleStore
	)
	switch cfg.Storage.Provider {
	case "postgres":
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: time.Duration(cfg.Database.ConnLifetimeMin) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		taskStore = postgres.NewTaskStore(pool)
		resultStore = postgres.NewResultStore(pool)
		siteStore = postgres.NewSiteStore(pool)
		ruleStore = postgres.NewRuleStore(pool)
	case "memory":
		taskStore = memory.NewTaskStore()
		resultStore = memory.NewResultStore()
		siteStore = memory.NewSiteStore()
		ruleStore = memory.NewRuleStore()
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
	a.TaskStore = taskStore
	a.Results = resultStore
	a.Sites = siteStore

	var (
		counters search.CounterStore
		cache    search.KeywordCache
		queue    search.Queue
	)
	if cfg.Redis.Enabled {
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		counters = redisstore.NewCounterStore(client)
		cache = redisstore.NewKeywordCache(client)
		queue = queueredis.NewQueue(client, cfg.Redis.QueueKey)
	} else {
		counters = memory.NewCounterStore()
		cache = memory.NewKeywordCache()
		queue = queuemem.NewQueue(cfg.Crawl.QueueDepth)
	}

	cls, err := buildClassifier(cfg.Classifier.RulesFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Classifier = cls

	windows, err := cfg.RateWindows()
	if err != nil {
		a.Close()
		return nil, err
	}
	limiter := admission.NewRateLimiter(counters, toAdmissionWindows(windows))
	guard := admission.NewGuard(ruleStore, limiter, logger)

	clock := systemclock.New()
	service := tasks.NewService(
		tasks.Config{CacheTTL: cfg.CacheTTL(), ResultTTL: cfg.ResultTTL()},
		guard, taskStore, resultStore, cache, queue, uuidgen.New(), clock, logger,
	)
	a.Service = service

	notifier := notify.New(notify.Config{
		BaseURL:  cfg.Server.BaseURL,
		Attempts: cfg.Notify.Attempts,
		Backoff:  cfg.NotifyBackoff(),
	}, notify.NewLogMailer(logger), logger)

	var launcher executor.Launcher
	if cfg.Storage.Provider == "memory" {
		// A child process cannot see in-memory stores; crawl inline instead.
		launcher = &inlineLauncher{
			sites:      siteStore,
			results:    resultStore,
			classifier: cls,
			pacer:      GlobalPacer(cfg),
			clock:      clock,
			logger:     logger,
		}
	} else {
		launcher = &executor.ProcessLauncher{BaseDir: cfg.Crawl.BaseDir}
	}

	exec := executor.New(
		executor.Config{Timeout: cfg.CrawlTimeout(), ResultTTL: cfg.ResultTTL()},
		taskStore, siteStore, resultStore, launcher, notifier, clock, logger,
	)

	workers := make([]*worker.Worker, 0, cfg.Crawl.Workers)
	for i := 0; i < cfg.Crawl.Workers; i++ {
		workers = append(workers, worker.New(queue, exec, logger))
	}
	a.Dispatcher = worker.NewDispatcher(workers)

	a.Server = api.NewServer(service, logger)
	return a, nil
}

// Close releases external connections. Safe on a partially built App.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("Redis close failed", zap.Error(err))
		}
	}
}

// GlobalPacer builds the run-wide request limiter, nil when unbounded.
func GlobalPacer(cfg config.Config) *rate.Limiter {
	if cfg.Crawl.GlobalRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.Crawl.GlobalRPS), cfg.Crawl.GlobalRPS)
}

func buildClassifier(rulesFile string) (*classifier.Classifier, error) {
	rules := classifier.DefaultRules()
	if rulesFile != "" {
		loaded, err := classifier.LoadRules(rulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	return classifier.New(rules)
}

func toAdmissionWindows(windows []config.RateWindow) []admission.Window {
	out := make([]admission.Window, 0, len(windows))
	for _, w := range windows {
		out = append(out, admission.Window{Seconds: w.Seconds, Limit: w.Limit})
	}
	return out
}

// inlineLauncher runs the crawl in-process. It backs the memory provider,
// where a separate process would write results nobody can read.
type inlineLauncher struct {
	sites      search.SiteStore
	results    search.ResultStore
	classifier *classifier.Classifier
	pacer      *rate.Limiter
	clock      search.Clock
	logger     *zap.Logger
}

func (l *inlineLauncher) Launch(ctx context.Context, task search.Task) error {
	sink := spider.NewStoreSink(l.results, task.TaskID, l.clock)
	runner := spider.NewRunner(l.sites, sink, l.classifier, l.pacer, l.logger)
	_, err := runner.Run(ctx, task.Keyword)
	return err
}
