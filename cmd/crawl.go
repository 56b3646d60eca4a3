package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/app"
	systemclock "github.com/diskseek/diskseek/internal/clock/system"
	"github.com/diskseek/diskseek/internal/executor"
	"github.com/diskseek/diskseek/internal/spider"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl as a child of the serve process",
		Long: `crawl executes a single keyword crawl handed over via the
CRAWL_TASK_ID and CRAWL_KEYWORD environment variables. The serve process
spawns it so a crashing or hanging crawl never takes a worker down. A
non-zero exit marks the task failed on the parent side.`,
		RunE: runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	rawID := os.Getenv(executor.EnvTaskID)
	keyword := os.Getenv(executor.EnvKeyword)
	if rawID == "" || keyword == "" {
		return fmt.Errorf("%s and %s must be set", executor.EnvTaskID, executor.EnvKeyword)
	}
	taskID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parse %s: %w", executor.EnvTaskID, err)
	}
	if cfg.Storage.Provider == "memory" {
		return fmt.Errorf("the crawl subprocess needs shared storage; memory crawls run in-process")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger = logger.With(zap.String("task_id", taskID.String()))
	logger.Info("Crawl starting", zap.String("keyword", keyword))

	sink := spider.NewStoreSink(a.Results, taskID, systemclock.New())
	runner := spider.NewRunner(a.Sites, sink, a.Classifier, app.GlobalPacer(cfg), logger)

	persisted, err := runner.Run(ctx, keyword)
	if err != nil {
		return fmt.Errorf("crawl keyword %q: %w", keyword, err)
	}
	logger.Info("Crawl finished", zap.Int("resources", persisted))
	return nil
}
