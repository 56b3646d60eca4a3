package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/diskseek/diskseek/internal/app"
	"github.com/diskseek/diskseek/internal/search"
)

type siteEntry struct {
	Key     string         `yaml:"key"`
	Name    string         `yaml:"name"`
	Host    string         `yaml:"host"`
	Enabled *bool          `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

type sitesFile struct {
	Sites []siteEntry `yaml:"sites"`
}

func newImportSitesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import-sites",
		Short: "Upsert site definitions from a yaml file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImportSites(cmd, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "configs/sites.yaml", "site definition file")
	return cmd
}

func runImportSites(cmd *cobra.Command, file string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read sites file: %w", err)
	}
	var parsed sitesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse sites file: %w", err)
	}
	if len(parsed.Sites) == 0 {
		return fmt.Errorf("no sites defined in %s", file)
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, entry := range parsed.Sites {
		if entry.Key == "" {
			return fmt.Errorf("site entry without a key")
		}
		rawCfg, err := json.Marshal(entry.Config)
		if err != nil {
			return fmt.Errorf("encode config for site %s: %w", entry.Key, err)
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		site := search.Site{
			Key:     entry.Key,
			Name:    entry.Name,
			Host:    entry.Host,
			Enabled: enabled,
			Config:  rawCfg,
		}
		if err := a.Sites.UpsertSite(cmd.Context(), site); err != nil {
			return fmt.Errorf("upsert site %s: %w", entry.Key, err)
		}
		logger.Info("Site imported", zap.String("site", entry.Key), zap.Bool("enabled", enabled))
	}
	logger.Info("Import complete", zap.Int("sites", len(parsed.Sites)))
	return nil
}
