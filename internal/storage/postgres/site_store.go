package postgres

import (
	"context"
	"fmt"

	"github.com/diskseek/diskseek/internal/search"
)

// SiteStore persists site definitions in the site_configs table.
type SiteStore struct {
	pool db
}

// NewSiteStore wraps a pool.
func NewSiteStore(pool db) *SiteStore {
	return &SiteStore{pool: pool}
}

// ListEnabledSites lists enabled sites ordered by key.
func (s *SiteStore) ListEnabledSites(ctx context.Context) ([]search.Site, error) {
	query := `
SELECT site_key, name, host, enabled, config
FROM site_configs
WHERE enabled
ORDER BY site_key`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select sites: %w", err)
	}
	defer rows.Close()

	var out []search.Site
	for rows.Next() {
		var site search.Site
		if err := rows.Scan(&site.Key, &site.Name, &site.Host, &site.Enabled, &site.Config); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}

// UpsertSite inserts or replaces a site definition by key.
func (s *SiteStore) UpsertSite(ctx context.Context, site search.Site) error {
	query := `
INSERT INTO site_configs (site_key, name, host, enabled, config)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (site_key) DO UPDATE
SET name = EXCLUDED.name,
    host = EXCLUDED.host,
    enabled = EXCLUDED.enabled,
    config = EXCLUDED.config`
	if _, err := s.pool.Exec(ctx, query, site.Key, site.Name, site.Host, site.Enabled, site.Config); err != nil {
		return fmt.Errorf("upsert site: %w", err)
	}
	return nil
}
