package postgres

import (
	"context"
	"fmt"

	"github.com/diskseek/diskseek/internal/search"
)

// RuleStore reads email allow/block rules from the email_rules table.
type RuleStore struct {
	pool db
}

// NewRuleStore wraps a pool.
func NewRuleStore(pool db) *RuleStore {
	return &RuleStore{pool: pool}
}

// ListEnabledRules lists enabled rules in id order, which is also their
// evaluation order.
func (s *RuleStore) ListEnabledRules(ctx context.Context) ([]search.EmailRule, error) {
	query := `
SELECT id, rule, list_type, pattern, enabled
FROM email_rules
WHERE enabled
ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select email rules: %w", err)
	}
	defer rows.Close()

	var out []search.EmailRule
	for rows.Next() {
		var rule search.EmailRule
		if err := rows.Scan(&rule.ID, &rule.Rule, &rule.ListType, &rule.Pattern, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("scan email rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate email rules: %w", err)
	}
	return out, nil
}
