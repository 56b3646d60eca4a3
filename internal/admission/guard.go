package admission

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/search"
)

// Guard decides whether a submission may create a task. It has no side
// effects beyond the rate-limit counter increments.
type Guard struct {
	rules   search.RuleStore
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewGuard builds a Guard.
func NewGuard(rules search.RuleStore, limiter *RateLimiter, logger *zap.Logger) *Guard {
	return &Guard{rules: rules, limiter: limiter, logger: logger}
}

// Check validates the address, evaluates allow/block rules, then applies the
// rate limiter. The first failure is returned.
func (g *Guard) Check(ctx context.Context, email string) error {
	addr := strings.TrimSpace(email)
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return search.ErrInvalidEmail
	}

	rules, err := g.rules.ListEnabledRules(ctx)
	if err != nil {
		return fmt.Errorf("load email rules: %w", err)
	}
	if !NewRuleSet(rules).Allowed(addr) {
		g.logger.Info("submission blocked by email rules", zap.String("email", addr))
		return search.ErrEmailNotAllowed
	}

	if err := g.limiter.Check(ctx, addr); err != nil {
		return err
	}
	return nil
}
