package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/diskseek/diskseek/internal/search"
)

func TestSiteStore_ListEnabledSites(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewSiteStore(mock)

	rows := pgxmock.NewRows([]string{"site_key", "name", "host", "enabled", "config"}).
		AddRow("demo", "Demo", "demo.test", true, []byte(`{"start_url":"https://demo.test/s"}`))

	mock.ExpectQuery("SELECT (.+) FROM site_configs\\s+WHERE enabled").
		WillReturnRows(rows)

	sites, err := store.ListEnabledSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Equal(t, "demo", sites[0].Key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteStore_UpsertSite(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewSiteStore(mock)

	site := search.Site{Key: "demo", Name: "Demo", Host: "demo.test", Enabled: true, Config: []byte(`{}`)}
	mock.ExpectExec("INSERT INTO site_configs").
		WithArgs("demo", "Demo", "demo.test", true, []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertSite(context.Background(), site))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleStore_ListEnabledRules(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewRuleStore(mock)

	rows := pgxmock.NewRows([]string{"id", "rule", "list_type", "pattern", "enabled"}).
		AddRow(int64(1), "*.example.com", search.RuleBlock, `^.*@(?:.*\.)?example\.com$`, true)

	mock.ExpectQuery("SELECT (.+) FROM email_rules\\s+WHERE enabled").
		WillReturnRows(rows)

	rules, err := store.ListEnabledRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, search.RuleBlock, rules[0].ListType)
	require.NoError(t, mock.ExpectationsWereMet())
}
