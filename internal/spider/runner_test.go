package spider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/storage/memory"
)

type collectSink struct {
	mu    sync.Mutex
	items []Item
}

func (s *collectSink) Persist(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

func TestRunner_NoEnabledSites(t *testing.T) {
	t.Parallel()

	r := NewRunner(memory.NewSiteStore(), &collectSink{}, newTestClassifier(t), nil, zap.NewNop())
	_, err := r.Run(context.Background(), "foo")
	require.ErrorIs(t, err, search.ErrNoSitesEnabled)
}

func TestRunner_BadSiteDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"name":"foo","url":"https://pan.example.com/s/1"}]}`)
	}))
	defer srv.Close()

	good := siteWith(t, SiteConfig{
		Host:      "pan.example.com",
		StartURL:  srv.URL + "/search",
		ParseMode: "json",
		HasDetail: boolPtr(false),
	})
	good.Key = "good"
	bad := search.Site{Key: "bad", Name: "Bad", Host: "bad.test", Enabled: true, Config: []byte(`{}`)}

	sites := memory.NewSiteStore()
	require.NoError(t, sites.UpsertSite(context.Background(), good))
	require.NoError(t, sites.UpsertSite(context.Background(), bad))

	sink := &collectSink{}
	r := NewRunner(sites, sink, newTestClassifier(t), nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	persisted, err := r.Run(ctx, "foo")
	require.NoError(t, err)
	require.Equal(t, 1, persisted)
	require.Len(t, sink.items, 1)
	require.Equal(t, "https://pan.example.com/s/1", sink.items[0].ResourceURL)
}
