package venues_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/oraculo/internal/adapters/venues"
)

// fakeVenue levanta un servidor HTTP con el shape normalizado de la API.
func fakeVenue(t *testing.T, markets string, statuses string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/markets/hot", "/markets":
			fmt.Fprint(w, markets)
		case "/markets/status":
			fmt.Fprint(w, statuses)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func brokenVenue(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHotMarkets_MergesSortsAndTruncates(t *testing.T) {
	poly := fakeVenue(t, `[{"id":"p1","question":"q1","volume":300},{"id":"p2","question":"q2","volume":100}]`, `[]`)
	kalshi := fakeVenue(t, `[{"id":"k1","question":"q3","volume":200}]`, `[]`)

	agg := venues.NewAggregator(
		venues.NewClient("polymarket", poly.URL, 100),
		venues.NewClient("kalshi", kalshi.URL, 100),
	)

	markets, err := agg.HotMarkets(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "polymarket:p1", markets[0].Key())
	assert.Equal(t, "kalshi:k1", markets[1].Key())
}

func TestHotMarkets_OneVenueDownStillReturns(t *testing.T) {
	poly := fakeVenue(t, `[{"id":"p1","question":"q1","volume":300}]`, `[]`)
	down := brokenVenue(t)

	agg := venues.NewAggregator(
		venues.NewClient("polymarket", poly.URL, 100),
		venues.NewClient("kalshi", down.URL, 100),
	)

	markets, err := agg.HotMarkets(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "polymarket:p1", markets[0].Key())
}

func TestHotMarkets_AllVenuesDown(t *testing.T) {
	agg := venues.NewAggregator(
		venues.NewClient("polymarket", brokenVenue(t).URL, 100),
		venues.NewClient("kalshi", brokenVenue(t).URL, 100),
	)

	_, err := agg.HotMarkets(context.Background(), 10)
	assert.Error(t, err)
}

func TestMarketStatus_RoutesByVenueAndMarksDownVenuesUnresolved(t *testing.T) {
	poly := fakeVenue(t, `[]`, `[{"id":"p1","status":"resolved","outcome":"yes"}]`)
	down := brokenVenue(t)

	agg := venues.NewAggregator(
		venues.NewClient("polymarket", poly.URL, 100),
		venues.NewClient("kalshi", down.URL, 100),
	)

	statuses, err := agg.MarketStatus(context.Background(), []string{"polymarket:p1", "kalshi:k1"})
	require.NoError(t, err)

	require.Contains(t, statuses, "polymarket:p1")
	assert.True(t, statuses["polymarket:p1"].Resolved)
	assert.True(t, statuses["polymarket:p1"].Outcome)

	// El venue caído no debe hacer "desaparecer" sus mercados: cuentan
	// como sin noticias para que el watcher no acumule misses.
	require.Contains(t, statuses, "kalshi:k1")
	assert.False(t, statuses["kalshi:k1"].Resolved)
}

func TestMarketStatus_SkipsMalformedKeysAndUnknownVenues(t *testing.T) {
	poly := fakeVenue(t, `[]`, `[{"id":"p1","status":"active"}]`)
	agg := venues.NewAggregator(venues.NewClient("polymarket", poly.URL, 100))

	statuses, err := agg.MarketStatus(context.Background(), []string{
		"polymarket:p1",
		"sinvenue",
		"manifold:m1", // sin cliente configurado
	})
	require.NoError(t, err)
	assert.Len(t, statuses, 1)
	assert.Contains(t, statuses, "polymarket:p1")
}

func TestGetMarket_RoutesByKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets/p1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"p1","question":"q1","yes_price":0.4}`)
	}))
	t.Cleanup(srv.Close)

	agg := venues.NewAggregator(venues.NewClient("polymarket", srv.URL, 100))

	m, err := agg.GetMarket(context.Background(), "polymarket:p1")
	require.NoError(t, err)
	assert.Equal(t, "polymarket:p1", m.Key())

	_, err = agg.GetMarket(context.Background(), "kalshi:k1")
	assert.Error(t, err, "unknown venue")

	_, err = agg.GetMarket(context.Background(), "sin-formato")
	assert.Error(t, err)
}
