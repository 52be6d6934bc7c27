package watcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/oraculo/internal/application/watcher"
	"github.com/alejandrodnm/oraculo/internal/domain"
)

// stubVenues implementa ports.VenueProvider devolviendo estados fijos.
type stubVenues struct {
	mu       sync.Mutex
	statuses map[string]domain.VenueStatus
	err      error
}

func (v *stubVenues) SearchMarkets(context.Context, string) ([]domain.Market, error) {
	return nil, nil
}

func (v *stubVenues) HotMarkets(context.Context, int) ([]domain.Market, error) {
	return nil, nil
}

func (v *stubVenues) GetMarket(context.Context, string) (domain.Market, error) {
	return domain.Market{}, nil
}

func (v *stubVenues) MarketStatus(_ context.Context, ids []string) (map[string]domain.VenueStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	out := make(map[string]domain.VenueStatus)
	for _, id := range ids {
		if st, ok := v.statuses[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (v *stubVenues) set(key string, st domain.VenueStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.statuses == nil {
		v.statuses = make(map[string]domain.VenueStatus)
	}
	v.statuses[key] = st
}

// trackStore registra las llamadas de resolución/abandono.
type trackStore struct {
	mu        sync.Mutex
	open      map[string]domain.Prediction
	resolved  map[string]float64
	abandoned map[string]string
}

func newTrackStore() *trackStore {
	return &trackStore{
		open:      make(map[string]domain.Prediction),
		resolved:  make(map[string]float64),
		abandoned: make(map[string]string),
	}
}

func (s *trackStore) CreatePrediction(_ context.Context, p domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[p.ID] = p
	return nil
}

func (s *trackStore) GetPrediction(_ context.Context, id string) (domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.open[id]; ok {
		return p, nil
	}
	return domain.Prediction{}, domain.ErrNotFound
}

func (s *trackStore) ResolvePrediction(_ context.Context, id string, _ bool, score float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.resolved[id]; done {
		return domain.ErrAlreadyResolved
	}
	s.resolved[id] = score
	delete(s.open, id)
	return nil
}

func (s *trackStore) AbandonPrediction(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned[id] = reason
	delete(s.open, id)
	return nil
}

func (s *trackStore) ListResolvedSince(context.Context, time.Time) ([]domain.Prediction, error) {
	return nil, nil
}

func (s *trackStore) ListOpen(context.Context) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.open {
		out = append(out, p)
	}
	return out, nil
}

func (s *trackStore) ListCommittedSince(context.Context, time.Time) ([]domain.Prediction, error) {
	return nil, nil
}

func (s *trackStore) Close() error { return nil }

func (s *trackStore) score(id string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.resolved[id]
	return sc, ok
}

func pred(id, venue, marketID string, direction domain.Direction, prob float64) domain.Prediction {
	return domain.Prediction{
		ID:          id,
		Question:    "Will it happen?",
		Probability: prob,
		Direction:   direction,
		Category:    domain.CategoryGeneral,
		MarketVenue: venue,
		MarketID:    marketID,
		Status:      domain.PredictionOpen,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPollOnce_ResolvesWithBrierScore(t *testing.T) {
	venues := &stubVenues{}
	venues.set("polymarket:m1", domain.VenueStatus{Resolved: true, Outcome: true})

	store := newTrackStore()
	w := watcher.New(watcher.Config{}, venues, store)
	events := w.Subscribe(4)

	// 80% YES y ocurre → score 0.04.
	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionYes, 0.80))
	w.PollOnce(context.Background())

	score, ok := store.score("p1")
	require.True(t, ok)
	assert.InDelta(t, 0.04, score, 1e-9)

	select {
	case ev := <-events:
		assert.Equal(t, "p1", ev.PredictionID)
		assert.True(t, ev.Outcome)
		assert.InDelta(t, 0.04, ev.Score, 1e-9)
		assert.Equal(t, domain.CategoryGeneral, ev.Category)
	default:
		t.Fatal("expected a resolution event")
	}

	assert.Equal(t, 0, w.Status().Watching)
	assert.Equal(t, 1, w.Status().Resolved)
}

func TestPollOnce_NoDirectionNormalization(t *testing.T) {
	venues := &stubVenues{}
	venues.set("polymarket:m1", domain.VenueStatus{Resolved: true, Outcome: false})

	store := newTrackStore()
	w := watcher.New(watcher.Config{}, venues, store)

	// "90% NO" y sale NO: YES-prob 0.10 vs outcome 0 → (0.1)² = 0.01.
	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionNo, 0.90))
	w.PollOnce(context.Background())

	score, ok := store.score("p1")
	require.True(t, ok)
	assert.InDelta(t, 0.01, score, 1e-9)
}

func TestPollOnce_UnresolvedKeepsWatching(t *testing.T) {
	venues := &stubVenues{}
	venues.set("polymarket:m1", domain.VenueStatus{Resolved: false})

	w := watcher.New(watcher.Config{}, venues, newTrackStore())
	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionYes, 0.7))
	w.PollOnce(context.Background())

	assert.Equal(t, 1, w.Status().Watching)
}

func TestPollOnce_DisappearedMarketNeedsConsecutiveMisses(t *testing.T) {
	venues := &stubVenues{} // no conoce ningún mercado
	store := newTrackStore()
	w := watcher.New(watcher.Config{}, venues, store)
	w.Watch(pred("p1", "polymarket", "gone", domain.DirectionYes, 0.7))

	// Dos misses no bastan: un fallo parcial del venue no debe abandonar.
	w.PollOnce(context.Background())
	w.PollOnce(context.Background())
	assert.Equal(t, 1, w.Status().Watching)

	w.PollOnce(context.Background())
	assert.Equal(t, 0, w.Status().Watching)
	assert.Equal(t, 1, w.Status().Abandoned)
	store.mu.Lock()
	assert.Contains(t, store.abandoned["p1"], "disappeared")
	store.mu.Unlock()
}

func TestPollOnce_MissCounterResetsOnReappearance(t *testing.T) {
	venues := &stubVenues{}
	store := newTrackStore()
	w := watcher.New(watcher.Config{}, venues, store)
	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionYes, 0.7))

	w.PollOnce(context.Background())
	w.PollOnce(context.Background())

	// El mercado reaparece sin resolver: el contador se limpia.
	venues.set("polymarket:m1", domain.VenueStatus{Resolved: false})
	w.PollOnce(context.Background())

	venues.mu.Lock()
	delete(venues.statuses, "polymarket:m1")
	venues.mu.Unlock()

	w.PollOnce(context.Background())
	w.PollOnce(context.Background())
	assert.Equal(t, 1, w.Status().Watching, "two misses after a reset must not abandon")
}

func TestPollOnce_HorizonAbandonment(t *testing.T) {
	venues := &stubVenues{}
	venues.set("polymarket:m1", domain.VenueStatus{Resolved: false})

	store := newTrackStore()
	w := watcher.New(watcher.Config{Horizon: time.Nanosecond}, venues, store)
	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionYes, 0.7))

	time.Sleep(time.Millisecond)
	w.PollOnce(context.Background())

	assert.Equal(t, 1, w.Status().Abandoned)
	store.mu.Lock()
	assert.Contains(t, store.abandoned["p1"], "horizon")
	store.mu.Unlock()
}

func TestPollOnce_VenueErrorSkipsCycle(t *testing.T) {
	venues := &stubVenues{err: assert.AnError}
	w := watcher.New(watcher.Config{}, venues, newTrackStore())
	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionYes, 0.7))

	w.PollOnce(context.Background())

	assert.Equal(t, 1, w.Status().Watching)
	assert.Equal(t, 1, w.Status().PollErrors)
}

func TestWatch_IgnoresUnlinkedPredictions(t *testing.T) {
	w := watcher.New(watcher.Config{}, &stubVenues{}, newTrackStore())
	w.Watch(domain.Prediction{ID: "p1"}) // sin mercado linkeado
	assert.Equal(t, 0, w.Status().Watching)
}

func TestRestore_ReloadsOpenPredictions(t *testing.T) {
	store := newTrackStore()
	require.NoError(t, store.CreatePrediction(context.Background(),
		pred("p1", "polymarket", "m1", domain.DirectionYes, 0.7)))
	require.NoError(t, store.CreatePrediction(context.Background(),
		pred("p2", "kalshi", "m2", domain.DirectionNo, 0.6)))

	w := watcher.New(watcher.Config{}, &stubVenues{}, store)
	require.NoError(t, w.Restore(context.Background()))
	assert.Equal(t, 2, w.Status().Watching)
}

func TestResolve_IdempotentOnAlreadyResolved(t *testing.T) {
	venues := &stubVenues{}
	venues.set("polymarket:m1", domain.VenueStatus{Resolved: true, Outcome: true})

	store := newTrackStore()
	// Simular que otro proceso ya la resolvió.
	store.resolved["p1"] = 0.04

	w := watcher.New(watcher.Config{}, venues, store)
	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionYes, 0.8))
	w.PollOnce(context.Background())

	// No cuenta como resolución nueva; la entrada se olvida sin evento.
	assert.Equal(t, 0, w.Status().Resolved)
	assert.Equal(t, 0, w.Status().Watching)
}

func TestSubscribe_DropsWhenBufferFull(t *testing.T) {
	venues := &stubVenues{}
	venues.set("polymarket:m1", domain.VenueStatus{Resolved: true, Outcome: true})
	venues.set("polymarket:m2", domain.VenueStatus{Resolved: true, Outcome: true})

	store := newTrackStore()
	w := watcher.New(watcher.Config{}, venues, store)
	events := w.Subscribe(1) // buffer mínimo

	w.Watch(pred("p1", "polymarket", "m1", domain.DirectionYes, 0.8))
	w.Watch(pred("p2", "polymarket", "m2", domain.DirectionYes, 0.8))
	w.PollOnce(context.Background())

	// Ambas resoluciones persisten aunque el canal solo acepte una:
	// el canal es best-effort, el store es la fuente de verdad.
	assert.Equal(t, 2, w.Status().Resolved)
	assert.Len(t, events, 1)
}
