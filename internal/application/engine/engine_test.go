package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/oraculo/internal/application/engine"
	"github.com/alejandrodnm/oraculo/internal/domain"
)

// memStore es un PredictionStore en memoria para tests, con fallo inyectable.
type memStore struct {
	mu          sync.Mutex
	predictions map[string]domain.Prediction
	failCreate  error
}

func newMemStore() *memStore {
	return &memStore{predictions: make(map[string]domain.Prediction)}
}

func (s *memStore) CreatePrediction(_ context.Context, p domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	s.predictions[p.ID] = p
	return nil
}

func (s *memStore) GetPrediction(_ context.Context, id string) (domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return domain.Prediction{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memStore) ResolvePrediction(_ context.Context, id string, outcome bool, score float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.PredictionOpen {
		return domain.ErrAlreadyResolved
	}
	p.Status = domain.PredictionResolved
	p.Outcome = &outcome
	p.Score = &score
	p.ResolvedAt = &at
	s.predictions[id] = p
	return nil
}

func (s *memStore) AbandonPrediction(_ context.Context, id string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = domain.PredictionAbandoned
	s.predictions[id] = p
	return nil
}

func (s *memStore) ListResolvedSince(_ context.Context, since time.Time) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.predictions {
		if p.Status == domain.PredictionResolved && p.ResolvedAt != nil && !p.ResolvedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) ListOpen(_ context.Context) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.predictions {
		if p.Status == domain.PredictionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) ListCommittedSince(_ context.Context, since time.Time) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.predictions {
		if !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.predictions)
}

// stubCross devuelve una segunda opinión fija.
type stubCross struct {
	prob float64
	ok   bool
}

func (c stubCross) YesProbability(_ context.Context, _ domain.Market) (float64, bool) {
	return c.prob, c.ok
}

// recordingWatcher acumula las predicciones registradas.
type recordingWatcher struct {
	mu      sync.Mutex
	watched []domain.Prediction
}

func (w *recordingWatcher) Watch(p domain.Prediction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, p)
}

func (w *recordingWatcher) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

func opp(id, question string, cat domain.Category, score float64) domain.Opportunity {
	return domain.Opportunity{
		Market: domain.Market{
			Venue:    "polymarket",
			ID:       id,
			Question: question,
			YesPrice: 0.40,
			Volume:   50_000,
		},
		Category:      cat,
		Score:         score,
		Direction:     domain.DirectionYes,
		SuggestedProb: 0.70,
		Edge:          0.30,
		Confidence:    domain.OppConfidenceHigh,
	}
}

// testConfig desactiva el cooldown para poder evaluar varios candidatos
// en el mismo instante; los tests del cooldown lo reactivan.
func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Cooldown = 0
	return cfg
}

func startedEngine(t *testing.T, cfg engine.Config, store *memStore, cross engine.ProbabilitySource, w engine.Registrar) *engine.Engine {
	t.Helper()
	e, err := engine.New(cfg, store, cross, w)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	return e
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.MaxDivergence = 0
	_, err := engine.New(cfg, newMemStore(), stubCross{}, nil)
	assert.Error(t, err)
}

func TestEvaluate_AcceptsAndPersists(t *testing.T) {
	store := newMemStore()
	w := &recordingWatcher{}
	e := startedEngine(t, testConfig(), store, stubCross{prob: 0.68, ok: true}, w)

	pred, reason, err := e.Evaluate(context.Background(), opp("1", "Will Bitcoin reach $100k?", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	require.Equal(t, engine.ReasonAccepted, reason)
	require.NotNil(t, pred)

	assert.Equal(t, domain.PredictionOpen, pred.Status)
	assert.Equal(t, domain.DirectionYes, pred.Direction)
	// Media de 0.70 y 0.68 tras el cross-check.
	assert.InDelta(t, 0.69, pred.Probability, 1e-9)
	assert.NotEmpty(t, pred.Reasoning)
	assert.Equal(t, 1, store.count())
	assert.Equal(t, 1, w.count())
}

func TestEvaluate_NotRunning(t *testing.T) {
	e, err := engine.New(testConfig(), newMemStore(), stubCross{}, nil)
	require.NoError(t, err)

	_, reason, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonNotRunning, reason)
}

func TestEvaluate_DailyCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDaily = 2
	cfg.MaxPerCategory = 10
	e := startedEngine(t, cfg, newMemStore(), stubCross{}, nil)

	for i, want := range []engine.GateReason{
		engine.ReasonAccepted, engine.ReasonAccepted, engine.ReasonDailyLimit,
	} {
		_, reason, err := e.Evaluate(context.Background(),
			opp(string(rune('a'+i)), "q", domain.CategoryCrypto, 90))
		require.NoError(t, err)
		assert.Equal(t, want, reason, "evaluation %d", i)
	}
}

func TestHandleBatch_CategoryCeilingAllowsThreeOfFive(t *testing.T) {
	store := newMemStore()
	e := startedEngine(t, testConfig(), store, stubCross{}, nil)

	batch := []domain.Opportunity{
		opp("1", "Will Bitcoin reach $100k?", domain.CategoryCrypto, 95),
		opp("2", "Will Ethereum flip Bitcoin?", domain.CategoryCrypto, 90),
		opp("3", "Will Solana hit $500?", domain.CategoryCrypto, 85),
		opp("4", "Will BTC dominance exceed 60%?", domain.CategoryCrypto, 80),
		opp("5", "Will a crypto ETF be approved?", domain.CategoryCrypto, 75),
	}

	committed := e.HandleBatch(context.Background(), batch)
	assert.Len(t, committed, 3, "category ceiling of 3 must hold")
	assert.Equal(t, 3, store.count())

	st := e.Status()
	assert.Equal(t, 2, st.Rejections[engine.ReasonCategoryLimit])
}

func TestEvaluate_Cooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Cooldown = time.Hour
	e := startedEngine(t, cfg, newMemStore(), stubCross{}, nil)

	_, reason, err := e.Evaluate(context.Background(), opp("1", "q1", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	require.Equal(t, engine.ReasonAccepted, reason)

	_, reason, err = e.Evaluate(context.Background(), opp("2", "q2", domain.CategorySports, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonCooldown, reason)
}

func TestEvaluate_AvoidList(t *testing.T) {
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{}, nil)
	e.ApplyLearner(engine.LearnerReport{Avoid: []domain.Category{domain.CategorySports}})

	_, reason, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategorySports, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonAvoided, reason)
}

func TestEvaluate_ScoreConfidenceEdgeGates(t *testing.T) {
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{}, nil)

	low := opp("1", "q", domain.CategoryCrypto, 40)
	_, reason, err := e.Evaluate(context.Background(), low)
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonLowScore, reason)

	timid := opp("2", "q", domain.CategoryCrypto, 90)
	timid.Confidence = domain.OppConfidenceLow
	_, reason, err = e.Evaluate(context.Background(), timid)
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonLowConfidence, reason)

	thin := opp("3", "q", domain.CategoryCrypto, 90)
	thin.Edge = 0.05
	_, reason, err = e.Evaluate(context.Background(), thin)
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonLowEdge, reason)
}

func TestEvaluate_RepeatOnSameMarket(t *testing.T) {
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{}, nil)

	_, reason, err := e.Evaluate(context.Background(), opp("same", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	require.Equal(t, engine.ReasonAccepted, reason)

	_, reason, err = e.Evaluate(context.Background(), opp("same", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonRepeat, reason)
}

func TestEvaluate_AccuracyCircuitBreaker(t *testing.T) {
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{}, nil)
	e.ApplyLearner(engine.LearnerReport{RollingScore: 0.50, SampleSize: 10})

	_, reason, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonCircuitOpen, reason)

	// Un rolling score sin muestras no dispara el breaker.
	e.ApplyLearner(engine.LearnerReport{RollingScore: 0.50, SampleSize: 0})
	_, reason, err = e.Evaluate(context.Background(), opp("2", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonAccepted, reason)
}

func TestEvaluate_CrossCheckDivergenceRejects(t *testing.T) {
	// Candidato a 0.70 YES, cross-check a 0.30: divergencia 0.40 > 0.20.
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{prob: 0.30, ok: true}, nil)

	_, reason, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonDiverged, reason)
}

func TestEvaluate_CrossCheckUnavailableSkipsGracefully(t *testing.T) {
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{ok: false}, nil)

	pred, reason, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	require.Equal(t, engine.ReasonAccepted, reason)
	// Sin segunda opinión, la probabilidad sugerida queda intacta.
	assert.InDelta(t, 0.70, pred.Probability, 1e-9)
}

func TestEvaluate_PersistFailureRollsBack(t *testing.T) {
	store := newMemStore()
	store.failCreate = errors.New("disk full")
	w := &recordingWatcher{}
	e := startedEngine(t, testConfig(), store, stubCross{}, w)

	_, _, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategoryCrypto, 90))
	require.Error(t, err)

	// Nada cambió: ni contadores, ni watcher, ni anti-repeat.
	assert.Equal(t, 0, e.Status().CommittedToday)
	assert.Equal(t, 0, w.count())

	store.failCreate = nil
	_, reason, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonAccepted, reason, "same market must be retryable after a failed commit")
}

func TestEvaluate_NoDirectionFallsBackToYes(t *testing.T) {
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{}, nil)

	o := opp("1", "q", domain.CategoryCrypto, 90)
	o.Direction = ""
	pred, reason, err := e.Evaluate(context.Background(), o)
	require.NoError(t, err)
	require.Equal(t, engine.ReasonAccepted, reason)
	assert.Equal(t, domain.DirectionYes, pred.Direction)
}

func TestStart_RestoresDailyCounters(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	store.predictions["p1"] = domain.Prediction{
		ID: "p1", Category: domain.CategoryCrypto, Status: domain.PredictionOpen,
		CreatedAt: now, MarketVenue: "polymarket", MarketID: "m1",
	}

	e := startedEngine(t, testConfig(), store, stubCross{}, nil)

	st := e.Status()
	assert.Equal(t, 1, st.CommittedToday)
	assert.Equal(t, 1, st.PerCategoryToday[domain.CategoryCrypto])

	// El mercado restaurado también cuenta para el anti-repeat.
	_, reason, err := e.Evaluate(context.Background(), opp("m1", "q", domain.CategoryCrypto, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonRepeat, reason)
}

func TestApplyLearner_ReplacesSignals(t *testing.T) {
	e := startedEngine(t, testConfig(), newMemStore(), stubCross{}, nil)

	e.ApplyLearner(engine.LearnerReport{Avoid: []domain.Category{domain.CategorySports}})
	e.ApplyLearner(engine.LearnerReport{Avoid: []domain.Category{domain.CategoryClimate}})

	// sports se recuperó: el reemplazo total lo saca de la lista.
	_, reason, err := e.Evaluate(context.Background(), opp("1", "q", domain.CategorySports, 90))
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonAccepted, reason)
}

func TestHandleBatch_FavorBoostReordersOnly(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDaily = 1
	store := newMemStore()
	e := startedEngine(t, cfg, store, stubCross{}, nil)
	e.ApplyLearner(engine.LearnerReport{Favor: []domain.Category{domain.CategorySports}})

	// sports 88 + boost 5 = 93 > crypto 90: con techo diario 1, gana sports.
	batch := []domain.Opportunity{
		opp("1", "Will Bitcoin reach $100k?", domain.CategoryCrypto, 90),
		opp("2", "Super Bowl champion?", domain.CategorySports, 88),
	}
	committed := e.HandleBatch(context.Background(), batch)
	require.Len(t, committed, 1)
	assert.Equal(t, domain.CategorySports, committed[0].Category)
}
