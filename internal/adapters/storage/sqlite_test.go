package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/oraculo/internal/adapters/storage"
	"github.com/alejandrodnm/oraculo/internal/domain"
)

func openStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makePrediction() domain.Prediction {
	return domain.Prediction{
		ID:          uuid.NewString(),
		Question:    "Will Bitcoin reach $100k by 2025?",
		Probability: 0.72,
		Direction:   domain.DirectionYes,
		Category:    domain.CategoryCrypto,
		Reasoning:   "score 85 (mispriced): market at 40.0% vs base rate 72.0%",
		MarketVenue: "polymarket",
		MarketID:    "m1",
		Status:      domain.PredictionOpen,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetPrediction(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	p := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, p))

	got, err := db.GetPrediction(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Question, got.Question)
	assert.InDelta(t, 0.72, got.Probability, 1e-9)
	assert.Equal(t, domain.DirectionYes, got.Direction)
	assert.Equal(t, domain.CategoryCrypto, got.Category)
	assert.Equal(t, "polymarket:m1", got.MarketKey())
	assert.Equal(t, domain.PredictionOpen, got.Status)
	assert.Nil(t, got.Outcome)
	assert.Nil(t, got.Score)
	assert.Nil(t, got.ResolvedAt)
}

func TestGetPrediction_NotFound(t *testing.T) {
	db := openStore(t)
	_, err := db.GetPrediction(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolvePrediction_AssignsOutcomeAndScoreOnce(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	p := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, p))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.ResolvePrediction(ctx, p.ID, true, 0.0784, at))

	got, err := db.GetPrediction(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictionResolved, got.Status)
	require.NotNil(t, got.Outcome)
	assert.True(t, *got.Outcome)
	require.NotNil(t, got.Score)
	assert.InDelta(t, 0.0784, *got.Score, 1e-9)
	require.NotNil(t, got.ResolvedAt)
}

func TestResolvePrediction_SecondResolveReturnsAlreadyResolved(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	p := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, p))
	require.NoError(t, db.ResolvePrediction(ctx, p.ID, true, 0.04, time.Now().UTC()))

	err := db.ResolvePrediction(ctx, p.ID, false, 0.96, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// El primer resultado es el que queda.
	got, err := db.GetPrediction(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, *got.Outcome)
	assert.InDelta(t, 0.04, *got.Score, 1e-9)
}

func TestResolvePrediction_Missing(t *testing.T) {
	db := openStore(t)
	err := db.ResolvePrediction(context.Background(), "missing", true, 0.1, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAbandonPrediction(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	p := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, p))
	require.NoError(t, db.AbandonPrediction(ctx, p.ID, "market disappeared from venue"))

	got, err := db.GetPrediction(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictionAbandoned, got.Status)
	assert.Contains(t, got.Reasoning, "abandoned: market disappeared")
	assert.Nil(t, got.Outcome, "abandoned predictions never get an outcome")
	assert.Nil(t, got.Score)
}

func TestAbandonPrediction_AlreadyResolved(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	p := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, p))
	require.NoError(t, db.ResolvePrediction(ctx, p.ID, true, 0.04, time.Now().UTC()))

	err := db.AbandonPrediction(ctx, p.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestListOpen(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	open := makePrediction()
	done := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, open))
	require.NoError(t, db.CreatePrediction(ctx, done))
	require.NoError(t, db.ResolvePrediction(ctx, done.ID, false, 0.5, time.Now().UTC()))

	got, err := db.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)
}

func TestListResolvedSince(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	p := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, p))
	require.NoError(t, db.ResolvePrediction(ctx, p.ID, true, 0.04, time.Now().UTC()))

	got, err := db.ListResolvedSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p.ID, got[0].ID)

	// Fuera de ventana.
	got, err = db.ListResolvedSince(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListCommittedSince(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	p := makePrediction()
	require.NoError(t, db.CreatePrediction(ctx, p))

	got, err := db.ListCommittedSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = db.ListCommittedSince(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)
}
