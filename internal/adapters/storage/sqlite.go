// Package storage implementa el PredictionStore sobre SQLite (driver puro
// Go, sin cgo). Un solo fichero, una sola conexión: suficiente para el
// volumen de escrituras del loop.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id           TEXT PRIMARY KEY,
	question     TEXT NOT NULL,
	probability  REAL NOT NULL,
	direction    TEXT NOT NULL,
	category     TEXT NOT NULL,
	reasoning    TEXT NOT NULL DEFAULT '',
	market_venue TEXT NOT NULL DEFAULT '',
	market_id    TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   TIMESTAMP NOT NULL,
	resolved_at  TIMESTAMP,
	outcome      INTEGER,
	score        REAL
);

CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);

CREATE TABLE IF NOT EXISTS resolution_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	prediction_id TEXT NOT NULL REFERENCES predictions(id),
	market_key    TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL,
	outcome       INTEGER NOT NULL,
	score         REAL NOT NULL,
	resolved_at   TIMESTAMP NOT NULL
);
`

// SQLiteStore implementa ports.PredictionStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base en dsn y aplica el schema.
// Usa ":memory:" para una base efímera en tests.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open: %w", err)
	}
	// El driver no soporta escrituras concurrentes sobre la misma conexión;
	// serializamos en el pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// CreatePrediction inserta una predicción nueva en estado open.
func (s *SQLiteStore) CreatePrediction(ctx context.Context, p domain.Prediction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions
			(id, question, probability, direction, category, reasoning,
			 market_venue, market_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Question, p.Probability, string(p.Direction), string(p.Category),
		p.Reasoning, p.MarketVenue, p.MarketID, string(p.Status), p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.CreatePrediction: %w", err)
	}
	return nil
}

// GetPrediction devuelve una predicción por id.
func (s *SQLiteStore) GetPrediction(ctx context.Context, id string) (domain.Prediction, error) {
	row := s.db.QueryRowContext(ctx, selectPrediction+` WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Prediction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("storage.GetPrediction: %w", err)
	}
	return p, nil
}

// ResolvePrediction asigna outcome y score exactamente una vez y apendea
// el evento al log de resoluciones en la misma transacción. El UPDATE
// condicionado a status='open' es el candado: cero filas afectadas sobre
// una predicción existente significa que ya estaba resuelta.
func (s *SQLiteStore) ResolvePrediction(ctx context.Context, id string, outcome bool, score float64, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.ResolvePrediction: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE predictions
		SET status = ?, resolved_at = ?, outcome = ?, score = ?
		WHERE id = ? AND status = ?`,
		string(domain.PredictionResolved), at.UTC(), outcome, score,
		id, string(domain.PredictionOpen),
	)
	if err != nil {
		return fmt.Errorf("storage.ResolvePrediction: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.ResolvePrediction: rows affected: %w", err)
	}
	if affected == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM predictions WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("storage.ResolvePrediction: status check: %w", err)
		}
		return domain.ErrAlreadyResolved
	}

	var marketVenue, marketID, category string
	if err := tx.QueryRowContext(ctx,
		`SELECT market_venue, market_id, category FROM predictions WHERE id = ?`, id,
	).Scan(&marketVenue, &marketID, &category); err != nil {
		return fmt.Errorf("storage.ResolvePrediction: read back: %w", err)
	}
	marketKey := ""
	if marketVenue != "" && marketID != "" {
		marketKey = marketVenue + ":" + marketID
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resolution_events
			(prediction_id, market_key, category, outcome, score, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, marketKey, category, outcome, score, at.UTC(),
	); err != nil {
		return fmt.Errorf("storage.ResolvePrediction: event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.ResolvePrediction: commit: %w", err)
	}
	return nil
}

// AbandonPrediction marca la predicción como abandonada sin asignar
// outcome ni score. Abandonar algo ya resuelto es un error.
func (s *SQLiteStore) AbandonPrediction(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions
		SET status = ?, reasoning = reasoning || char(10) || 'abandoned: ' || ?
		WHERE id = ? AND status = ?`,
		string(domain.PredictionAbandoned), reason, id, string(domain.PredictionOpen),
	)
	if err != nil {
		return fmt.Errorf("storage.AbandonPrediction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.AbandonPrediction: rows affected: %w", err)
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM predictions WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("storage.AbandonPrediction: status check: %w", err)
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

// ListResolvedSince devuelve las predicciones resueltas desde el instante dado.
func (s *SQLiteStore) ListResolvedSince(ctx context.Context, since time.Time) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPrediction+` WHERE status = ? AND resolved_at >= ? ORDER BY resolved_at`,
		string(domain.PredictionResolved), since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListResolvedSince: %w", err)
	}
	return collectPredictions(rows, "storage.ListResolvedSince")
}

// ListOpen devuelve las predicciones aún sin resolver.
func (s *SQLiteStore) ListOpen(ctx context.Context) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPrediction+` WHERE status = ? ORDER BY created_at`,
		string(domain.PredictionOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListOpen: %w", err)
	}
	return collectPredictions(rows, "storage.ListOpen")
}

// ListCommittedSince devuelve las predicciones creadas desde el instante dado.
func (s *SQLiteStore) ListCommittedSince(ctx context.Context, since time.Time) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPrediction+` WHERE created_at >= ? ORDER BY created_at`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListCommittedSince: %w", err)
	}
	return collectPredictions(rows, "storage.ListCommittedSince")
}

// Close cierra la conexión.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectPrediction = `
	SELECT id, question, probability, direction, category, reasoning,
	       market_venue, market_id, status, created_at, resolved_at,
	       outcome, score
	FROM predictions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (domain.Prediction, error) {
	var (
		p          domain.Prediction
		direction  string
		category   string
		status     string
		resolvedAt sql.NullTime
		outcome    sql.NullBool
		score      sql.NullFloat64
	)
	err := row.Scan(
		&p.ID, &p.Question, &p.Probability, &direction, &category,
		&p.Reasoning, &p.MarketVenue, &p.MarketID, &status, &p.CreatedAt,
		&resolvedAt, &outcome, &score,
	)
	if err != nil {
		return domain.Prediction{}, err
	}
	p.Direction = domain.Direction(direction)
	p.Category = domain.Category(category)
	p.Status = domain.PredictionStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	if outcome.Valid {
		v := outcome.Bool
		p.Outcome = &v
	}
	if score.Valid {
		v := score.Float64
		p.Score = &v
	}
	return p, nil
}

func collectPredictions(rows *sql.Rows, op string) ([]domain.Prediction, error) {
	defer rows.Close()
	var out []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}
