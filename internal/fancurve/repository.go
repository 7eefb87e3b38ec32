package fancurve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
)

// Repository stores one curve per (room, parameter) pair.
type Repository interface {
	// GetCurve returns ErrCurveNotFound when nothing is stored.
	GetCurve(ctx context.Context, roomID int64, parameter string) (*Curve, error)

	// InsertCurveIfAbsent stores curve unless a curve already exists.
	InsertCurveIfAbsent(ctx context.Context, roomID int64, parameter string, curve Curve) error

	// UpsertCurve stores curve, replacing any existing one.
	UpsertCurve(ctx context.Context, roomID int64, parameter string, curve Curve) error
}

// SQLiteRepository implements Repository on the settings table, with the curve
// kept as a JSON document.
type SQLiteRepository struct {
	db database.Querier
}

// NewSQLiteRepository creates a new SQLite-backed curve repository.
func NewSQLiteRepository(db database.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetCurve retrieves the curve for a room and parameter.
func (r *SQLiteRepository) GetCurve(ctx context.Context, roomID int64, parameter string) (*Curve, error) {
	const query = `SELECT curve FROM settings WHERE room_id = ? AND parameter = ?`

	var doc string
	if err := r.db.QueryRowContext(ctx, query, roomID, parameter).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCurveNotFound
		}
		return nil, fmt.Errorf("querying curve: %w", err)
	}

	var curve Curve
	if err := json.Unmarshal([]byte(doc), &curve); err != nil {
		return nil, fmt.Errorf("decoding curve for room %d %s: %w", roomID, parameter, err)
	}
	return &curve, nil
}

// InsertCurveIfAbsent inserts curve; an existing row is left untouched.
func (r *SQLiteRepository) InsertCurveIfAbsent(ctx context.Context, roomID int64, parameter string, curve Curve) error {
	const query = `
		INSERT INTO settings (room_id, parameter, curve)
		VALUES (?, ?, ?)
		ON CONFLICT (room_id, parameter) DO NOTHING`

	doc, err := json.Marshal(curve)
	if err != nil {
		return fmt.Errorf("encoding curve: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, roomID, parameter, string(doc)); err != nil {
		return fmt.Errorf("inserting curve: %w", err)
	}
	return nil
}

// UpsertCurve inserts or replaces the curve.
func (r *SQLiteRepository) UpsertCurve(ctx context.Context, roomID int64, parameter string, curve Curve) error {
	const query = `
		INSERT INTO settings (room_id, parameter, curve)
		VALUES (?, ?, ?)
		ON CONFLICT (room_id, parameter) DO UPDATE SET curve = excluded.curve`

	doc, err := json.Marshal(curve)
	if err != nil {
		return fmt.Errorf("encoding curve: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, roomID, parameter, string(doc)); err != nil {
		return fmt.Errorf("upserting curve: %w", err)
	}
	return nil
}
