package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
)

// Repository defines the location lookups used by the actuation engine and API.
type Repository interface {
	GetRoom(ctx context.Context, id int64) (*Room, error)

	// GetRoomParameters lists the parameters measured by the room's sensors.
	GetRoomParameters(ctx context.Context, roomID int64) ([]string, error)

	// GetEnvironmentForRoom returns ErrEnvironmentNotFound when the room is
	// missing or not attached to an environment.
	GetEnvironmentForRoom(ctx context.Context, roomID int64) (*Environment, error)

	// GetMemberPushTokens lists the distinct non-empty notification tokens of
	// the environment's members.
	GetMemberPushTokens(ctx context.Context, environmentID int64) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db database.Querier
}

// NewSQLiteRepository creates a new SQLite-backed location repository.
func NewSQLiteRepository(db database.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetRoom retrieves a room by ID.
func (r *SQLiteRepository) GetRoom(ctx context.Context, id int64) (*Room, error) {
	const query = `SELECT id, environment_id, name FROM rooms WHERE id = ?`

	var room Room
	var envID sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&room.ID, &envID, &room.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room %d: %w", id, err)
	}
	if envID.Valid {
		room.EnvironmentID = &envID.Int64
	}
	return &room, nil
}

// GetRoomParameters lists, sorted and distinct, the parameters that the
// sensor types installed in the room measure.
func (r *SQLiteRepository) GetRoomParameters(ctx context.Context, roomID int64) ([]string, error) {
	const query = `
		SELECT DISTINCT p.name
		FROM sensors s
		JOIN sensor_type_parameters stp ON stp.type_id = s.type_id
		JOIN parameters p ON p.id = stp.parameter_id
		WHERE s.room_id = ?
		ORDER BY p.name`

	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("querying parameters for room %d: %w", roomID, err)
	}
	defer rows.Close()

	var params []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning room parameter: %w", err)
		}
		params = append(params, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating room parameters: %w", err)
	}
	return params, nil
}

// GetEnvironmentForRoom resolves the environment that owns the room.
func (r *SQLiteRepository) GetEnvironmentForRoom(ctx context.Context, roomID int64) (*Environment, error) {
	const query = `
		SELECT e.id, e.name
		FROM rooms r
		JOIN environments e ON e.id = r.environment_id
		WHERE r.id = ?`

	var env Environment
	if err := r.db.QueryRowContext(ctx, query, roomID).Scan(&env.ID, &env.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnvironmentNotFound
		}
		return nil, fmt.Errorf("querying environment for room %d: %w", roomID, err)
	}
	return &env, nil
}

// GetMemberPushTokens lists members' registered notification tokens.
func (r *SQLiteRepository) GetMemberPushTokens(ctx context.Context, environmentID int64) ([]string, error) {
	const query = `
		SELECT DISTINCT u.notification_token
		FROM environment_members m
		JOIN users u ON u.id = m.member_id
		WHERE m.environment_id = ?
			AND u.notification_token IS NOT NULL
			AND u.notification_token <> ''
		ORDER BY u.notification_token`

	rows, err := r.db.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, fmt.Errorf("querying push tokens for environment %d: %w", environmentID, err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scanning push token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating push tokens: %w", err)
	}
	return tokens, nil
}
