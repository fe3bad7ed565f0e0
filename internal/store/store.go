// Package store persists the dashboard's portfolio positions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/models"
)

type Store interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
	// UpsertPosition adds shares to an existing ticker (averaging the cost
	// basis) or creates the position when the ticker is new.
	UpsertPosition(ctx context.Context, p models.Position) (models.Position, error)
	DeletePosition(ctx context.Context, id int64) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ListPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, quantity, avg_cost, created_at
		FROM positions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]models.Position, 0)
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.Ticker, &p.Quantity, &p.AvgCost, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return positions, nil
}

func (s *SQLiteStore) UpsertPosition(ctx context.Context, p models.Position) (models.Position, error) {
	p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Position{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var existing models.Position
	err = tx.QueryRowContext(ctx, `
		SELECT id, quantity, avg_cost FROM positions WHERE ticker = ?`, p.Ticker).
		Scan(&existing.ID, &existing.Quantity, &existing.AvgCost)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO positions(ticker, quantity, avg_cost)
			VALUES (?, ?, ?)`, p.Ticker, p.Quantity, p.AvgCost)
		if err != nil {
			return models.Position{}, fmt.Errorf("insert position: %w", err)
		}
		if existing.ID, err = res.LastInsertId(); err != nil {
			return models.Position{}, fmt.Errorf("position last insert id: %w", err)
		}
	case err != nil:
		return models.Position{}, fmt.Errorf("lookup position: %w", err)
	default:
		newQty := existing.Quantity + p.Quantity
		avgCost := p.AvgCost
		if newQty > 0 {
			avgCost = (existing.Quantity*existing.AvgCost + p.Quantity*p.AvgCost) / newQty
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE positions SET quantity = ?, avg_cost = ? WHERE id = ?`,
			newQty, avgCost, existing.ID); err != nil {
			return models.Position{}, fmt.Errorf("update position: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, ticker, quantity, avg_cost, created_at
		FROM positions WHERE id = ?`, existing.ID)

	var out models.Position
	if err := row.Scan(&out.ID, &out.Ticker, &out.Quantity, &out.AvgCost, &out.CreatedAt); err != nil {
		return models.Position{}, fmt.Errorf("fetch upserted position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Position{}, fmt.Errorf("commit upsert: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("position rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
