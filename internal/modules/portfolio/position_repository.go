// Package portfolio reads portfolio holdings from portfolio.db.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

// PositionRepository handles position database operations
type PositionRepository struct {
	portfolioDB *sql.DB // portfolio.db - portfolios, positions
	log         zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(portfolioDB *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "position").Logger(),
	}
}

// GetPositions returns the holdings of a portfolio ordered by symbol.
// An unknown portfolio yields a NotFound error; a known portfolio with no
// holdings yields an empty slice.
func (r *PositionRepository) GetPositions(ctx context.Context, portfolioID string) ([]domain.Position, error) {
	const op = "portfolio.PositionRepository.GetPositions"

	exists, err := r.portfolioExists(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NewError(domain.KindNotFound, op, "portfolio %s not found", portfolioID)
	}

	rows, err := r.portfolioDB.QueryContext(ctx, `
		SELECT portfolio_id, symbol, quantity, avg_cost, current_price, market_value, last_updated
		FROM positions
		WHERE portfolio_id = ?
		ORDER BY symbol
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []domain.Position{}
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	r.log.Debug().
		Str("portfolio_id", portfolioID).
		Int("positions", len(positions)).
		Msg("Loaded positions")

	return positions, nil
}

// Upsert inserts or replaces a position, creating the portfolio row if needed
func (r *PositionRepository) Upsert(ctx context.Context, pos domain.Position) error {
	now := time.Now().Unix()
	lastUpdated := now
	if !pos.LastUpdated.IsZero() {
		lastUpdated = pos.LastUpdated.Unix()
	}

	tx, err := r.portfolioDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO portfolios (id, name, created_at) VALUES (?, '', ?)`,
		pos.PortfolioID, now,
	); err != nil {
		return fmt.Errorf("failed to ensure portfolio %s: %w", pos.PortfolioID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO positions
			(portfolio_id, symbol, quantity, avg_cost, current_price, market_value, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pos.PortfolioID, pos.Symbol, pos.Quantity, pos.AverageCost, pos.CurrentPrice, pos.MarketValue, lastUpdated); err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.Symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit position %s: %w", pos.Symbol, err)
	}
	return nil
}

func (r *PositionRepository) portfolioExists(ctx context.Context, portfolioID string) (bool, error) {
	var id string
	err := r.portfolioDB.QueryRowContext(ctx, `SELECT id FROM portfolios WHERE id = ?`, portfolioID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query portfolio %s: %w", portfolioID, err)
	}
	return true, nil
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var pos domain.Position
	var lastUpdated sql.NullInt64

	err := rows.Scan(
		&pos.PortfolioID,
		&pos.Symbol,
		&pos.Quantity,
		&pos.AverageCost,
		&pos.CurrentPrice,
		&pos.MarketValue,
		&lastUpdated,
	)
	if err != nil {
		return pos, err
	}

	if lastUpdated.Valid {
		pos.LastUpdated = time.Unix(lastUpdated.Int64, 0).UTC()
	}

	// Older rows may carry no market value; derive it from price
	if pos.MarketValue == 0 && pos.CurrentPrice > 0 {
		pos.MarketValue = pos.Quantity * pos.CurrentPrice
	}

	return pos, nil
}
