package domain

import "context"

// ReturnsProvider supplies time-aligned historical returns for a set of symbols
type ReturnsProvider interface {
	GetReturnSeries(ctx context.Context, symbols []string, lookbackDays int) (*ReturnSeries, error)
}

// PositionProvider supplies the current holdings of a portfolio.
// An unknown portfolio yields ErrNotFound.
type PositionProvider interface {
	GetPositions(ctx context.Context, portfolioID string) ([]Position, error)
}
