// Package universe provides price history and the aligned return series built from it.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		now: time.Now,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// DailyPrice is one closing price
type DailyPrice struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// GetDailyPrices fetches closing prices for a symbol since the given time, oldest first
func (h *HistoryDB) GetDailyPrices(ctx context.Context, symbol string, since time.Time) ([]DailyPrice, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT date, close
		FROM daily_prices
		WHERE symbol = ? AND date >= ?
		ORDER BY date ASC
	`, symbol, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()
		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// StorePrices upserts closing prices for a symbol
func (h *HistoryDB) StorePrices(ctx context.Context, symbol string, prices []DailyPrice) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.ExecContext(ctx, symbol, p.Date.Unix(), p.Close); err != nil {
			return fmt.Errorf("failed to store price for %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prices for %s: %w", symbol, err)
	}
	return nil
}

// maxDroppedDateFraction is the largest share of a symbol's closes that
// alignment may discard
const maxDroppedDateFraction = 0.5

// GetReturnSeries builds simple returns over the dates on which every symbol
// has a close. Symbols without history, too few shared dates, or a symbol
// losing more than half its closes to alignment yield InsufficientData.
// Gaps are never filled.
func (h *HistoryDB) GetReturnSeries(ctx context.Context, symbols []string, lookbackDays int) (*domain.ReturnSeries, error) {
	const op = "universe.HistoryDB.GetReturnSeries"

	if len(symbols) == 0 {
		return nil, domain.NewError(domain.KindInsufficientData, op, "no symbols requested")
	}

	since := time.Unix(0, 0)
	if lookbackDays > 0 {
		since = h.now().AddDate(0, 0, -lookbackDays)
	}

	closes := make([]map[int64]float64, len(symbols))
	var missing []string
	for i, sym := range symbols {
		prices, err := h.GetDailyPrices(ctx, sym, since)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			missing = append(missing, sym)
			continue
		}
		byDate := make(map[int64]float64, len(prices))
		for _, p := range prices {
			byDate[p.Date.Unix()] = p.Close
		}
		closes[i] = byDate
	}
	if len(missing) > 0 {
		return nil, domain.NewError(domain.KindInsufficientData, op, "no price history for %s", strings.Join(missing, ", "))
	}

	dates := commonDates(closes)
	if len(dates) < 3 {
		return nil, domain.NewError(domain.KindInsufficientData, op, "only %d dates shared by all %d symbols", len(dates), len(symbols))
	}

	var dropped int
	for i, byDate := range closes {
		n := len(byDate) - len(dates)
		if n == 0 {
			continue
		}
		dropped += n
		if frac := float64(n) / float64(len(byDate)); frac > maxDroppedDateFraction {
			return nil, domain.NewError(domain.KindInsufficientData, op, "%s loses %d of %d closes to dates the other symbols lack", symbols[i], n, len(byDate))
		}
	}
	if dropped > 0 {
		h.log.Warn().
			Int("dropped_closes", dropped).
			Int("shared_dates", len(dates)).
			Strs("symbols", symbols).
			Msg("Dropped closes not shared by every symbol")
	}

	series := &domain.ReturnSeries{
		Symbols: append([]string(nil), symbols...),
		Returns: make([][]float64, len(symbols)),
		Dates:   make([]time.Time, len(dates)-1),
	}
	for i, d := range dates[1:] {
		series.Dates[i] = time.Unix(d, 0).UTC()
	}

	for i := range symbols {
		prices := make([]float64, len(dates))
		for j, d := range dates {
			prices[j] = closes[i][d]
		}
		series.Returns[i] = formulas.CalculateReturns(prices)
	}

	if err := series.Validate(); err != nil {
		return nil, err
	}

	h.log.Debug().
		Int("symbols", len(symbols)).
		Int("observations", series.Observations()).
		Int("lookback_days", lookbackDays).
		Msg("Built return series")

	return series, nil
}

// commonDates returns the sorted dates present in every map
func commonDates(closes []map[int64]float64) []int64 {
	if len(closes) == 0 {
		return nil
	}

	var dates []int64
	for d := range closes[0] {
		shared := true
		for _, m := range closes[1:] {
			if _, ok := m[d]; !ok {
				shared = false
				break
			}
		}
		if shared {
			dates = append(dates, d)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}
