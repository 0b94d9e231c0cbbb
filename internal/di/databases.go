package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the three databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		// portfolio.db - portfolios and current positions
		{"portfolio", database.ProfileStandard, &container.PortfolioDB},
		// history.db - daily closing prices
		{"history", database.ProfileStandard, &container.HistoryDB},
		// calculations.db - memoized results, safe to lose
		{"calculations", database.ProfileCache, &container.CalculationsDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", spec.name, err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("All databases initialized and schemas applied")

	return container, nil
}
