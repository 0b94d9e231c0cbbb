package di

import (
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/calculations"
	"github.com/aristath/frontier/internal/modules/portfolio"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the data access layer over the open databases
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.PositionRepo = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), log)
	container.HistoryDBClient = universe.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.ResultCache = calculations.NewResultCache(container.CalculationsDB.Conn(), cfg.ResultCacheTTL, log)

	log.Info().Msg("Repositories initialized")
}
