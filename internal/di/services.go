package di

import (
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/aristath/frontier/internal/services"
	"github.com/rs/zerolog"
)

// OptimizationSettings maps configuration onto the engine settings
func OptimizationSettings(cfg *config.Config) optimization.Settings {
	return optimization.Settings{
		PeriodsPerYear:      cfg.PeriodsPerYear,
		RiskFreeRate:        cfg.RiskFreeRate,
		FrontierPoints:      cfg.FrontierPoints,
		MaxIterations:       cfg.OptimizerMaxIterations,
		CovarianceShrinkage: cfg.CovarianceShrinkage,
		AllowShort:          cfg.AllowShort,
	}
}

// InitializeServices creates the engines and the orchestration service
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	stats := OptimizationSettings(cfg)

	container.Optimizer = optimization.NewOptimizer(stats, log)
	container.Simulator = simulation.NewSimulator(simulation.Settings{
		MinSimulations:       cfg.MinSimulations,
		MaxSimulations:       cfg.MaxSimulations,
		MaxReturnedScenarios: cfg.MaxReturnedScenarios,
		Workers:              cfg.SimulationWorkers,
	}, log)

	container.OptimizationService = services.NewOptimizationService(
		container.PositionRepo,
		container.HistoryDBClient,
		container.Optimizer,
		container.Simulator,
		container.ResultCache,
		services.ServiceSettings{
			Statistics:        stats,
			LookbackDays:      cfg.LookbackDays,
			OptimizeTimeout:   cfg.OptimizeTimeout,
			SimulationTimeout: cfg.SimulationTimeout,
		},
		log,
	)

	log.Info().
		Int("frontier_points", cfg.FrontierPoints).
		Int("simulation_workers", cfg.SimulationWorkers).
		Msg("Services initialized")
}
