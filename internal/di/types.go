// Package di wires databases, repositories, engines and jobs into a Container.
package di

import (
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/calculations"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/portfolio"
	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/aristath/frontier/internal/services"
)

// Container holds all dependencies for the application.
// It is created by Wire and handed to the server.
type Container struct {
	// Databases
	PortfolioDB    *database.DB // portfolios, positions
	HistoryDB      *database.DB // daily_prices
	CalculationsDB *database.DB // memoized optimization and simulation results

	// Repositories
	PositionRepo    *portfolio.PositionRepository
	HistoryDBClient *universe.HistoryDB
	ResultCache     *calculations.ResultCache

	// Engines and services
	Optimizer           *optimization.Optimizer
	Simulator           *simulation.Simulator
	OptimizationService *services.OptimizationService

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	ResultCacheCleanup  scheduler.Job
	CheckWALCheckpoints scheduler.Job
}

// Databases returns every open database
func (c *Container) Databases() []*database.DB {
	return []*database.DB{c.PortfolioDB, c.HistoryDB, c.CalculationsDB}
}

// Close closes every open database
func (c *Container) Close() {
	for _, db := range c.Databases() {
		if db != nil {
			db.Close()
		}
	}
}
