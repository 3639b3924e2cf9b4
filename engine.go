// Package lineupengine is the environment-configured entry point: it loads
// the engine tunables once and hands out the solver, portfolio generator,
// simulation engine, and late-swap resolver wired from them.
package lineupengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stitts-dev/lineup-engine/pkg/config"
	"github.com/stitts-dev/lineup-engine/pkg/lateswap"
	"github.com/stitts-dev/lineup-engine/pkg/logger"
	"github.com/stitts-dev/lineup-engine/pkg/optimizer"
	"github.com/stitts-dev/lineup-engine/pkg/portfolio"
	"github.com/stitts-dev/lineup-engine/pkg/simulator"
	"github.com/stitts-dev/lineup-engine/types"
)

// Engine bundles the four components behind one configuration.
type Engine struct {
	cfg       *config.Config
	generator *portfolio.Generator
	simulator *simulator.Engine
	resolver  *lateswap.Resolver
}

// New loads configuration from the environment and builds an engine from it.
func New() (*Engine, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig builds an engine from an explicit configuration.
func NewWithConfig(cfg *config.Config) *Engine {
	logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	return &Engine{
		cfg:       cfg,
		generator: portfolio.NewGenerator(cfg.GeneratorConfig()),
		simulator: simulator.NewEngine(cfg.SimulatorConfig()),
		resolver:  lateswap.NewResolver(cfg.SolveConfig()),
	}
}

// Solve returns the single optimal lineup for the catalog and rules.
func (e *Engine) Solve(ctx context.Context, players []types.Player, rules types.ConstraintSet) (*types.Lineup, error) {
	return optimizer.Solve(ctx, players, rules, optimizer.NewObjectiveWeights(), e.cfg.SolveConfig())
}

// Generate builds a diversified portfolio, capped at the configured maximum
// portfolio size.
func (e *Engine) Generate(ctx context.Context, players []types.Player, rules types.ConstraintSet) (*types.Portfolio, error) {
	if rules.NumLineups > e.cfg.MaxLineups {
		return nil, fmt.Errorf("requested %d lineups, configured maximum is %d", rules.NumLineups, e.cfg.MaxLineups)
	}
	return e.generator.Generate(ctx, players, rules)
}

// Simulate estimates portfolio performance against the given field model.
func (e *Engine) Simulate(ctx context.Context, p *types.Portfolio, players []types.Player, rules types.ConstraintSet, field types.FieldModel) ([]types.SimulationResult, error) {
	return e.simulator.Simulate(ctx, p, players, rules, field)
}

// Resolve repairs a submitted lineup after players become unavailable.
func (e *Engine) Resolve(ctx context.Context, prior types.Lineup, players []types.Player, rules types.ConstraintSet, ineligible []uuid.UUID) (*types.SwapResult, error) {
	return e.resolver.Resolve(ctx, prior, players, rules, ineligible)
}
