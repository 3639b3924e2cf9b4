package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/lineup-engine/pkg/logger"
	"github.com/stitts-dev/lineup-engine/pkg/optimizer"
	"github.com/stitts-dev/lineup-engine/types"
)

// Config tunes a portfolio generation run.
type Config struct {
	Workers          int                  `json:"workers"`
	MaxRetries       int                  `json:"max_retries"` // consecutive no-progress batches before giving up
	CorrectionPasses int                  `json:"correction_passes"`
	PerturbSigma     float64              `json:"perturb_sigma"`
	Seed             int64                `json:"seed"`
	Solve            optimizer.SolveConfig `json:"solve"`
}

// DefaultConfig returns the generation bounds used when the caller does not
// tune them.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		MaxRetries:       5,
		CorrectionPasses: 3,
		PerturbSigma:     0.08,
		Solve:            optimizer.DefaultSolveConfig(),
	}
}

// Generator produces diversified portfolios by repeated perturbed solves.
type Generator struct {
	cfg Config
}

// NewGenerator creates a generator with the given bounds, filling zero
// values from DefaultConfig.
func NewGenerator(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.CorrectionPasses < 0 {
		cfg.CorrectionPasses = def.CorrectionPasses
	}
	if cfg.PerturbSigma <= 0 {
		cfg.PerturbSigma = def.PerturbSigma
	}
	if cfg.Solve.TimeBudget <= 0 {
		cfg.Solve = def.Solve
	}
	return &Generator{cfg: cfg}
}

// Generate builds a portfolio of rules.NumLineups lineups, each individually
// feasible, pairwise distinct by at least rules.MinDifferentPlayers, with
// aggregate exposure inside the configured bounds. When the bounds cannot be
// met at the requested size, the portfolio comes back tagged Partial with
// named violations and ErrPartialPortfolio — bounds are never silently
// violated.
func (g *Generator) Generate(ctx context.Context, players []types.Player, rules types.ConstraintSet) (*types.Portfolio, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid constraint set: %w", err)
	}
	if err := types.ValidatePlayers(players, rules); err != nil {
		return nil, fmt.Errorf("invalid player batch: %w", err)
	}
	if rules.NumLineups <= 0 {
		return nil, fmt.Errorf("portfolio size must be positive, got %d", rules.NumLineups)
	}

	portfolioID := uuid.New().String()
	log := logger.WithPortfolioContext(portfolioID, rules.NumLineups)
	log.WithFields(logrus.Fields{
		"total_players":         len(players),
		"min_different_players": rules.MinDifferentPlayers,
		"workers":               g.cfg.Workers,
		"seed":                  g.cfg.Seed,
	}).Info("Starting portfolio generation")

	run := &generation{
		gen:     g,
		log:     log,
		players: players,
		rules:   rules,
		base:    optimizer.NewObjectiveWeights(),
		tally:   newExposureTally(),
	}

	if err := run.fill(ctx); err != nil {
		if errors.Is(err, types.ErrCancelled) {
			return run.finish(log, true), types.ErrCancelled
		}
		return nil, err
	}
	run.correct(ctx)

	portfolio := run.finish(log, false)
	if portfolio.Partial {
		return portfolio, &types.PartialPortfolioError{Violations: portfolio.Violations}
	}
	log.WithField("accepted", len(portfolio.Lineups)).Info("Portfolio generation completed")
	return portfolio, nil
}

// generation is the mutable state of one Generate call. The exposure tally
// is only ever touched on the sequential accept path.
type generation struct {
	gen      *Generator
	log      *logrus.Entry
	players  []types.Player
	rules    types.ConstraintSet
	base     optimizer.ObjectiveWeights
	tally    *exposureTally
	accepted []types.Lineup
	seq      int64
}

// fill runs the initial generate-and-reject passes until the portfolio is
// full or the retry budget is gone.
func (r *generation) fill(ctx context.Context) error {
	badBatches := 0
	for len(r.accepted) < r.rules.NumLineups {
		if err := ctx.Err(); err != nil {
			return types.ErrCancelled
		}

		need := r.rules.NumLineups - len(r.accepted)
		batch := r.gen.cfg.Workers
		if batch > need {
			batch = need
		}

		candidates, errs := r.solveBatch(ctx, batch, nil)

		progress := false
		var firstInfeasible error
		for b := 0; b < batch; b++ {
			if errs[b] != nil {
				if errors.Is(errs[b], types.ErrCancelled) {
					return types.ErrCancelled
				}
				if errors.Is(errs[b], types.ErrInfeasible) && firstInfeasible == nil {
					firstInfeasible = errs[b]
				}
				// Suboptimal incumbents are still usable candidates.
				if candidates[b] == nil {
					continue
				}
			}
			if r.accept(*candidates[b]) {
				progress = true
			}
		}

		// A hard-infeasible request cannot be rescued by perturbation.
		if firstInfeasible != nil && len(r.accepted) == 0 {
			return firstInfeasible
		}

		if progress {
			badBatches = 0
			continue
		}
		badBatches++
		if badBatches > r.gen.cfg.MaxRetries {
			r.log.WithFields(logrus.Fields{
				"accepted":  len(r.accepted),
				"requested": r.rules.NumLineups,
			}).Warn("Retry budget exhausted, portfolio will be partial")
			return nil
		}
	}
	return nil
}

// solveBatch runs up to `batch` perturbed solves in parallel against one
// exposure snapshot. Extra per-candidate weights let correction passes steer
// individual solves. Accept decisions stay sequential; only the solving is
// concurrent.
func (r *generation) solveBatch(ctx context.Context, batch int, extra []optimizer.ObjectiveWeights) ([]*types.Lineup, []error) {
	snap := r.tally.snapshot()
	candidates := make([]*types.Lineup, batch)
	errs := make([]error, batch)

	eg, gctx := errgroup.WithContext(ctx)
	for b := 0; b < batch; b++ {
		b := b
		weights := r.base
		if extra != nil {
			weights = extra[b]
		}
		weights = pressureWeights(weights, r.players, r.rules, snap)
		seed := r.gen.cfg.Seed + r.seq
		r.seq++
		weights = weights.Perturb(r.players, seed, r.gen.cfg.PerturbSigma)

		solveCfg := r.gen.cfg.Solve
		solveCfg.Seed = seed
		eg.Go(func() error {
			candidates[b], errs[b] = optimizer.Solve(gctx, r.players, r.rules, weights, solveCfg)
			return nil
		})
	}
	_ = eg.Wait()
	return candidates, errs
}

// accept applies the sequential checks a candidate must pass: pairwise
// distinctness against every accepted lineup and the hard max-exposure
// budgets. On success the single-writer tally is updated.
func (r *generation) accept(candidate types.Lineup) bool {
	for _, existing := range r.accepted {
		if candidate.DiffCount(existing) < r.rules.MinDifferentPlayers || candidate.DiffCount(existing) == 0 {
			return false
		}
	}

	n := r.rules.NumLineups
	for _, p := range candidate.Players {
		if max, ok := r.rules.MaxExposure[p.ID]; ok {
			if r.tally.playerCounts[p.ID] >= maxCount(max, n) {
				return false
			}
		}
	}
	teams := make(map[string]bool)
	for _, p := range candidate.Players {
		teams[p.Team] = true
	}
	for team := range teams {
		if max, ok := r.rules.TeamMaxExposure[team]; ok {
			if r.tally.teamCounts[team] >= maxCount(max, n) {
				return false
			}
		}
	}

	r.accepted = append(r.accepted, candidate)
	r.tally.add(candidate)
	return true
}

// correct runs the bounded exposure-correction passes: lineups most
// responsible for a minimum-exposure shortfall are re-solved with a strong
// bonus on the owed player and replaced when the result still satisfies
// distinctness and the max-exposure budgets.
func (r *generation) correct(ctx context.Context) {
	for pass := 0; pass < r.gen.cfg.CorrectionPasses; pass++ {
		violations := computeViolations(r.accepted, r.players, r.rules)
		shortfalls := minShortfalls(violations)
		if len(shortfalls) == 0 {
			return
		}
		if ctx.Err() != nil {
			return
		}
		r.log.WithFields(logrus.Fields{
			"pass":     pass + 1,
			"detail":   violationSummary(violations),
		}).Debug("Running exposure correction pass")

		fixed := false
		for _, v := range shortfalls {
			if r.correctShortfall(ctx, v) {
				fixed = true
			}
		}
		if !fixed {
			return
		}
	}
}

func minShortfalls(violations []types.ExposureViolation) []types.ExposureViolation {
	var out []types.ExposureViolation
	for _, v := range violations {
		if v.Kind == "player" && v.Detail == "below minimum" {
			out = append(out, v)
		}
	}
	return out
}

func (r *generation) correctShortfall(ctx context.Context, v types.ExposureViolation) bool {
	id, err := uuid.Parse(v.Key)
	if err != nil {
		return false
	}
	var target *types.Player
	for i := range r.players {
		if r.players[i].ID == id {
			target = &r.players[i]
			break
		}
	}
	if target == nil {
		return false
	}

	// The lineup most responsible is the cheapest one to disturb: lowest
	// projection among those missing the player.
	victim := -1
	for i, l := range r.accepted {
		if l.Contains(id) {
			continue
		}
		if victim < 0 || l.ProjectedPoints < r.accepted[victim].ProjectedPoints {
			victim = i
		}
	}
	if victim < 0 {
		return false
	}

	old := r.accepted[victim]
	r.tally.remove(old)
	r.accepted = append(r.accepted[:victim], r.accepted[victim+1:]...)

	weights := r.base.WithBonus(id, target.ProjectedPoints*2.0)
	candidates, errs := r.solveBatch(ctx, 1, []optimizer.ObjectiveWeights{weights})
	if candidates[0] != nil && (errs[0] == nil || errors.Is(errs[0], types.ErrSuboptimalTimeout)) &&
		candidates[0].Contains(id) && r.accept(*candidates[0]) {
		return true
	}

	// Replacement failed; put the original back.
	r.accepted = append(r.accepted, old)
	r.tally.add(old)
	return false
}

// finish freezes the run into a portfolio, tagging it Partial when the size
// or any exposure bound is unmet.
func (r *generation) finish(log *logrus.Entry, cancelled bool) *types.Portfolio {
	// Portfolio members carry their position in the emitted order.
	for i := range r.accepted {
		r.accepted[i].ID = fmt.Sprintf("lineup_%d_%s", i+1, uuid.New().String()[:8])
	}

	violations := computeViolations(r.accepted, r.players, r.rules)
	if len(r.accepted) < r.rules.NumLineups {
		violations = append(violations, types.ExposureViolation{
			Kind:     "portfolio",
			Key:      "size",
			Bound:    float64(r.rules.NumLineups),
			Realized: float64(len(r.accepted)),
			Detail:   fmt.Sprintf("accepted %d of %d requested lineups", len(r.accepted), r.rules.NumLineups),
		})
	}

	portfolio := &types.Portfolio{
		Lineups:    r.accepted,
		Partial:    cancelled || len(violations) > 0,
		Violations: violations,
	}
	if portfolio.Partial && !cancelled {
		log.WithFields(logrus.Fields{
			"accepted": len(r.accepted),
			"detail":   violationSummary(violations),
		}).Warn("Portfolio is partial")
	}
	return portfolio
}
