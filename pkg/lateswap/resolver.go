package lateswap

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-engine/pkg/logger"
	"github.com/stitts-dev/lineup-engine/pkg/optimizer"
	"github.com/stitts-dev/lineup-engine/types"
)

// Resolver repairs an already-submitted lineup after part of the catalog
// becomes unavailable. Surviving players are kept in place; only the vacated
// spots are re-solved.
type Resolver struct {
	cfg optimizer.SolveConfig
}

// NewResolver creates a resolver using the given solve bounds, falling back
// to the solver defaults when unset.
func NewResolver(cfg optimizer.SolveConfig) *Resolver {
	def := optimizer.DefaultSolveConfig()
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = def.TimeBudget
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = def.MaxNodes
	}
	return &Resolver{cfg: cfg}
}

// Resolve rebuilds prior with the ineligible players removed. Every still-
// eligible prior player is forced into the new lineup, so the change set is
// exactly the vacated spots; replacements maximize projected points under
// the original salary cap and roster rules. When the vacated spots cannot be
// filled from the remaining catalog, the error is a SwapInfeasibleError
// naming those spots.
func (r *Resolver) Resolve(ctx context.Context, prior types.Lineup, players []types.Player, rules types.ConstraintSet, ineligible []uuid.UUID) (*types.SwapResult, error) {
	log := logger.WithSwapContext(prior.ID, len(ineligible))

	out := make(map[uuid.UUID]bool, len(ineligible))
	for _, id := range ineligible {
		out[id] = true
	}
	catalog := make(map[uuid.UUID]types.Player, len(players))
	for _, p := range players {
		catalog[p.ID] = p
	}

	// A prior player survives when still in the catalog, still eligible, and
	// not named in the outage set.
	var survivors []uuid.UUID
	var vacated []string
	for _, lp := range prior.Players {
		p, present := catalog[lp.ID]
		if present && !out[lp.ID] && !p.IsExcluded && !p.IsInjured {
			survivors = append(survivors, lp.ID)
			continue
		}
		vacated = append(vacated, prior.PlayerPositions[lp.ID])
	}
	sort.Strings(vacated)

	if len(vacated) == 0 {
		log.Debug("No ineligible players in lineup, nothing to swap")
		return &types.SwapResult{Lineup: prior}, nil
	}

	swapRules := rules
	swapRules.LockedPlayers = survivors
	swapRules.ExcludedPlayers = append(append([]uuid.UUID{}, rules.ExcludedPlayers...), ineligible...)
	swapRules.NumLineups = 0
	swapRules.MinDifferentPlayers = 0

	log.WithFields(logrus.Fields{
		"survivors":     len(survivors),
		"vacated_slots": vacated,
	}).Info("Resolving late swap")

	lineup, err := optimizer.Solve(ctx, players, swapRules, optimizer.NewObjectiveWeights(), r.cfg)
	if err != nil {
		var inf *types.InfeasibleError
		if errors.As(err, &inf) {
			log.WithError(err).Warn("Vacated slots cannot be refilled")
			return nil, &types.SwapInfeasibleError{Slots: vacated}
		}
		if lineup == nil {
			return nil, err
		}
		// Suboptimal incumbent: still a valid swap, pass the signal through.
		result := diff(prior, *lineup)
		return result, err
	}

	result := diff(prior, *lineup)
	log.WithFields(logrus.Fields{
		"removed": len(result.Removed),
		"added":   len(result.Added),
	}).Info("Late swap resolved")
	return result, nil
}

// diff builds the audit change list between the prior and replacement
// lineups, both sides sorted for stable output.
func diff(prior, next types.Lineup) *types.SwapResult {
	result := &types.SwapResult{Lineup: next}
	for _, lp := range prior.Players {
		if !next.Contains(lp.ID) {
			result.Removed = append(result.Removed, lp.ID)
		}
	}
	for _, lp := range next.Players {
		if !prior.Contains(lp.ID) {
			result.Added = append(result.Added, lp.ID)
		}
	}
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].String() < result.Removed[j].String() })
	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].String() < result.Added[j].String() })
	return result
}
