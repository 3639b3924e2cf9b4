package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-engine/pkg/logger"
	"github.com/stitts-dev/lineup-engine/types"
)

// scoreEpsilon separates a strict objective improvement from a tie. Ties are
// broken deterministically: lower total salary, then lexically smaller sorted
// player-id tuple.
const scoreEpsilon = 1e-9

// stopCheckInterval is how many search nodes pass between deadline and
// cancellation checks.
const stopCheckInterval = 512

// SolveConfig bounds a single solver invocation.
type SolveConfig struct {
	TimeBudget time.Duration `json:"time_budget"`
	MaxNodes   int64         `json:"max_nodes"`
	Seed       int64         `json:"seed"` // recorded for tracing; randomness lives in ObjectiveWeights
}

// DefaultSolveConfig returns the solver bounds used when the caller does not
// care to tune them.
func DefaultSolveConfig() SolveConfig {
	return SolveConfig{TimeBudget: 5 * time.Second, MaxNodes: 2_000_000}
}

type candidate struct {
	player types.Player
	score  float64
}

type stopReason int

const (
	stopNone stopReason = iota
	stopBudget
	stopCancelled
)

type search struct {
	slots      []types.PositionSlot
	order      []int         // search order over slot indices
	candidates [][]candidate // per order position
	forced     []bool        // order position holds a locked player
	cap        int
	maxPerTeam int

	maxScoreSuffix []float64
	minSalarySuffix []int

	deadline time.Time
	maxNodes int64
	ctx      context.Context

	nodes      int64
	stop       stopReason
	used       map[uuid.UUID]bool
	teamCounts map[string]int
	chosen     []candidate

	bestScore  float64
	bestSalary int
	bestIDs    []string
	best       []candidate
	hasBest    bool
}

// Solve returns the feasible lineup maximizing the weighted projection
// objective, or a structured failure: ErrInfeasible (via InfeasibleError)
// when no assignment exists, ErrSuboptimalTimeout when the time or node
// budget ran out (the best incumbent, when one exists, is still returned),
// and ErrCancelled when the context is done.
//
// Identical inputs produce a bit-identical player set: candidate ordering,
// tie-breaking, and incumbent replacement are all deterministic.
func Solve(ctx context.Context, players []types.Player, rules types.ConstraintSet, weights ObjectiveWeights, cfg SolveConfig) (*types.Lineup, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid constraint set: %w", err)
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = DefaultSolveConfig().TimeBudget
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = DefaultSolveConfig().MaxNodes
	}

	optimizationID := uuid.New().String()
	slots := rules.EffectiveSlots()
	log := logger.WithOptimizationContext(optimizationID, len(slots))
	log.WithFields(logrus.Fields{
		"total_players": len(players),
		"salary_cap":    rules.SalaryCap,
		"time_budget":   cfg.TimeBudget.String(),
		"seed":          cfg.Seed,
	}).Debug("Starting solve")

	pool := filterPlayers(players, rules)
	if len(pool) == 0 {
		return nil, &types.InfeasibleError{Reason: "no players available after filtering"}
	}
	locked, err := lockedPool(pool, rules)
	if err != nil {
		return nil, err
	}
	lockedBySlot, err := preflight(pool, locked, slots, rules)
	if err != nil {
		log.WithError(err).Debug("Preflight rejected request")
		return nil, err
	}

	s := buildSearch(ctx, pool, slots, lockedBySlot, rules, weights, cfg)
	s.dfs(0, 0, 0.0)

	switch {
	case s.stop == stopCancelled:
		log.Warn("Solve cancelled")
		return nil, types.ErrCancelled
	case s.stop == stopBudget && s.hasBest:
		lineup := s.buildLineup()
		log.WithFields(logrus.Fields{
			"nodes":            s.nodes,
			"projected_points": lineup.ProjectedPoints,
		}).Warn("Budget exhausted, returning incumbent")
		return lineup, types.ErrSuboptimalTimeout
	case s.stop == stopBudget:
		log.WithField("nodes", s.nodes).Warn("Budget exhausted with no incumbent")
		return nil, types.ErrSuboptimalTimeout
	case !s.hasBest:
		return nil, &types.InfeasibleError{Reason: "no assignment satisfies salary and team constraints"}
	}

	lineup := s.buildLineup()
	log.WithFields(logrus.Fields{
		"nodes":            s.nodes,
		"total_salary":     lineup.TotalSalary,
		"projected_points": lineup.ProjectedPoints,
	}).Debug("Solve completed")
	return lineup, nil
}

func buildSearch(ctx context.Context, pool []types.Player, slots []types.PositionSlot, lockedBySlot map[int]types.Player, rules types.ConstraintSet, weights ObjectiveWeights, cfg SolveConfig) *search {
	lockedIDs := make(map[uuid.UUID]bool, len(lockedBySlot))
	for _, p := range lockedBySlot {
		lockedIDs[p.ID] = true
	}

	// Candidates per slot: locked slots carry exactly their locked player;
	// open slots every eligible non-locked player, ordered by score desc,
	// then salary asc, then id. The ordering is the tie-break.
	perSlot := make([][]candidate, len(slots))
	for i, slot := range slots {
		if p, ok := lockedBySlot[i]; ok {
			perSlot[i] = []candidate{{player: p, score: weights.Score(p)}}
			continue
		}
		var cands []candidate
		for _, p := range pool {
			if lockedIDs[p.ID] || !p.EligibleFor(slot.AllowedPositions) {
				continue
			}
			cands = append(cands, candidate{player: p, score: weights.Score(p)})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].score != cands[b].score {
				return cands[a].score > cands[b].score
			}
			if cands[a].player.Salary != cands[b].player.Salary {
				return cands[a].player.Salary < cands[b].player.Salary
			}
			return cands[a].player.ID.String() < cands[b].player.ID.String()
		})
		perSlot[i] = cands
	}

	// Search order: forced slots first (they cost nothing to assign), then
	// scarcest slots, concrete before flex, so dead branches die early.
	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		_, fa := lockedBySlot[ia]
		_, fb := lockedBySlot[ib]
		if fa != fb {
			return fa
		}
		if len(perSlot[ia]) != len(perSlot[ib]) {
			return len(perSlot[ia]) < len(perSlot[ib])
		}
		if len(slots[ia].AllowedPositions) != len(slots[ib].AllowedPositions) {
			return len(slots[ia].AllowedPositions) < len(slots[ib].AllowedPositions)
		}
		return slots[ia].Priority < slots[ib].Priority
	})

	s := &search{
		slots:      slots,
		order:      order,
		candidates: make([][]candidate, len(order)),
		forced:     make([]bool, len(order)),
		cap:        rules.SalaryCap,
		maxPerTeam: rules.MaxPerTeam,
		deadline:   time.Now().Add(cfg.TimeBudget),
		maxNodes:   cfg.MaxNodes,
		ctx:        ctx,
		used:       make(map[uuid.UUID]bool, len(slots)),
		teamCounts: make(map[string]int),
		chosen:     make([]candidate, len(order)),
	}
	for k, slotIdx := range order {
		s.candidates[k] = perSlot[slotIdx]
		_, s.forced[k] = lockedBySlot[slotIdx]
	}

	// Admissible bounds per suffix of the search order: best possible score
	// and cheapest possible salary for everything not yet assigned.
	s.maxScoreSuffix = make([]float64, len(order)+1)
	s.minSalarySuffix = make([]int, len(order)+1)
	for k := len(order) - 1; k >= 0; k-- {
		maxScore := 0.0
		minSalary := 0
		if len(s.candidates[k]) > 0 {
			maxScore = s.candidates[k][0].score
			minSalary = s.candidates[k][0].player.Salary
			for _, c := range s.candidates[k][1:] {
				if c.score > maxScore {
					maxScore = c.score
				}
				if c.player.Salary < minSalary {
					minSalary = c.player.Salary
				}
			}
		}
		s.maxScoreSuffix[k] = s.maxScoreSuffix[k+1] + maxScore
		s.minSalarySuffix[k] = s.minSalarySuffix[k+1] + minSalary
	}

	return s
}

func (s *search) dfs(k int, salary int, score float64) {
	if s.stop != stopNone {
		return
	}
	s.nodes++
	if s.nodes%stopCheckInterval == 0 {
		select {
		case <-s.ctx.Done():
			s.stop = stopCancelled
			return
		default:
		}
		if s.nodes >= s.maxNodes || time.Now().After(s.deadline) {
			s.stop = stopBudget
			return
		}
	}

	if k >= len(s.order) {
		s.offerIncumbent(salary, score)
		return
	}

	// Salary lower bound and score upper bound for the remaining slots.
	if salary+s.minSalarySuffix[k] > s.cap {
		return
	}
	if s.hasBest && score+s.maxScoreSuffix[k] < s.bestScore-scoreEpsilon {
		return
	}

	for _, c := range s.candidates[k] {
		p := c.player
		if s.used[p.ID] {
			continue
		}
		if salary+p.Salary+s.minSalarySuffix[k+1] > s.cap {
			continue
		}
		if s.maxPerTeam > 0 && !s.forced[k] && s.teamCounts[p.Team] >= s.maxPerTeam {
			continue
		}

		s.used[p.ID] = true
		s.teamCounts[p.Team]++
		s.chosen[k] = c

		s.dfs(k+1, salary+p.Salary, score+c.score)

		s.used[p.ID] = false
		s.teamCounts[p.Team]--
		if s.stop != stopNone {
			return
		}
	}
}

// offerIncumbent replaces the incumbent when the completed assignment is
// strictly better, or ties on the objective and wins the deterministic
// tie-break.
func (s *search) offerIncumbent(salary int, score float64) {
	ids := make([]string, len(s.chosen))
	for i, c := range s.chosen {
		ids[i] = c.player.ID.String()
	}
	sort.Strings(ids)

	if s.hasBest {
		switch {
		case score > s.bestScore+scoreEpsilon:
		case score < s.bestScore-scoreEpsilon:
			return
		case salary < s.bestSalary:
		case salary > s.bestSalary:
			return
		default:
			if !idsLess(ids, s.bestIDs) {
				return
			}
		}
	}

	s.bestScore = score
	s.bestSalary = salary
	s.bestIDs = ids
	s.best = append(s.best[:0], s.chosen...)
	s.hasBest = true
}

func idsLess(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (s *search) buildLineup() *types.Lineup {
	lineup := &types.Lineup{
		ID:              fmt.Sprintf("lineup_%s", uuid.New().String()[:8]),
		Players:         make([]types.LineupPlayer, 0, len(s.best)),
		PlayerPositions: make(map[uuid.UUID]string, len(s.best)),
	}

	// Emit players in roster order, not search order.
	type placed struct {
		slot types.PositionSlot
		cand candidate
	}
	placements := make([]placed, 0, len(s.best))
	for k, c := range s.best {
		placements = append(placements, placed{slot: s.slots[s.order[k]], cand: c})
	}
	sort.Slice(placements, func(a, b int) bool {
		return placements[a].slot.Priority < placements[b].slot.Priority
	})

	for _, pl := range placements {
		p := pl.cand.player
		lineup.Players = append(lineup.Players, types.LineupPlayer{
			ID:              p.ID,
			Name:            p.Name,
			Team:            p.Team,
			Position:        pl.slot.SlotName,
			Salary:          p.Salary,
			ProjectedPoints: p.ProjectedPoints,
			Ownership:       p.Ownership,
		})
		lineup.PlayerPositions[p.ID] = pl.slot.SlotName
		lineup.TotalSalary += p.Salary
		lineup.ProjectedPoints += p.ProjectedPoints
	}
	return lineup
}
