package simulator

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/stitts-dev/lineup-engine/types"
)

// fieldSampler synthesizes competing entries for a trial by ownership-
// weighted slot sampling — lightweight draws under the same roster/budget
// shape, never a full re-optimization.
type fieldSampler struct {
	slots     []types.PositionSlot
	salaryCap int
	// per slot: eligible players with their sampling weight
	eligible [][]weightedPlayer
}

type weightedPlayer struct {
	player types.Player
	weight float64
}

// newFieldSampler precomputes the per-slot eligible pools. Ownership drives
// the weights; when a batch arrives with no ownership estimates at all, a
// value-rank fallback keeps the field realistic rather than uniform.
func newFieldSampler(players []types.Player, rules types.ConstraintSet) *fieldSampler {
	ownership := effectiveOwnership(players)

	fs := &fieldSampler{
		slots:     rules.EffectiveSlots(),
		salaryCap: rules.SalaryCap,
	}
	fs.eligible = make([][]weightedPlayer, len(fs.slots))
	for i, slot := range fs.slots {
		var pool []weightedPlayer
		for _, p := range players {
			if p.IsExcluded || p.IsInjured || !p.EligibleFor(slot.AllowedPositions) {
				continue
			}
			if w := ownership[p.ID]; w > 0 {
				pool = append(pool, weightedPlayer{player: p, weight: w})
			}
		}
		fs.eligible[i] = pool
	}
	return fs
}

// effectiveOwnership returns each player's sampling weight. Players with a
// published ownership estimate keep it; a batch with no estimates gets
// rank-based ownership by value within each position, mirroring how real
// fields concentrate on the best point-per-dollar plays.
func effectiveOwnership(players []types.Player) map[uuid.UUID]float64 {
	ownership := make(map[uuid.UUID]float64, len(players))
	anySet := false
	for _, p := range players {
		if p.Ownership > 0 {
			anySet = true
		}
		ownership[p.ID] = p.Ownership
	}
	if anySet {
		return ownership
	}

	byPosition := make(map[string][]types.Player)
	for _, p := range players {
		byPosition[p.Position()] = append(byPosition[p.Position()], p)
	}
	for _, pool := range byPosition {
		sort.Slice(pool, func(i, j int) bool {
			vi := pool[i].ProjectedPoints / float64(pool[i].Salary)
			vj := pool[j].ProjectedPoints / float64(pool[j].Salary)
			if vi != vj {
				return vi > vj
			}
			return pool[i].ID.String() < pool[j].ID.String()
		})
		for rank, p := range pool {
			percentile := float64(rank) / float64(len(pool))
			switch {
			case percentile < 0.1:
				ownership[p.ID] = 0.30
			case percentile < 0.3:
				ownership[p.ID] = 0.18
			case percentile < 0.6:
				ownership[p.ID] = 0.08
			default:
				ownership[p.ID] = 0.02
			}
		}
	}
	return ownership
}

// sampleLineup draws one field entry: slot by slot, weighted by ownership,
// respecting the salary cap and no-duplicate rule. Returns nil when no valid
// entry came together within the attempt budget; callers skip those.
func (fs *fieldSampler) sampleLineup(rng *rand.Rand) []uuid.UUID {
	const maxAttempts = 20

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ids := make([]uuid.UUID, 0, len(fs.slots))
		used := make(map[uuid.UUID]bool, len(fs.slots))
		salary := 0
		complete := true

		for i := range fs.slots {
			p := fs.pick(i, fs.salaryCap-salary, used, rng)
			if p == nil {
				complete = false
				break
			}
			ids = append(ids, p.ID)
			used[p.ID] = true
			salary += p.Salary
		}
		if complete {
			return ids
		}
	}
	return nil
}

// pick does one weighted draw from a slot's pool among players that still
// fit the remaining budget.
func (fs *fieldSampler) pick(slot int, remainingSalary int, used map[uuid.UUID]bool, rng *rand.Rand) *types.Player {
	total := 0.0
	for _, wp := range fs.eligible[slot] {
		if used[wp.player.ID] || wp.player.Salary > remainingSalary {
			continue
		}
		total += wp.weight
	}
	if total == 0 {
		return nil
	}

	r := rng.Float64() * total
	cum := 0.0
	var last *types.Player
	for i := range fs.eligible[slot] {
		wp := &fs.eligible[slot][i]
		if used[wp.player.ID] || wp.player.Salary > remainingSalary {
			continue
		}
		cum += wp.weight
		last = &wp.player
		if r <= cum {
			return &wp.player
		}
	}
	return last
}

// lineupKey gives a lineup's canonical identity (sorted id tuple) for exact
// duplicate detection against sampled field entries.
func lineupKey(ids []uuid.UUID) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	sort.Strings(strs)
	return strings.Join(strs, "|")
}
