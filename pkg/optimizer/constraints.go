package optimizer

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/stitts-dev/lineup-engine/types"
)

// filterPlayers removes excluded and injured players from the pool. Locked
// players that get filtered here make the request infeasible, which the
// pre-flight check reports before any search starts.
func filterPlayers(players []types.Player, rules types.ConstraintSet) []types.Player {
	excluded := make(map[uuid.UUID]bool, len(rules.ExcludedPlayers))
	for _, id := range rules.ExcludedPlayers {
		excluded[id] = true
	}

	filtered := make([]types.Player, 0, len(players))
	for _, p := range players {
		if excluded[p.ID] || p.IsExcluded || p.IsInjured {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered
}

// lockedPool resolves the locked player set against the filtered pool.
func lockedPool(pool []types.Player, rules types.ConstraintSet) ([]types.Player, error) {
	byID := make(map[uuid.UUID]types.Player, len(pool))
	for _, p := range pool {
		byID[p.ID] = p
	}

	wantLocked := make(map[uuid.UUID]bool, len(rules.LockedPlayers))
	for _, id := range rules.LockedPlayers {
		wantLocked[id] = true
	}
	for _, p := range pool {
		if p.IsLocked {
			wantLocked[p.ID] = true
		}
	}

	locked := make([]types.Player, 0, len(wantLocked))
	for id := range wantLocked {
		p, ok := byID[id]
		if !ok {
			return nil, &types.InfeasibleError{Reason: fmt.Sprintf("locked player %s is excluded or unavailable", id)}
		}
		locked = append(locked, p)
	}
	// Deterministic processing order regardless of map iteration.
	sort.Slice(locked, func(i, j int) bool { return locked[i].ID.String() < locked[j].ID.String() })
	return locked, nil
}

// placeLocked assigns each locked player to a distinct compatible slot via
// backtracking. Returns slot index -> player, or the names of the slots that
// could not be matched.
func placeLocked(locked []types.Player, slots []types.PositionSlot) (map[int]types.Player, []string) {
	assignment := make(map[int]types.Player, len(locked))
	usedSlot := make([]bool, len(slots))

	var assign func(i int) bool
	assign = func(i int) bool {
		if i >= len(locked) {
			return true
		}
		for s, slot := range slots {
			if usedSlot[s] || !locked[i].EligibleFor(slot.AllowedPositions) {
				continue
			}
			usedSlot[s] = true
			assignment[s] = locked[i]
			if assign(i + 1) {
				return true
			}
			usedSlot[s] = false
			delete(assignment, s)
		}
		return false
	}

	if assign(0) {
		return assignment, nil
	}

	// Name the slot shapes the unmatched players needed, for the error.
	unmatched := make([]string, 0)
	seen := make(map[string]bool)
	for _, p := range locked {
		for _, pos := range p.Positions {
			if !seen[pos] {
				seen[pos] = true
				unmatched = append(unmatched, pos)
			}
		}
	}
	sort.Strings(unmatched)
	return nil, unmatched
}

// preflight runs the cheap infeasibility checks the search would otherwise
// discover slowly: locked salary over the cap, locked players without
// compatible slots, slots with no eligible candidates, and team caps
// violated by the locks alone.
func preflight(pool, locked []types.Player, slots []types.PositionSlot, rules types.ConstraintSet) (map[int]types.Player, error) {
	lockedSalary := 0
	teamCounts := make(map[string]int)
	for _, p := range locked {
		lockedSalary += p.Salary
		teamCounts[p.Team]++
	}
	if lockedSalary > rules.SalaryCap {
		return nil, &types.InfeasibleError{
			Reason: fmt.Sprintf("locked players alone cost %d, over the %d cap", lockedSalary, rules.SalaryCap),
		}
	}
	if rules.MaxPerTeam > 0 {
		for team, count := range teamCounts {
			if count > rules.MaxPerTeam {
				return nil, &types.InfeasibleError{
					Reason: fmt.Sprintf("locked players put %d from team %s over the per-team cap %d", count, team, rules.MaxPerTeam),
				}
			}
		}
	}
	if len(locked) > len(slots) {
		return nil, &types.InfeasibleError{
			Reason: fmt.Sprintf("%d locked players for %d roster spots", len(locked), len(slots)),
		}
	}

	assignment, unmatched := placeLocked(locked, slots)
	if assignment == nil {
		return nil, &types.InfeasibleError{Reason: "locked players cannot fill compatible slots", Slots: unmatched}
	}

	lockedIDs := make(map[uuid.UUID]bool, len(locked))
	for _, p := range locked {
		lockedIDs[p.ID] = true
	}
	var empty []string
	for s, slot := range slots {
		if _, ok := assignment[s]; ok {
			continue
		}
		hasCandidate := false
		for _, p := range pool {
			if !lockedIDs[p.ID] && p.EligibleFor(slot.AllowedPositions) {
				hasCandidate = true
				break
			}
		}
		if !hasCandidate {
			empty = append(empty, slot.SlotName)
		}
	}
	if len(empty) > 0 {
		return nil, &types.InfeasibleError{Reason: "no eligible candidates", Slots: empty}
	}

	return assignment, nil
}

// ValidateLineup checks an emitted lineup against the hard constraints. Used
// by callers and tests; the solver's own search never emits a violating
// lineup.
func ValidateLineup(lineup types.Lineup, rules types.ConstraintSet) error {
	if len(lineup.Players) != rules.LineupSize() {
		return fmt.Errorf("lineup has %d players, want %d", len(lineup.Players), rules.LineupSize())
	}
	if lineup.TotalSalary > rules.SalaryCap {
		return fmt.Errorf("lineup salary %d over cap %d", lineup.TotalSalary, rules.SalaryCap)
	}

	excluded := make(map[uuid.UUID]bool, len(rules.ExcludedPlayers))
	for _, id := range rules.ExcludedPlayers {
		excluded[id] = true
	}
	slotCounts := make(map[string]int)
	teamCounts := make(map[string]int)
	seen := make(map[uuid.UUID]bool)
	for _, p := range lineup.Players {
		if excluded[p.ID] {
			return fmt.Errorf("lineup contains excluded player %s", p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("lineup contains player %s twice", p.Name)
		}
		seen[p.ID] = true
		slotCounts[lineup.PlayerPositions[p.ID]]++
		teamCounts[p.Team]++
	}
	for _, id := range rules.LockedPlayers {
		if !seen[id] {
			return fmt.Errorf("lineup missing locked player %s", id)
		}
	}
	if rules.MaxPerTeam > 0 {
		for team, count := range teamCounts {
			if count > rules.MaxPerTeam {
				return fmt.Errorf("team %s has %d players, cap is %d", team, count, rules.MaxPerTeam)
			}
		}
	}

	wantSlots := make(map[string]int)
	for _, slot := range rules.EffectiveSlots() {
		wantSlots[slot.SlotName]++
	}
	for name, want := range wantSlots {
		if slotCounts[name] != want {
			return fmt.Errorf("slot %s filled %d times, want %d", name, slotCounts[name], want)
		}
	}
	return nil
}
