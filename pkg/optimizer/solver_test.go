package optimizer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-engine/types"
)

func pid(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

func abcRules() types.ConstraintSet {
	return types.ConstraintSet{
		SalaryCap: 60,
		PositionRequirements: types.PositionRequirements{
			"A": 1,
			"B": 1,
			"C": 1,
		},
	}
}

func abcPlayers() []types.Player {
	return []types.Player{
		{ID: pid(1), Name: "e1", Team: "X", Positions: []string{"A"}, Salary: 20, ProjectedPoints: 10},
		{ID: pid(2), Name: "e2", Team: "X", Positions: []string{"B"}, Salary: 20, ProjectedPoints: 10},
		{ID: pid(3), Name: "e3", Team: "Y", Positions: []string{"C"}, Salary: 10, ProjectedPoints: 5},
		{ID: pid(4), Name: "e4", Team: "Y", Positions: []string{"C"}, Salary: 20, ProjectedPoints: 8},
	}
}

func nbaPlayers() []types.Player {
	return []types.Player{
		{ID: pid(1), Name: "Curry", Team: "GSW", Positions: []string{"PG"}, Salary: 8500, ProjectedPoints: 50.5},
		{ID: pid(2), Name: "Morant", Team: "MEM", Positions: []string{"PG"}, Salary: 7000, ProjectedPoints: 42.0},
		{ID: pid(3), Name: "Paul", Team: "PHX", Positions: []string{"PG"}, Salary: 5500, ProjectedPoints: 35.0},
		{ID: pid(4), Name: "Harden", Team: "PHI", Positions: []string{"SG"}, Salary: 8000, ProjectedPoints: 48.0},
		{ID: pid(5), Name: "Booker", Team: "PHX", Positions: []string{"SG"}, Salary: 6500, ProjectedPoints: 40.0},
		{ID: pid(6), Name: "Beal", Team: "WAS", Positions: []string{"SG"}, Salary: 5000, ProjectedPoints: 38.0},
		{ID: pid(7), Name: "LeBron", Team: "LAL", Positions: []string{"SF"}, Salary: 9000, ProjectedPoints: 52.0},
		{ID: pid(8), Name: "Butler", Team: "MIA", Positions: []string{"SF"}, Salary: 6500, ProjectedPoints: 41.0},
		{ID: pid(9), Name: "Tatum", Team: "BOS", Positions: []string{"SF"}, Salary: 5500, ProjectedPoints: 45.0},
		{ID: pid(10), Name: "Davis", Team: "LAL", Positions: []string{"PF"}, Salary: 8500, ProjectedPoints: 51.0},
		{ID: pid(11), Name: "Siakam", Team: "TOR", Positions: []string{"PF"}, Salary: 6000, ProjectedPoints: 38.0},
		{ID: pid(12), Name: "Collins", Team: "ATL", Positions: []string{"PF"}, Salary: 4500, ProjectedPoints: 33.0},
		{ID: pid(13), Name: "Jokic", Team: "DEN", Positions: []string{"C"}, Salary: 9500, ProjectedPoints: 55.0},
		{ID: pid(14), Name: "Embiid", Team: "PHI", Positions: []string{"C"}, Salary: 8000, ProjectedPoints: 53.0},
		{ID: pid(15), Name: "Towns", Team: "MIN", Positions: []string{"C"}, Salary: 5500, ProjectedPoints: 43.0},
	}
}

func nbaRules() types.ConstraintSet {
	return types.ConstraintSet{
		SalaryCap: 30000,
		PositionRequirements: types.PositionRequirements{
			"PG": 1,
			"SG": 1,
			"SF": 1,
			"PF": 1,
			"C":  1,
		},
	}
}

func TestSolve_MaximizesProjectionNotCost(t *testing.T) {
	lineup, err := Solve(context.Background(), abcPlayers(), abcRules(), NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)
	require.NotNil(t, lineup)

	// {e1,e2,e4} at full budget beats the cheaper {e1,e2,e3}.
	assert.True(t, lineup.Contains(pid(1)))
	assert.True(t, lineup.Contains(pid(2)))
	assert.True(t, lineup.Contains(pid(4)))
	assert.Equal(t, 60, lineup.TotalSalary)
	assert.InDelta(t, 28.0, lineup.ProjectedPoints, 1e-9)
	assert.NoError(t, ValidateLineup(*lineup, abcRules()))
}

func TestSolve_Deterministic(t *testing.T) {
	first, err := Solve(context.Background(), nbaPlayers(), nbaRules(), NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := Solve(context.Background(), nbaPlayers(), nbaRules(), NewObjectiveWeights(), DefaultSolveConfig())
		require.NoError(t, err)
		assert.Equal(t, first.PlayerIDs(), again.PlayerIDs())
		assert.Equal(t, first.TotalSalary, again.TotalSalary)
	}
}

func TestSolve_LockedPairOverBudget_Infeasible(t *testing.T) {
	rules := abcRules()
	rules.SalaryCap = 35
	rules.LockedPlayers = []uuid.UUID{pid(1), pid(2)} // 40 combined

	lineup, err := Solve(context.Background(), abcPlayers(), rules, NewObjectiveWeights(), DefaultSolveConfig())
	assert.Nil(t, lineup)
	assert.True(t, errors.Is(err, types.ErrInfeasible))

	var infeasible *types.InfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.Contains(t, infeasible.Reason, "cap")
}

func TestSolve_LockedPlayerAlwaysIncluded(t *testing.T) {
	rules := nbaRules()
	rules.LockedPlayers = []uuid.UUID{pid(3)} // Paul, far from optimal

	lineup, err := Solve(context.Background(), nbaPlayers(), rules, NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)
	assert.True(t, lineup.Contains(pid(3)))
	assert.NoError(t, ValidateLineup(*lineup, rules))
}

func TestSolve_ExcludedPlayerNeverSelected(t *testing.T) {
	rules := nbaRules()
	rules.ExcludedPlayers = []uuid.UUID{pid(13)} // Jokic, the top center

	lineup, err := Solve(context.Background(), nbaPlayers(), rules, NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)
	assert.False(t, lineup.Contains(pid(13)))
}

func TestSolve_InjuredPlayerNeverSelected(t *testing.T) {
	players := nbaPlayers()
	players[12].IsInjured = true // Jokic

	lineup, err := Solve(context.Background(), players, nbaRules(), NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)
	assert.False(t, lineup.Contains(pid(13)))
}

func TestSolve_TeamCapRespected(t *testing.T) {
	rules := nbaRules()
	rules.MaxPerTeam = 1

	lineup, err := Solve(context.Background(), nbaPlayers(), rules, NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)

	teams := make(map[string]int)
	for _, p := range lineup.Players {
		teams[p.Team]++
	}
	for team, count := range teams {
		assert.LessOrEqual(t, count, 1, "team %s over cap", team)
	}
	// LeBron and Davis are both optimal picks but share LAL.
	assert.False(t, lineup.Contains(pid(7)) && lineup.Contains(pid(10)))
}

func TestSolve_TieBreakPrefersCheaperLineup(t *testing.T) {
	rules := types.ConstraintSet{
		SalaryCap:            100,
		PositionRequirements: types.PositionRequirements{"A": 1},
	}
	players := []types.Player{
		{ID: pid(1), Name: "pricey", Team: "X", Positions: []string{"A"}, Salary: 40, ProjectedPoints: 10},
		{ID: pid(2), Name: "cheap", Team: "Y", Positions: []string{"A"}, Salary: 30, ProjectedPoints: 10},
	}

	lineup, err := Solve(context.Background(), players, rules, NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)
	assert.True(t, lineup.Contains(pid(2)))
	assert.Equal(t, 30, lineup.TotalSalary)
}

func TestSolve_EmptySlotNamedInError(t *testing.T) {
	players := abcPlayers()[:2] // nobody can play C
	lineup, err := Solve(context.Background(), players, abcRules(), NewObjectiveWeights(), DefaultSolveConfig())
	assert.Nil(t, lineup)

	var infeasible *types.InfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.Contains(t, infeasible.Slots, "C")
}

func TestSolve_Cancelled(t *testing.T) {
	// A tie-saturated pool keeps the bound from pruning, so the search is
	// guaranteed to reach a cancellation check.
	var players []types.Player
	for i := 1; i <= 16; i++ {
		players = append(players, types.Player{
			ID: pid(i), Name: fmt.Sprintf("p%d", i), Team: fmt.Sprintf("T%d", i),
			Positions: []string{"A"}, Salary: 10, ProjectedPoints: 10,
		})
	}
	rules := types.ConstraintSet{
		SalaryCap:            1000,
		PositionRequirements: types.PositionRequirements{"A": 4},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lineup, err := Solve(ctx, players, rules, NewObjectiveWeights(), DefaultSolveConfig())
	assert.Nil(t, lineup)
	assert.True(t, errors.Is(err, types.ErrCancelled))
}

func TestSolve_WeightsSteerSelection(t *testing.T) {
	// A big enough bonus flips the optimal pick without touching projections.
	weights := NewObjectiveWeights().WithBonus(pid(3), 10.0) // e3 over e4
	lineup, err := Solve(context.Background(), abcPlayers(), abcRules(), weights, DefaultSolveConfig())
	require.NoError(t, err)
	assert.True(t, lineup.Contains(pid(3)))
	assert.False(t, lineup.Contains(pid(4)))
	// Reported projection stays unweighted.
	assert.InDelta(t, 25.0, lineup.ProjectedPoints, 1e-9)
}

func TestSolve_FlexSlotUsesBothPositions(t *testing.T) {
	rules := types.ConstraintSet{
		SalaryCap: 30,
		Slots: []types.PositionSlot{
			{SlotName: "A", AllowedPositions: []string{"A"}, Priority: 1},
			{SlotName: "FLEX", AllowedPositions: []string{"A", "B"}, Priority: 2},
		},
	}
	players := []types.Player{
		{ID: pid(1), Name: "a1", Team: "X", Positions: []string{"A"}, Salary: 10, ProjectedPoints: 10},
		{ID: pid(2), Name: "a2", Team: "Y", Positions: []string{"A"}, Salary: 10, ProjectedPoints: 9},
		{ID: pid(3), Name: "b1", Team: "Z", Positions: []string{"B"}, Salary: 10, ProjectedPoints: 8},
	}

	lineup, err := Solve(context.Background(), players, rules, NewObjectiveWeights(), DefaultSolveConfig())
	require.NoError(t, err)
	// The flex spot takes the second A, not the weaker B.
	assert.True(t, lineup.Contains(pid(1)))
	assert.True(t, lineup.Contains(pid(2)))
}
