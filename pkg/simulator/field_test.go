package simulator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-engine/types"
)

func fieldPool() []types.Player {
	var players []types.Player
	for i := 1; i <= 8; i++ {
		players = append(players, types.Player{
			ID:              pid(i),
			Name:            fmt.Sprintf("p%d", i),
			Team:            fmt.Sprintf("T%d", (i-1)%4+1),
			Positions:       []string{"A"},
			Salary:          4000 + i*500,
			ProjectedPoints: 20 + float64(i),
			Ownership:       0.10 + float64(i)*0.02,
		})
	}
	return players
}

func TestFieldSampler_RespectsConstraints(t *testing.T) {
	rules := types.ConstraintSet{
		SalaryCap:            16000,
		PositionRequirements: types.PositionRequirements{"A": 3},
	}
	fs := newFieldSampler(fieldPool(), rules)
	rng := rand.New(rand.NewSource(5))

	players := fieldPool()
	byID := make(map[uuid.UUID]types.Player)
	for _, p := range players {
		byID[p.ID] = p
	}

	sampled := 0
	for i := 0; i < 200; i++ {
		ids := fs.sampleLineup(rng)
		if ids == nil {
			continue
		}
		sampled++
		require.Len(t, ids, 3)

		seen := make(map[uuid.UUID]bool)
		salary := 0
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate player in field entry")
			seen[id] = true
			salary += byID[id].Salary
		}
		assert.LessOrEqual(t, salary, rules.SalaryCap)
	}
	assert.Greater(t, sampled, 150, "sampler should usually complete an entry")
}

func TestFieldSampler_SkipsUnavailable(t *testing.T) {
	players := fieldPool()
	players[0].IsInjured = true
	players[1].IsExcluded = true
	rules := types.ConstraintSet{
		SalaryCap:            50000,
		PositionRequirements: types.PositionRequirements{"A": 2},
	}

	fs := newFieldSampler(players, rules)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		for _, id := range fs.sampleLineup(rng) {
			assert.NotEqual(t, pid(1), id)
			assert.NotEqual(t, pid(2), id)
		}
	}
}

func TestEffectiveOwnership_KeepsPublishedEstimates(t *testing.T) {
	players := fieldPool()
	ownership := effectiveOwnership(players)
	for _, p := range players {
		assert.Equal(t, p.Ownership, ownership[p.ID])
	}
}

func TestEffectiveOwnership_ValueRankFallback(t *testing.T) {
	players := fieldPool()
	for i := range players {
		players[i].Ownership = 0
	}
	ownership := effectiveOwnership(players)

	allowed := map[float64]bool{0.30: true, 0.18: true, 0.08: true, 0.02: true}
	for _, p := range players {
		assert.True(t, allowed[ownership[p.ID]], "unexpected weight %v", ownership[p.ID])
	}

	// The best point-per-dollar player anchors the top tier.
	best := players[0]
	for _, p := range players[1:] {
		if p.ProjectedPoints/float64(p.Salary) > best.ProjectedPoints/float64(best.Salary) {
			best = p
		}
	}
	assert.Equal(t, 0.30, ownership[best.ID])
}

func TestLineupKey_OrderIndependent(t *testing.T) {
	a := lineupKey([]uuid.UUID{pid(1), pid(2), pid(3)})
	b := lineupKey([]uuid.UUID{pid(3), pid(1), pid(2)})
	c := lineupKey([]uuid.UUID{pid(1), pid(2), pid(4)})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
