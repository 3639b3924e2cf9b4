package optimizer

import (
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/stitts-dev/lineup-engine/types"
)

// ObjectiveWeights is an immutable per-player adjustment of the base
// projection objective. The solver scores a player as
//
//	projection * multiplier + bonus
//
// with multiplier defaulting to 1 and bonus to 0. Every With/Perturb call
// returns a fresh value, so weights can be shared across workers without
// locking.
type ObjectiveWeights struct {
	multipliers map[uuid.UUID]float64
	bonuses     map[uuid.UUID]float64
}

// NewObjectiveWeights returns the identity weights (pure projection).
func NewObjectiveWeights() ObjectiveWeights {
	return ObjectiveWeights{}
}

// Score returns the weighted objective value for a player.
func (w ObjectiveWeights) Score(p types.Player) float64 {
	score := p.ProjectedPoints
	if m, ok := w.multipliers[p.ID]; ok {
		score = p.ProjectedPoints * m
	}
	if b, ok := w.bonuses[p.ID]; ok {
		score += b
	}
	return score
}

// Multiplier returns the current multiplier for a player (1 when unset).
func (w ObjectiveWeights) Multiplier(id uuid.UUID) float64 {
	if m, ok := w.multipliers[id]; ok {
		return m
	}
	return 1.0
}

// WithMultiplier returns a copy with the player's multiplier replaced.
func (w ObjectiveWeights) WithMultiplier(id uuid.UUID, m float64) ObjectiveWeights {
	out := w.clone()
	out.multipliers[id] = m
	return out
}

// WithBonus returns a copy with the player's additive bonus replaced.
func (w ObjectiveWeights) WithBonus(id uuid.UUID, b float64) ObjectiveWeights {
	out := w.clone()
	out.bonuses[id] = b
	return out
}

// Perturb returns a copy whose multipliers carry bounded multiplicative
// noise, seeded so the same seed reproduces the same perturbation. Sigma is
// the noise standard deviation; multipliers are floored at 0.1 so a draw can
// never flip a player's sign or zero them out entirely.
func (w ObjectiveWeights) Perturb(players []types.Player, seed int64, sigma float64) ObjectiveWeights {
	if sigma <= 0 {
		return w
	}
	rng := rand.New(rand.NewSource(seed))
	out := w.clone()
	for _, p := range players {
		noise := 1.0 + rng.NormFloat64()*sigma
		out.multipliers[p.ID] = math.Max(0.1, out.Multiplier(p.ID)*noise)
	}
	return out
}

func (w ObjectiveWeights) clone() ObjectiveWeights {
	out := ObjectiveWeights{
		multipliers: make(map[uuid.UUID]float64, len(w.multipliers)),
		bonuses:     make(map[uuid.UUID]float64, len(w.bonuses)),
	}
	for id, m := range w.multipliers {
		out.multipliers[id] = m
	}
	for id, b := range w.bonuses {
		out.bonuses[id] = b
	}
	return out
}
