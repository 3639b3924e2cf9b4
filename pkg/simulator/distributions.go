package simulator

import (
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/stitts-dev/lineup-engine/types"
)

// dnpProbability is the per-trial chance a player posts a zero (did not
// play), independent of the score distribution.
const dnpProbability = 0.02

// teamLatents draws one shared standard-normal factor per team for a trial.
// Teams are visited in sorted order so a trial's draws depend only on its
// seed, never on map iteration.
func teamLatents(players []types.Player, rng *rand.Rand) map[string]float64 {
	teams := make(map[string]bool)
	for _, p := range players {
		teams[p.Team] = true
	}
	sorted := make([]string, 0, len(teams))
	for team := range teams {
		sorted = append(sorted, team)
	}
	sort.Strings(sorted)

	latents := make(map[string]float64, len(sorted))
	for _, team := range sorted {
		latents[team] = rng.NormFloat64()
	}
	return latents
}

// samplePlayerScore draws one realized score. The draw blends the team's
// shared latent factor with idiosyncratic noise:
//
//	z = √ρ·latent + √(1−ρ)·ε
//
// so teammates move together with correlation ρ while independent players
// stay independent. The function is pure given (player, latent, rng state):
// no hidden per-call state, which keeps trials parallel-safe.
func samplePlayerScore(p types.Player, latent, rho float64, rng *rand.Rand) float64 {
	// Draw order is fixed: DNP first, then noise, so a trial's seed fully
	// determines every draw.
	dnp := rng.Float64()
	eps := rng.NormFloat64()
	if dnp < dnpProbability {
		return 0
	}

	z := math.Sqrt(rho)*latent + math.Sqrt(1-rho)*eps
	score := p.ProjectedPoints + p.ScoreStdDev()*z

	lo := p.ProjectedPoints * 0.3
	hi := p.ProjectedPoints * 1.8
	if p.CeilingPoints > p.FloorPoints {
		lo = p.FloorPoints * 0.8
		hi = p.CeilingPoints * 1.2
	}
	return math.Max(lo, math.Min(hi, score))
}

// sampleSlate draws every catalog player's realized score for one trial.
// Players are visited in slice order; the catalog is read-only so the same
// slice yields the same draw sequence.
func sampleSlate(players []types.Player, rho float64, rng *rand.Rand) map[uuid.UUID]float64 {
	latents := teamLatents(players, rng)
	outcomes := make(map[uuid.UUID]float64, len(players))
	for _, p := range players {
		outcomes[p.ID] = samplePlayerScore(p, latents[p.Team], rho, rng)
	}
	return outcomes
}
