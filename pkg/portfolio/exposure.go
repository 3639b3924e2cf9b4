package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/lineup-engine/pkg/optimizer"
	"github.com/stitts-dev/lineup-engine/types"
)

// exposureTally is the one mutable structure shared across a generation run.
// It has a single writer: the generator's sequential accept path. Workers
// never see it directly; they read an immutable snapshot taken at the start
// of each batch.
type exposureTally struct {
	playerCounts map[uuid.UUID]int
	teamCounts   map[string]int // lineups containing at least one player of the team
	accepted     int
}

func newExposureTally() *exposureTally {
	return &exposureTally{
		playerCounts: make(map[uuid.UUID]int),
		teamCounts:   make(map[string]int),
	}
}

func (t *exposureTally) add(l types.Lineup) {
	teams := make(map[string]bool)
	for _, p := range l.Players {
		t.playerCounts[p.ID]++
		teams[p.Team] = true
	}
	for team := range teams {
		t.teamCounts[team]++
	}
	t.accepted++
}

func (t *exposureTally) remove(l types.Lineup) {
	teams := make(map[string]bool)
	for _, p := range l.Players {
		t.playerCounts[p.ID]--
		teams[p.Team] = true
	}
	for team := range teams {
		t.teamCounts[team]--
	}
	t.accepted--
}

// exposureSnapshot is the read-only view handed to parallel solves.
type exposureSnapshot struct {
	playerCounts map[uuid.UUID]int
	teamCounts   map[string]int
	accepted     int
}

func (t *exposureTally) snapshot() exposureSnapshot {
	snap := exposureSnapshot{
		playerCounts: make(map[uuid.UUID]int, len(t.playerCounts)),
		teamCounts:   make(map[string]int, len(t.teamCounts)),
		accepted:     t.accepted,
	}
	for id, c := range t.playerCounts {
		snap.playerCounts[id] = c
	}
	for team, c := range t.teamCounts {
		snap.teamCounts[team] = c
	}
	return snap
}

// pressureWeights turns the exposure state into objective adjustments:
// players at or past their max-exposure budget for the target portfolio size
// get a multiplicative penalty, players that still owe a locked-in minimum
// get a bonus that grows as remaining room shrinks, and capped-out teams
// penalize all their players.
func pressureWeights(base optimizer.ObjectiveWeights, players []types.Player, rules types.ConstraintSet, snap exposureSnapshot) optimizer.ObjectiveWeights {
	n := rules.NumLineups
	if n <= 0 {
		return base
	}
	remaining := n - snap.accepted
	w := base

	for _, p := range players {
		count := snap.playerCounts[p.ID]

		if max, ok := rules.MaxExposure[p.ID]; ok {
			budget := maxCount(max, n)
			switch {
			case count >= budget:
				w = w.WithMultiplier(p.ID, w.Multiplier(p.ID)*overExposurePenalty)
			case budget > 0 && float64(count)/float64(budget) > 0.8:
				w = w.WithMultiplier(p.ID, w.Multiplier(p.ID)*nearExposurePenalty)
			}
		}

		if min, ok := rules.MinExposure[p.ID]; ok && remaining > 0 {
			needed := minCount(min, n) - count
			if needed > 0 {
				// Pressure ramps to a hard bonus when every remaining lineup
				// must carry the player.
				urgency := float64(needed) / float64(remaining)
				w = w.WithBonus(p.ID, p.ProjectedPoints*minExposureBonus*math.Min(1.0, urgency))
			}
		}

		if maxTeam, ok := rules.TeamMaxExposure[p.Team]; ok {
			if snap.teamCounts[p.Team] >= maxCount(maxTeam, n) {
				w = w.WithMultiplier(p.ID, w.Multiplier(p.ID)*overExposurePenalty)
			}
		}
	}
	return w
}

const (
	overExposurePenalty = 0.25
	nearExposurePenalty = 0.6
	minExposureBonus    = 0.5
)

// maxCount converts a max-exposure fraction into a lineup-count budget.
func maxCount(fraction float64, n int) int {
	return int(math.Floor(fraction*float64(n) + 1e-9))
}

// minCount converts a min-exposure fraction into a required lineup count.
func minCount(fraction float64, n int) int {
	return int(math.Ceil(fraction*float64(n) - 1e-9))
}

// computeViolations checks a finished portfolio against every exposure
// bound. Realized fractions are computed over the lineups actually emitted,
// not the requested N, so a short portfolio is judged on what it contains.
func computeViolations(lineups []types.Lineup, players []types.Player, rules types.ConstraintSet) []types.ExposureViolation {
	if len(lineups) == 0 {
		return nil
	}
	names := make(map[uuid.UUID]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}

	counts := make(map[uuid.UUID]int)
	teamCounts := make(map[string]int)
	for _, l := range lineups {
		teams := make(map[string]bool)
		for _, p := range l.Players {
			counts[p.ID]++
			teams[p.Team] = true
		}
		for team := range teams {
			teamCounts[team]++
		}
	}

	total := float64(len(lineups))
	var violations []types.ExposureViolation
	for _, p := range players {
		realized := float64(counts[p.ID]) / total
		if max, ok := rules.MaxExposure[p.ID]; ok && realized > max+1e-9 {
			violations = append(violations, types.ExposureViolation{
				Kind: "player", Key: p.ID.String(), Name: names[p.ID],
				Bound: max, Realized: realized, Detail: "above maximum",
			})
		}
		if min, ok := rules.MinExposure[p.ID]; ok && realized < min-1e-9 {
			violations = append(violations, types.ExposureViolation{
				Kind: "player", Key: p.ID.String(), Name: names[p.ID],
				Bound: min, Realized: realized, Detail: "below minimum",
			})
		}
	}
	teams := make([]string, 0, len(rules.TeamMaxExposure))
	for team := range rules.TeamMaxExposure {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	for _, team := range teams {
		realized := float64(teamCounts[team]) / total
		if realized > rules.TeamMaxExposure[team]+1e-9 {
			violations = append(violations, types.ExposureViolation{
				Kind: "team", Key: team,
				Bound: rules.TeamMaxExposure[team], Realized: realized, Detail: "above maximum",
			})
		}
	}
	return violations
}

// PlayerExposure is one row of the exposure report.
type PlayerExposure struct {
	PlayerID   uuid.UUID `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Count      int       `json:"count"`
	Fraction   float64   `json:"fraction"`
}

// TeamExposure is one team row of the exposure report.
type TeamExposure struct {
	Team     string  `json:"team"`
	Count    int     `json:"count"`
	Fraction float64 `json:"fraction"`
}

// ExposureReport summarizes realized exposure over a frozen portfolio.
type ExposureReport struct {
	PlayerExposures []PlayerExposure          `json:"player_exposures"`
	TeamExposures   []TeamExposure            `json:"team_exposures"`
	DiversityScore  float64                   `json:"diversity_score"`
	TotalLineups    int                       `json:"total_lineups"`
	Violations      []types.ExposureViolation `json:"violations"`
}

// BuildExposureReport computes the exposure report for a portfolio. The
// diversity score is the mean pairwise player difference normalized by
// lineup size: 1.0 means no two lineups share a player.
func BuildExposureReport(p *types.Portfolio, players []types.Player, rules types.ConstraintSet) *ExposureReport {
	report := &ExposureReport{
		TotalLineups: len(p.Lineups),
		Violations:   computeViolations(p.Lineups, players, rules),
	}
	if len(p.Lineups) == 0 {
		return report
	}

	names := make(map[uuid.UUID]string, len(players))
	for _, pl := range players {
		names[pl.ID] = pl.Name
	}
	counts := make(map[uuid.UUID]int)
	teamCounts := make(map[string]int)
	for _, l := range p.Lineups {
		teams := make(map[string]bool)
		for _, lp := range l.Players {
			counts[lp.ID]++
			teams[lp.Team] = true
		}
		for team := range teams {
			teamCounts[team]++
		}
	}

	total := float64(len(p.Lineups))
	for id, count := range counts {
		report.PlayerExposures = append(report.PlayerExposures, PlayerExposure{
			PlayerID:   id,
			PlayerName: names[id],
			Count:      count,
			Fraction:   float64(count) / total,
		})
	}
	sort.Slice(report.PlayerExposures, func(i, j int) bool {
		if report.PlayerExposures[i].Fraction != report.PlayerExposures[j].Fraction {
			return report.PlayerExposures[i].Fraction > report.PlayerExposures[j].Fraction
		}
		return report.PlayerExposures[i].PlayerID.String() < report.PlayerExposures[j].PlayerID.String()
	})
	for team, count := range teamCounts {
		report.TeamExposures = append(report.TeamExposures, TeamExposure{
			Team:     team,
			Count:    count,
			Fraction: float64(count) / total,
		})
	}
	sort.Slice(report.TeamExposures, func(i, j int) bool {
		if report.TeamExposures[i].Fraction != report.TeamExposures[j].Fraction {
			return report.TeamExposures[i].Fraction > report.TeamExposures[j].Fraction
		}
		return report.TeamExposures[i].Team < report.TeamExposures[j].Team
	})

	if len(p.Lineups) >= 2 {
		var diffs []float64
		for i := 0; i < len(p.Lineups); i++ {
			for j := i + 1; j < len(p.Lineups); j++ {
				diffs = append(diffs, float64(p.Lineups[i].DiffCount(p.Lineups[j])))
			}
		}
		size := float64(rules.LineupSize())
		report.DiversityScore = stat.Mean(diffs, nil) / size
	} else {
		report.DiversityScore = 1.0
	}
	return report
}

func violationSummary(violations []types.ExposureViolation) string {
	if len(violations) == 0 {
		return ""
	}
	return fmt.Sprintf("%d violations, first: %s", len(violations), violations[0].String())
}
