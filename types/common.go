package types

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// MaxProjection is the sanity bound for projected points. Records above it
// are rejected at the catalog boundary rather than coerced.
const MaxProjection = 500.0

// Player represents one selectable entry in the catalog for a single
// optimization request. The catalog is read-only: the engine never mutates
// players, so a slice of them is safe to share across workers.
type Player struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Team            string    `json:"team"`
	Opponent        string    `json:"opponent,omitempty"`
	Positions       []string  `json:"positions"`
	Salary          int       `json:"salary"`
	ProjectedPoints float64   `json:"projected_points"`
	FloorPoints     float64   `json:"floor_points"`
	CeilingPoints   float64   `json:"ceiling_points"`
	StdDev          float64   `json:"std_dev,omitempty"`
	Ownership       float64   `json:"ownership"` // projected field selection rate, fraction in [0,1]
	IsLocked        bool      `json:"is_locked"`
	IsExcluded      bool      `json:"is_excluded"`
	IsInjured       bool      `json:"is_injured"`
}

// Position returns the player's primary position.
func (p Player) Position() string {
	if len(p.Positions) == 0 {
		return ""
	}
	return p.Positions[0]
}

// EligibleFor reports whether the player can fill any of the given positions.
func (p Player) EligibleFor(allowed []string) bool {
	for _, pos := range p.Positions {
		for _, a := range allowed {
			if pos == a {
				return true
			}
		}
	}
	return false
}

// ScoreStdDev returns the player's score standard deviation, estimating it
// from the floor/ceiling band when no explicit value is set. The band is
// treated as an approximate 95% interval, matching how projections are
// published.
func (p Player) ScoreStdDev() float64 {
	if p.StdDev > 0 {
		return p.StdDev
	}
	if p.CeilingPoints > p.FloorPoints {
		return (p.CeilingPoints - p.FloorPoints) / 4.0
	}
	return p.ProjectedPoints * 0.25
}

// ValidatePlayers checks a catalog batch against the positions known to the
// constraint set. Malformed records are rejected, never coerced.
func ValidatePlayers(players []Player, rules ConstraintSet) error {
	known := make(map[string]bool)
	for _, slot := range rules.EffectiveSlots() {
		for _, pos := range slot.AllowedPositions {
			known[pos] = true
		}
	}

	seen := make(map[uuid.UUID]bool, len(players))
	for i, p := range players {
		if p.ID == uuid.Nil {
			return fmt.Errorf("player %d (%s): missing id", i, p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("player %s: duplicate id %s", p.Name, p.ID)
		}
		seen[p.ID] = true
		if p.Salary <= 0 {
			return fmt.Errorf("player %s: non-positive salary %d", p.Name, p.Salary)
		}
		if len(p.Positions) == 0 {
			return fmt.Errorf("player %s: no position", p.Name)
		}
		for _, pos := range p.Positions {
			if !known[pos] {
				return fmt.Errorf("player %s: unknown position %q", p.Name, pos)
			}
		}
		if p.ProjectedPoints < 0 || p.ProjectedPoints > MaxProjection {
			return fmt.Errorf("player %s: projection %.2f outside [0, %.0f]", p.Name, p.ProjectedPoints, MaxProjection)
		}
		if p.Ownership < 0 || p.Ownership > 1 {
			return fmt.Errorf("player %s: ownership %.3f outside [0,1]", p.Name, p.Ownership)
		}
	}
	return nil
}

// PositionRequirements maps a position to the number of roster spots it must
// fill. The quota sum is the lineup size.
type PositionRequirements map[string]int

// GetTotalPlayers returns the lineup size implied by the requirements.
func (pr PositionRequirements) GetTotalPlayers() int {
	total := 0
	for _, count := range pr {
		total += count
	}
	return total
}

// PositionSlot is one roster spot. Multi-position (flex) slots list every
// position that may fill them.
type PositionSlot struct {
	SlotName         string   `json:"slot_name"`
	AllowedPositions []string `json:"allowed_positions"`
	Priority         int      `json:"priority"` // fill order, 1 = first
}

// ConstraintSet carries every selection rule for one request. It is a plain
// value: build it, call Validate, and pass it around by copy.
type ConstraintSet struct {
	SalaryCap            int                   `json:"salary_cap"`
	PositionRequirements PositionRequirements  `json:"position_requirements"`
	Slots                []PositionSlot        `json:"slots,omitempty"` // overrides PositionRequirements when set
	MaxPerTeam           int                   `json:"max_per_team"`    // 0 = no cap
	LockedPlayers        []uuid.UUID           `json:"locked_players"`
	ExcludedPlayers      []uuid.UUID           `json:"excluded_players"`
	MinExposure          map[uuid.UUID]float64 `json:"min_exposure,omitempty"` // fractions of the portfolio
	MaxExposure          map[uuid.UUID]float64 `json:"max_exposure,omitempty"`
	TeamMaxExposure      map[string]float64    `json:"team_max_exposure,omitempty"`
	NumLineups           int                   `json:"num_lineups"`
	MinDifferentPlayers  int                   `json:"min_different_players"`
}

// EffectiveSlots returns the slot list for the request: the explicit Slots
// when provided, otherwise one single-position slot per required count,
// ordered by position name so slot derivation is deterministic.
func (cs ConstraintSet) EffectiveSlots() []PositionSlot {
	if len(cs.Slots) > 0 {
		return cs.Slots
	}
	positions := make([]string, 0, len(cs.PositionRequirements))
	for pos := range cs.PositionRequirements {
		positions = append(positions, pos)
	}
	sort.Strings(positions)

	slots := make([]PositionSlot, 0, cs.LineupSize())
	priority := 1
	for _, pos := range positions {
		for i := 0; i < cs.PositionRequirements[pos]; i++ {
			slots = append(slots, PositionSlot{
				SlotName:         pos,
				AllowedPositions: []string{pos},
				Priority:         priority,
			})
			priority++
		}
	}
	return slots
}

// LineupSize returns the number of roster spots in a valid lineup.
func (cs ConstraintSet) LineupSize() int {
	if len(cs.Slots) > 0 {
		return len(cs.Slots)
	}
	return cs.PositionRequirements.GetTotalPlayers()
}

// Validate checks the constraint set for internal consistency.
func (cs ConstraintSet) Validate() error {
	if cs.SalaryCap <= 0 {
		return fmt.Errorf("salary cap must be positive, got %d", cs.SalaryCap)
	}
	if cs.LineupSize() == 0 {
		return fmt.Errorf("no roster spots defined")
	}
	locked := make(map[uuid.UUID]bool, len(cs.LockedPlayers))
	for _, id := range cs.LockedPlayers {
		locked[id] = true
	}
	for _, id := range cs.ExcludedPlayers {
		if locked[id] {
			return fmt.Errorf("player %s is both locked and excluded", id)
		}
	}
	for id, min := range cs.MinExposure {
		if min < 0 || min > 1 {
			return fmt.Errorf("min exposure for %s outside [0,1]: %.3f", id, min)
		}
		if max, ok := cs.MaxExposure[id]; ok && min > max {
			return fmt.Errorf("min exposure %.3f exceeds max %.3f for %s", min, max, id)
		}
	}
	for id, max := range cs.MaxExposure {
		if max < 0 || max > 1 {
			return fmt.Errorf("max exposure for %s outside [0,1]: %.3f", id, max)
		}
	}
	for team, max := range cs.TeamMaxExposure {
		if max < 0 || max > 1 {
			return fmt.Errorf("team max exposure for %s outside [0,1]: %.3f", team, max)
		}
	}
	if cs.MinDifferentPlayers < 0 || cs.MinDifferentPlayers > cs.LineupSize() {
		return fmt.Errorf("min different players %d outside [0,%d]", cs.MinDifferentPlayers, cs.LineupSize())
	}
	return nil
}

// LineupPlayer is the roster entry carried inside an emitted lineup.
type LineupPlayer struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Team            string    `json:"team"`
	Position        string    `json:"position"` // slot filled, not primary position
	Salary          int       `json:"salary"`
	ProjectedPoints float64   `json:"projected_points"`
	Ownership       float64   `json:"ownership"`
}

// Lineup is an emitted, constraint-satisfying selection. It is a value
// object: once returned by the solver it is never mutated.
type Lineup struct {
	ID              string                  `json:"id"`
	Players         []LineupPlayer          `json:"players"`
	PlayerPositions map[uuid.UUID]string    `json:"player_positions"`
	TotalSalary     int                     `json:"total_salary"`
	ProjectedPoints float64                 `json:"projected_points"`
}

// PlayerIDs returns the lineup's player ids sorted lexically, which gives
// lineups a canonical identity for duplicate detection and tie-breaking.
func (l Lineup) PlayerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(l.Players))
	for i, p := range l.Players {
		ids[i] = p.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Contains reports whether the lineup includes the given player.
func (l Lineup) Contains(id uuid.UUID) bool {
	for _, p := range l.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// DiffCount counts players present in l but not in other. For equal-size
// lineups this is symmetric and matches the portfolio distinctness rule.
func (l Lineup) DiffCount(other Lineup) int {
	in := make(map[uuid.UUID]bool, len(other.Players))
	for _, p := range other.Players {
		in[p.ID] = true
	}
	diff := 0
	for _, p := range l.Players {
		if !in[p.ID] {
			diff++
		}
	}
	return diff
}

// ExposureViolation names one unsatisfied exposure bound in a portfolio.
type ExposureViolation struct {
	Kind     string  `json:"kind"` // "player" or "team"
	Key      string  `json:"key"`  // player id or team
	Name     string  `json:"name,omitempty"`
	Bound    float64 `json:"bound"`
	Realized float64 `json:"realized"`
	Detail   string  `json:"detail,omitempty"`
}

func (v ExposureViolation) String() string {
	return fmt.Sprintf("%s %s: realized %.3f vs bound %.3f", v.Kind, v.Key, v.Realized, v.Bound)
}

// Portfolio is an ordered set of lineups generated together under shared
// exposure bounds. Mutated only during generation, frozen thereafter.
type Portfolio struct {
	Lineups    []Lineup            `json:"lineups"`
	Partial    bool                `json:"partial"`
	Violations []ExposureViolation `json:"violations,omitempty"`
}

// PlayerExposure returns the fraction of lineups containing the player.
func (p Portfolio) PlayerExposure(id uuid.UUID) float64 {
	if len(p.Lineups) == 0 {
		return 0
	}
	count := 0
	for _, l := range p.Lineups {
		if l.Contains(id) {
			count++
		}
	}
	return float64(count) / float64(len(p.Lineups))
}

// PayoutTier maps a contiguous rank range to an absolute payout.
type PayoutTier struct {
	MinRank int     `json:"min_rank"`
	MaxRank int     `json:"max_rank"`
	Payout  float64 `json:"payout"`
}

// FieldModel describes the competitive field a portfolio is simulated
// against. Ownership comes from the player catalog itself.
type FieldModel struct {
	FieldSize   int          `json:"field_size"`
	EntryFee    float64      `json:"entry_fee"`
	PayoutCurve []PayoutTier `json:"payout_curve"`
}

// PayoutForRank returns the payout for a finishing rank, 0 outside the curve.
func (fm FieldModel) PayoutForRank(rank int) float64 {
	for _, tier := range fm.PayoutCurve {
		if rank >= tier.MinRank && rank <= tier.MaxRank {
			return tier.Payout
		}
	}
	return 0
}

// CashLine returns the worst rank that still pays.
func (fm FieldModel) CashLine() int {
	line := 0
	for _, tier := range fm.PayoutCurve {
		if tier.Payout > 0 && tier.MaxRank > line {
			line = tier.MaxRank
		}
	}
	return line
}

// SimulationResult holds the per-lineup estimates from one simulation run.
// Never mutated after creation; a new request produces a new result.
type SimulationResult struct {
	LineupID         string             `json:"lineup_id"`
	Trials           int                `json:"trials"`
	WinProbability   float64            `json:"win_probability"`
	WinStdError      float64            `json:"win_std_error"`
	CashProbability  float64            `json:"cash_probability"`
	ROI              float64            `json:"roi"`
	MeanScore        float64            `json:"mean_score"`
	ScoreStdDev      float64            `json:"score_std_dev"`
	Percentiles      map[int]float64    `json:"percentiles"` // keyed 10/25/50/75/90
	DuplicateRisk    float64            `json:"duplicate_risk"`
	LeverageScore    float64            `json:"leverage_score"`
	PrecisionWarning bool               `json:"precision_warning"`
	Cancelled        bool               `json:"cancelled"`
}

// SwapResult is the late-swap output: the replacement lineup plus the audit
// change list consumed by the surrounding application.
type SwapResult struct {
	Lineup  Lineup      `json:"lineup"`
	Removed []uuid.UUID `json:"removed"`
	Added   []uuid.UUID `json:"added"`
}
