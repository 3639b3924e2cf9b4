package types

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pid(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

func baseRules() ConstraintSet {
	return ConstraintSet{
		SalaryCap:            50000,
		PositionRequirements: PositionRequirements{"PG": 1, "SG": 1, "C": 1},
	}
}

func TestValidatePlayers(t *testing.T) {
	good := Player{ID: pid(1), Name: "Curry", Team: "GSW", Positions: []string{"PG"}, Salary: 8500, ProjectedPoints: 50.5, Ownership: 0.35}

	tests := []struct {
		name    string
		players []Player
		wantErr string
	}{
		{"valid", []Player{good}, ""},
		{"missing id", []Player{{Name: "nobody", Positions: []string{"PG"}, Salary: 100}}, "missing id"},
		{"duplicate id", []Player{good, good}, "duplicate id"},
		{"zero salary", []Player{{ID: pid(2), Name: "free", Positions: []string{"PG"}}}, "salary"},
		{"no position", []Player{{ID: pid(2), Name: "roleless", Salary: 100}}, "no position"},
		{"unknown position", []Player{{ID: pid(2), Name: "keeper", Positions: []string{"GK"}, Salary: 100}}, "unknown position"},
		{"projection out of range", []Player{{ID: pid(2), Name: "hype", Positions: []string{"PG"}, Salary: 100, ProjectedPoints: 900}}, "projection"},
		{"ownership out of range", []Player{{ID: pid(2), Name: "chalk", Positions: []string{"PG"}, Salary: 100, Ownership: 1.5}}, "ownership"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlayers(tt.players, baseRules())
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPlayerScoreStdDev(t *testing.T) {
	explicit := Player{ProjectedPoints: 40, StdDev: 7}
	assert.Equal(t, 7.0, explicit.ScoreStdDev())

	banded := Player{ProjectedPoints: 40, FloorPoints: 20, CeilingPoints: 60}
	assert.InDelta(t, 10.0, banded.ScoreStdDev(), 1e-9)

	bare := Player{ProjectedPoints: 40}
	assert.InDelta(t, 10.0, bare.ScoreStdDev(), 1e-9)
}

func TestEffectiveSlots_DerivedDeterministically(t *testing.T) {
	rules := baseRules()
	first := rules.EffectiveSlots()
	second := rules.EffectiveSlots()
	require.Equal(t, first, second)
	require.Len(t, first, 3)
	// Derived slots come out in position order with increasing priority.
	assert.Equal(t, "C", first[0].SlotName)
	assert.Equal(t, "PG", first[1].SlotName)
	assert.Equal(t, "SG", first[2].SlotName)
	assert.Equal(t, 1, first[0].Priority)
	assert.Equal(t, 3, first[2].Priority)
}

func TestConstraintSetValidate(t *testing.T) {
	rules := baseRules()
	assert.NoError(t, rules.Validate())

	noCap := rules
	noCap.SalaryCap = 0
	assert.Error(t, noCap.Validate())

	conflict := rules
	conflict.LockedPlayers = []uuid.UUID{pid(1)}
	conflict.ExcludedPlayers = []uuid.UUID{pid(1)}
	assert.Error(t, conflict.Validate())

	crossed := rules
	crossed.MinExposure = map[uuid.UUID]float64{pid(1): 0.8}
	crossed.MaxExposure = map[uuid.UUID]float64{pid(1): 0.5}
	assert.Error(t, crossed.Validate())

	outOfRange := rules
	outOfRange.MaxExposure = map[uuid.UUID]float64{pid(1): 1.5}
	assert.Error(t, outOfRange.Validate())

	tooDistinct := rules
	tooDistinct.MinDifferentPlayers = 10
	assert.Error(t, tooDistinct.Validate())
}

func TestLineupDiffCount(t *testing.T) {
	mk := func(ids ...int) Lineup {
		l := Lineup{}
		for _, n := range ids {
			l.Players = append(l.Players, LineupPlayer{ID: pid(n)})
		}
		return l
	}
	a := mk(1, 2, 3)
	b := mk(1, 4, 5)
	assert.Equal(t, 2, a.DiffCount(b))
	assert.Equal(t, 2, b.DiffCount(a))
	assert.Equal(t, 0, a.DiffCount(a))
	assert.Equal(t, 3, a.DiffCount(mk(7, 8, 9)))
}

func TestPortfolioPlayerExposure(t *testing.T) {
	p := Portfolio{Lineups: []Lineup{
		{Players: []LineupPlayer{{ID: pid(1)}, {ID: pid(2)}}},
		{Players: []LineupPlayer{{ID: pid(1)}, {ID: pid(3)}}},
	}}
	assert.InDelta(t, 1.0, p.PlayerExposure(pid(1)), 1e-9)
	assert.InDelta(t, 0.5, p.PlayerExposure(pid(2)), 1e-9)
	assert.InDelta(t, 0.0, p.PlayerExposure(pid(9)), 1e-9)
}

func TestFieldModelPayouts(t *testing.T) {
	fm := FieldModel{
		FieldSize: 100,
		EntryFee:  10,
		PayoutCurve: []PayoutTier{
			{MinRank: 1, MaxRank: 1, Payout: 300},
			{MinRank: 2, MaxRank: 10, Payout: 50},
			{MinRank: 11, MaxRank: 25, Payout: 15},
		},
	}
	assert.Equal(t, 300.0, fm.PayoutForRank(1))
	assert.Equal(t, 50.0, fm.PayoutForRank(10))
	assert.Equal(t, 15.0, fm.PayoutForRank(25))
	assert.Equal(t, 0.0, fm.PayoutForRank(26))
	assert.Equal(t, 25, fm.CashLine())
}
