package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/lineup-engine/pkg/logger"
	"github.com/stitts-dev/lineup-engine/types"
)

// Config tunes a simulation run.
type Config struct {
	Trials             int     `json:"trials"`
	Workers            int     `json:"workers"`
	BatchSize          int     `json:"batch_size"`
	PrecisionTolerance float64 `json:"precision_tolerance"` // max acceptable win-rate standard error
	TeamCorrelation    float64 `json:"team_correlation"`    // ρ shared by teammates, in [0,1)
	Seed               int64   `json:"seed"`
}

// DefaultConfig returns the simulation bounds used when the caller does not
// tune them.
func DefaultConfig() Config {
	return Config{
		Trials:             10000,
		Workers:            4,
		BatchSize:          500,
		PrecisionTolerance: 0.01,
		TeamCorrelation:    0.35,
	}
}

// Engine estimates portfolio performance against a synthesized field by
// repeated randomized trials.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine, filling zero config values from
// DefaultConfig.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Trials <= 0 {
		cfg.Trials = def.Trials
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PrecisionTolerance <= 0 {
		cfg.PrecisionTolerance = def.PrecisionTolerance
	}
	if cfg.TeamCorrelation < 0 || cfg.TeamCorrelation >= 1 {
		cfg.TeamCorrelation = def.TeamCorrelation
	}
	return &Engine{cfg: cfg}
}

// accumulator carries one lineup's partial tallies from a batch of trials.
// Workers own their accumulators exclusively; a single reduction combines
// them after all workers finish, so trial order never matters.
type accumulator struct {
	wins      int
	cashes    int
	payoutSum float64
	dupTrials int
	scores    []float64
}

func (a *accumulator) merge(b *accumulator) {
	a.wins += b.wins
	a.cashes += b.cashes
	a.payoutSum += b.payoutSum
	a.dupTrials += b.dupTrials
	a.scores = append(a.scores, b.scores...)
}

// Simulate runs Config.Trials randomized trials for every lineup in the
// portfolio against a field synthesized from the players' ownership. Trials
// are pure functions of (catalog, field model, seed) and run on a worker
// pool over disjoint seed ranges. Cancellation is honored between batches:
// completed trials are reduced into results flagged Cancelled and returned
// with ErrCancelled.
func (e *Engine) Simulate(ctx context.Context, portfolio *types.Portfolio, players []types.Player, rules types.ConstraintSet, field types.FieldModel) ([]types.SimulationResult, error) {
	if len(portfolio.Lineups) == 0 {
		return nil, fmt.Errorf("empty portfolio")
	}
	if field.FieldSize <= 0 {
		return nil, fmt.Errorf("field size must be positive, got %d", field.FieldSize)
	}

	simulationID := uuid.New().String()
	log := logger.WithSimulationContext(simulationID, e.cfg.Trials)
	log.WithFields(logrus.Fields{
		"lineups":          len(portfolio.Lineups),
		"field_size":       field.FieldSize,
		"workers":          e.cfg.Workers,
		"team_correlation": e.cfg.TeamCorrelation,
		"seed":             e.cfg.Seed,
	}).Info("Starting simulation")

	sampler := newFieldSampler(players, rules)
	lineupIDSets := make([][]uuid.UUID, len(portfolio.Lineups))
	lineupKeys := make([]string, len(portfolio.Lineups))
	for i, l := range portfolio.Lineups {
		ids := l.PlayerIDs()
		lineupIDSets[i] = ids
		lineupKeys[i] = lineupKey(ids)
	}

	// Batches own disjoint trial (= seed) ranges.
	type batch struct{ start, end int }
	var batches []batch
	for start := 0; start < e.cfg.Trials; start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > e.cfg.Trials {
			end = e.cfg.Trials
		}
		batches = append(batches, batch{start, end})
	}

	merged := make([]*accumulator, len(portfolio.Lineups))
	for i := range merged {
		merged[i] = &accumulator{}
	}
	completed := 0
	cancelled := false

	for group := 0; group < len(batches) && !cancelled; group += e.cfg.Workers {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		groupEnd := group + e.cfg.Workers
		if groupEnd > len(batches) {
			groupEnd = len(batches)
		}

		partials := make([][]*accumulator, groupEnd-group)
		eg := new(errgroup.Group)
		for gi := group; gi < groupEnd; gi++ {
			gi := gi
			b := batches[gi]
			eg.Go(func() error {
				partials[gi-group] = e.runBatch(b.start, b.end, portfolio, players, sampler, field, lineupIDSets, lineupKeys)
				return nil
			})
		}
		_ = eg.Wait()

		for gi := group; gi < groupEnd; gi++ {
			for i := range merged {
				merged[i].merge(partials[gi-group][i])
			}
			completed += batches[gi].end - batches[gi].start
		}
	}

	if completed == 0 {
		log.Warn("Simulation cancelled before any trial completed")
		return nil, types.ErrCancelled
	}

	results := e.reduce(portfolio, players, field, merged, completed, cancelled)
	for _, r := range results {
		if r.PrecisionWarning {
			log.WithFields(logrus.Fields{
				"lineup_id":     r.LineupID,
				"win_std_error": r.WinStdError,
				"tolerance":     e.cfg.PrecisionTolerance,
			}).Warn("Win-rate standard error above tolerance")
		}
	}
	log.WithFields(logrus.Fields{
		"completed_trials": completed,
		"cancelled":        cancelled,
	}).Info("Simulation completed")

	if cancelled {
		return results, types.ErrCancelled
	}
	return results, nil
}

// runBatch executes trials [start, end). Each trial seeds its own generator
// from the base seed plus the trial index, so results are identical no
// matter how trials are partitioned across workers.
func (e *Engine) runBatch(start, end int, portfolio *types.Portfolio, players []types.Player, sampler *fieldSampler, field types.FieldModel, lineupIDSets [][]uuid.UUID, lineupKeys []string) []*accumulator {
	accs := make([]*accumulator, len(portfolio.Lineups))
	for i := range accs {
		accs[i] = &accumulator{scores: make([]float64, 0, end-start)}
	}

	fieldCount := field.FieldSize - len(portfolio.Lineups)
	if fieldCount < 1 {
		fieldCount = 1
	}
	cashLine := field.CashLine()

	for trial := start; trial < end; trial++ {
		rng := rand.New(rand.NewSource(e.cfg.Seed + int64(trial)))
		outcomes := sampleSlate(players, e.cfg.TeamCorrelation, rng)

		// Field entrants score against the same trial's entity draws.
		fieldScores := make([]float64, 0, fieldCount)
		fieldKeyCount := make(map[string]int, fieldCount)
		for f := 0; f < fieldCount; f++ {
			ids := sampler.sampleLineup(rng)
			if ids == nil {
				continue
			}
			score := 0.0
			for _, id := range ids {
				score += outcomes[id]
			}
			fieldScores = append(fieldScores, score)
			fieldKeyCount[lineupKey(ids)]++
		}
		sort.Float64s(fieldScores)

		for i := range portfolio.Lineups {
			score := 0.0
			for _, id := range lineupIDSets[i] {
				score += outcomes[id]
			}

			// Rank = 1 + number of field entries strictly above us.
			above := len(fieldScores) - sort.Search(len(fieldScores), func(k int) bool {
				return fieldScores[k] > score
			})
			rank := above + 1

			acc := accs[i]
			acc.scores = append(acc.scores, score)
			if rank == 1 {
				acc.wins++
			}
			if cashLine > 0 && rank <= cashLine {
				acc.cashes++
			}
			acc.payoutSum += field.PayoutForRank(rank)
			if fieldKeyCount[lineupKeys[i]] > 0 {
				acc.dupTrials++
			}
		}
	}
	return accs
}

// reduce folds the merged accumulators into immutable per-lineup results.
func (e *Engine) reduce(portfolio *types.Portfolio, players []types.Player, field types.FieldModel, merged []*accumulator, completed int, cancelled bool) []types.SimulationResult {
	results := make([]types.SimulationResult, len(portfolio.Lineups))
	t := float64(completed)

	for i, l := range portfolio.Lineups {
		acc := merged[i]
		sort.Float64s(acc.scores)

		winProb := float64(acc.wins) / t
		stdErr := math.Sqrt(winProb * (1 - winProb) / t)
		roi := 0.0
		if field.EntryFee > 0 {
			roi = acc.payoutSum/t/field.EntryFee - 1
		}

		results[i] = types.SimulationResult{
			LineupID:        l.ID,
			Trials:          completed,
			WinProbability:  winProb,
			WinStdError:     stdErr,
			CashProbability: float64(acc.cashes) / t,
			ROI:             roi,
			MeanScore:       stat.Mean(acc.scores, nil),
			ScoreStdDev:     stat.StdDev(acc.scores, nil),
			Percentiles: map[int]float64{
				10: stat.Quantile(0.10, stat.Empirical, acc.scores, nil),
				25: stat.Quantile(0.25, stat.Empirical, acc.scores, nil),
				50: stat.Quantile(0.50, stat.Empirical, acc.scores, nil),
				75: stat.Quantile(0.75, stat.Empirical, acc.scores, nil),
				90: stat.Quantile(0.90, stat.Empirical, acc.scores, nil),
			},
			DuplicateRisk:    float64(acc.dupTrials) / t,
			LeverageScore:    leverageScore(l, players),
			PrecisionWarning: stdErr > e.cfg.PrecisionTolerance,
			Cancelled:        cancelled,
		}
	}
	return results
}

// leverageScore measures how much projection a lineup packs relative to how
// heavily the field owns it: the mean over lineup players of projection
// share divided by ownership share across the catalog. 1.0 is field-neutral;
// above 1 means more points than the field is paying attention to.
func leverageScore(l types.Lineup, players []types.Player) float64 {
	if len(l.Players) == 0 {
		return 0
	}
	totalProj := 0.0
	totalOwn := 0.0
	for _, p := range players {
		totalProj += p.ProjectedPoints
		totalOwn += p.Ownership
	}
	if totalProj == 0 {
		return 0
	}
	avgProj := totalProj / float64(len(players))
	avgOwn := totalOwn / float64(len(players))

	const eps = 1e-6
	sum := 0.0
	for _, p := range l.Players {
		projRatio := p.ProjectedPoints / math.Max(avgProj, eps)
		ownRatio := (p.Ownership + eps) / (avgOwn + eps)
		sum += projRatio / ownRatio
	}
	return sum / float64(len(l.Players))
}
