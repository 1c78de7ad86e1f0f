package learning

import (
	"fmt"
	"math/rand"

	"github.com/yegors/autovector/pkg/logger"
)

// Snapshot is the externally visible shape of a value table: state id to a
// flat mapping over exactly the four action keys. Persistence tooling
// depends on this shape for round-tripping.
type Snapshot map[int]map[string]float64

// Params are the Q-learning hyperparameters
type Params struct {
	Alpha   float64 // learning rate, (0, 1]
	Gamma   float64 // discount factor, [0, 1)
	Epsilon float64 // exploration rate, [0, 1]
}

// Learner owns the sparse state-action value table and implements the
// single-step Q-learning update and epsilon-greedy action selection.
// Which actions are legal in a state is the caller's concern: legality
// depends on airspace geometry the learner does not model.
type Learner struct {
	params Params
	table  map[int]map[Action]float64
	rng    *rand.Rand
	logger *logger.Logger
}

// NewLearner creates a learner with the given hyperparameters. The rng is
// injected so stochastic behavior (exploration, tie-breaking) is
// reproducible in tests.
func NewLearner(params Params, rng *rand.Rand, log *logger.Logger) (*Learner, error) {
	if params.Alpha <= 0 || params.Alpha > 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1], got %v", params.Alpha)
	}
	if params.Gamma < 0 || params.Gamma >= 1 {
		return nil, fmt.Errorf("gamma must be in [0, 1), got %v", params.Gamma)
	}
	if params.Epsilon < 0 || params.Epsilon > 1 {
		return nil, fmt.Errorf("epsilon must be in [0, 1], got %v", params.Epsilon)
	}

	return &Learner{
		params: params,
		table:  make(map[int]map[Action]float64),
		rng:    rng,
		logger: log.Named("learner"),
	}, nil
}

// Value returns the stored estimate for a state-action pair, or 0 for an
// unseen state. Unseen is not an error: the table is sparse by design.
func (l *Learner) Value(state int, action Action) float64 {
	if row, ok := l.table[state]; ok {
		return row[action]
	}
	return 0
}

// BestValue returns the maximum value over the legal actions in a state,
// or 0 when no actions are legal (terminal or dead-end state)
func (l *Learner) BestValue(state int, legal []Action) float64 {
	if len(legal) == 0 {
		return 0
	}
	best := l.Value(state, legal[0])
	for _, a := range legal[1:] {
		if v := l.Value(state, a); v > best {
			best = v
		}
	}
	return best
}

// BestAction returns the legal action with the highest value, breaking
// ties uniformly at random among the maximizers. Deterministic first-match
// tie-breaking would silently bias learned policies toward one cardinal
// direction. Returns nil when no actions are legal.
func (l *Learner) BestAction(state int, legal []Action) *Action {
	if len(legal) == 0 {
		return nil
	}

	best := []Action{legal[0]}
	bestVal := l.Value(state, legal[0])
	for _, a := range legal[1:] {
		v := l.Value(state, a)
		if v > bestVal {
			best = []Action{a}
			bestVal = v
		} else if v == bestVal {
			best = append(best, a)
		}
	}

	picked := best[l.rng.Intn(len(best))]
	return &picked
}

// SelectAction picks an action epsilon-greedily: a uniformly random legal
// action with probability epsilon, the best-known action otherwise. Returns
// nil when no actions are legal.
func (l *Learner) SelectAction(state int, legal []Action) *Action {
	if len(legal) == 0 {
		return nil
	}
	if l.rng.Float64() < l.params.Epsilon {
		picked := legal[l.rng.Intn(len(legal))]
		return &picked
	}
	return l.BestAction(state, legal)
}

// Update applies the single-step Q-learning rule for one observed
// transition:
//
//	q(s,a) <- (1-alpha)*q(s,a) + alpha*(r + gamma*max q(s',legal))
//
// The row for the state is created lazily, in full, the first time any of
// its actions is updated. Must be called exactly once per observed
// transition.
func (l *Learner) Update(state int, action Action, nextState int, nextLegal []Action, reward float64) {
	row, ok := l.table[state]
	if !ok {
		row = newRow()
		l.table[state] = row
	}

	sample := reward + l.params.Gamma*l.BestValue(nextState, nextLegal)
	row[action] = (1-l.params.Alpha)*row[action] + l.params.Alpha*sample
}

// Snapshot returns a copy of the value table in the persistence shape.
// Every populated state carries all four action keys.
func (l *Learner) Snapshot() Snapshot {
	snap := make(Snapshot, len(l.table))
	for state, row := range l.table {
		out := make(map[string]float64, len(Actions))
		for _, a := range Actions {
			out[a.String()] = row[a]
		}
		snap[state] = out
	}
	return snap
}

// Restore replaces the value table wholesale with an externally supplied
// snapshot. States absent from the snapshot are treated as unseen, as
// usual. Unknown action keys are reported and skipped rather than failing
// the whole load.
func (l *Learner) Restore(snap Snapshot) {
	table := make(map[int]map[Action]float64, len(snap))
	for state, values := range snap {
		row := newRow()
		for key, v := range values {
			a, err := ParseAction(key)
			if err != nil {
				l.logger.Warn("Skipping unknown action key in value table",
					logger.Int("state", state),
					logger.String("key", key),
				)
				continue
			}
			row[a] = v
		}
		table[state] = row
	}
	l.table = table

	l.logger.Info("Value table restored",
		logger.Int("states", len(table)),
	)
}

// States returns the number of populated table rows
func (l *Learner) States() int {
	return len(l.table)
}

// newRow builds a fully populated action row initialized to 0. Rows are
// never partially populated.
func newRow() map[Action]float64 {
	row := make(map[Action]float64, len(Actions))
	for _, a := range Actions {
		row[a] = 0
	}
	return row
}
