// Package usage folds streaming token-usage updates into session totals.
package usage

import "sync"

// Counters holds the four raw token counters reported by usage updates.
type Counters struct {
	Input         int64 `json:"input_tokens"`
	Output        int64 `json:"output_tokens"`
	CacheRead     int64 `json:"cache_read_input_tokens"`
	CacheCreation int64 `json:"cache_creation_input_tokens"`
}

// add accumulates delta into c. Negative deltas are clamped to zero: a
// counter can only ever grow.
func (c *Counters) add(delta Counters) {
	c.Input += max(delta.Input, 0)
	c.Output += max(delta.Output, 0)
	c.CacheRead += max(delta.CacheRead, 0)
	c.CacheCreation += max(delta.CacheCreation, 0)
}

// Totals is a point-in-time snapshot of accumulated usage.
type Totals struct {
	// Aggregate holds the summed counters across all models.
	Aggregate Counters

	// Total is the derived input+output token count.
	Total int64

	// PerModel breaks the aggregate down by model identifier. Updates
	// with no model attribution accumulate under the empty key.
	PerModel map[string]Counters

	// Updates is the number of usage updates applied.
	Updates int64
}

// Accumulator merges usage updates across a run. Counters are strictly
// additive: every update adds to the running totals, never assigns over
// them. The fields are unexported so callers cannot overwrite totals
// directly.
type Accumulator struct {
	mu        sync.Mutex
	aggregate Counters
	perModel  map[string]Counters
	updates   int64
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{perModel: make(map[string]Counters)}
}

// Apply adds the update's counters to the aggregate totals and to the
// per-model breakdown for model.
func (a *Accumulator) Apply(model string, delta Counters) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.aggregate.add(delta)

	entry := a.perModel[model]
	entry.add(delta)
	a.perModel[model] = entry

	a.updates++
}

// Snapshot returns a copy of the current totals. The derived total is
// recomputed from the aggregate on every call, never cached.
func (a *Accumulator) Snapshot() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()

	perModel := make(map[string]Counters, len(a.perModel))
	for model, counters := range a.perModel {
		perModel[model] = counters
	}

	return Totals{
		Aggregate: a.aggregate,
		Total:     a.aggregate.Input + a.aggregate.Output,
		PerModel:  perModel,
		Updates:   a.updates,
	}
}
