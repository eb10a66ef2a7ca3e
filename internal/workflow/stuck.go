package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/store"
)

// Tracker is the per-chain cognitive rotation state persisted across
// successive Stuck ingests on the same chain.
type Tracker struct {
	ChainID     string         `json:"chain_id"`
	Attempted   map[Mode]bool  `json:"attempted"`
	CurrentCycle int           `json:"current_cycle"`
}

func trackerKey(instance, chainID string) string { return fmt.Sprintf("%s:stuck:chain:%s", instance, chainID) }

// Rotator loads/persists Tracker state via the store gateway.
type Rotator struct {
	gw *store.Gateway
}

// NewRotator builds a Rotator.
func NewRotator(gw *store.Gateway) *Rotator {
	return &Rotator{gw: gw}
}

// NextMode picks the next unattempted mode from CycleOrder for chainID,
// marks it attempted, and persists the tracker. When every mode in
// CycleOrder has been attempted, it resets to the first mode and
// increments CurrentCycle.
func (r *Rotator) NextMode(ctx context.Context, instance, chainID string) (Mode, error) {
	tracker, err := r.load(ctx, instance, chainID)
	if err != nil {
		return "", err
	}

	next, exhausted := firstUnattempted(tracker)
	if exhausted {
		tracker.Attempted = map[Mode]bool{}
		tracker.CurrentCycle++
		next = CycleOrder[0]
	}
	tracker.Attempted[next] = true

	if err := r.save(ctx, instance, tracker); err != nil {
		return "", err
	}
	return next, nil
}

func firstUnattempted(t *Tracker) (Mode, bool) {
	for _, m := range CycleOrder {
		if !t.Attempted[m] {
			return m, false
		}
	}
	return "", true
}

func (r *Rotator) load(ctx context.Context, instance, chainID string) (*Tracker, error) {
	raw, found, err := r.gw.JSONGet(ctx, trackerKey(instance, chainID), "$")
	if err != nil {
		return nil, apperr.Store("stuck tracker read failed", err)
	}
	if !found {
		return &Tracker{ChainID: chainID, Attempted: map[Mode]bool{}}, nil
	}
	var t Tracker
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, apperr.Internal("stuck tracker decode failed", err)
	}
	if t.Attempted == nil {
		t.Attempted = map[Mode]bool{}
	}
	return &t, nil
}

func (r *Rotator) save(ctx context.Context, instance string, t *Tracker) error {
	body, err := json.Marshal(t)
	if err != nil {
		return apperr.Internal("stuck tracker encode failed", err)
	}
	if err := r.gw.JSONSet(ctx, trackerKey(instance, t.ChainID), "$", string(body)); err != nil {
		return apperr.Store("stuck tracker write failed", err)
	}
	return nil
}

// promptTemplates are pure functions of (mode, thought_number); they drive
// deterministic prompt/insight generation for the visual channel and are
// never persisted.
var promptTemplates = map[Mode]func(thoughtNumber int) string{
	FirstPrinciples: func(n int) string {
		return fmt.Sprintf("[thought %d] Break this down to its fundamental components — what do we actually know to be true here?", n)
	},
	Socratic: func(n int) string {
		return fmt.Sprintf("[thought %d] What question, if answered, would dissolve this block?", n)
	},
	Systems: func(n int) string {
		return fmt.Sprintf("[thought %d] What feedback loops or dependencies connect to this problem?", n)
	},
	Ooda: func(n int) string {
		return fmt.Sprintf("[thought %d] Observe: what changed since the last attempt? Orient, decide, act.", n)
	},
	RootCause: func(n int) string {
		return fmt.Sprintf("[thought %d] Ask why five times — what is the first link in this failure chain?", n)
	},
}

// Prompt renders the deterministic prompt text for mode at thoughtNumber.
// Swot has no Stuck-rotation prompt since it never appears in CycleOrder.
func Prompt(mode Mode, thoughtNumber int) string {
	if fn, ok := promptTemplates[mode]; ok {
		return fn(thoughtNumber)
	}
	return ""
}
