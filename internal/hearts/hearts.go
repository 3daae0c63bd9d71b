// Package hearts keeps each learner's lives and regenerates them lazily on read.
package hearts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
	"github.com/at-ishikawa/lessonquiz/internal/store"
)

const (
	DefaultMax    = 5
	DefaultRefill = 24 * time.Hour

	// maxAttempts bounds the re-read loop when another request changed the row first.
	maxAttempts = 3
)

// State is the stored hearts row of one learner.
type State struct {
	LearnerID string     `json:"learner_id"`
	Remaining int        `json:"remaining"`
	RefillAt  *time.Time `json:"refill_at"`
}

// Status is the learner-facing view of a State.
type Status struct {
	Remaining          int        `json:"remaining"`
	Max                int        `json:"max"`
	RefillAt           *time.Time `json:"refill_at,omitempty"`
	SecondsUntilRefill int64      `json:"seconds_until_refill"`
}

type Ledger struct {
	store  store.Store
	max    int
	refill time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Ledger)

func WithMax(n int) Option { return func(l *Ledger) { l.max = n } }

func WithRefill(d time.Duration) Option { return func(l *Ledger) { l.refill = d } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

func NewLedger(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  s,
		max:    DefaultMax,
		refill: DefaultRefill,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max is the number of hearts a learner holds when full.
func (l *Ledger) Max() int {
	return l.max
}

func (l *Ledger) read(ctx context.Context, learnerID string) (State, bool, error) {
	row, ok, err := store.FindOne(ctx, l.store, store.CollectionHearts, store.Where(store.Eq("learner_id", learnerID)))
	if err != nil {
		return State{}, false, fmt.Errorf("find hearts of %s: %w", learnerID, err)
	}
	if !ok {
		return State{}, false, nil
	}
	var st State
	if err := store.Decode(row, &st); err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (l *Ledger) due(st State, now time.Time) bool {
	return st.Remaining < l.max && st.RefillAt != nil && !now.Before(*st.RefillAt)
}

// Ensure returns the learner's hearts, creating a full row on first use and applying
// a due regeneration before returning.
func (l *Ledger) Ensure(ctx context.Context, learnerID string) (State, error) {
	var (
		st    State
		found bool
		err   error
	)
	for i := 0; i < maxAttempts; i++ {
		st, found, err = l.read(ctx, learnerID)
		if err != nil {
			return State{}, err
		}
		now := l.now().UTC()

		if !found {
			refillAt := now.Add(l.refill)
			row, err := l.store.Insert(ctx, store.CollectionHearts, store.Record{
				"learner_id": learnerID,
				"remaining":  l.max,
				"refill_at":  refillAt,
				"updated_at": now,
			})
			if errors.Is(err, store.ErrConflict) {
				// A concurrent request created the row; use the winner's.
				continue
			}
			if err != nil {
				return State{}, fmt.Errorf("create hearts of %s: %w", learnerID, err)
			}
			if err := store.Decode(row, &st); err != nil {
				return State{}, err
			}
			return st, nil
		}

		if !l.due(st, now) {
			return st, nil
		}
		row, ok, err := store.CompareAndSwap(ctx, l.store, store.CollectionHearts,
			[]store.Condition{store.Eq("learner_id", learnerID), store.Eq("remaining", st.Remaining)},
			store.Record{"remaining": l.max, "refill_at": nil, "updated_at": now},
		)
		if err != nil {
			return State{}, fmt.Errorf("refill hearts of %s: %w", learnerID, err)
		}
		if ok {
			var refilled State
			if err := store.Decode(row, &refilled); err != nil {
				return State{}, err
			}
			l.logger.DebugContext(ctx, "hearts refilled", "learner_id", learnerID)
			return refilled, nil
		}
	}
	if !found {
		return State{}, fmt.Errorf("hearts of %s neither created nor found", learnerID)
	}
	return st, nil
}

// Consume takes one heart from the state the caller read. Remaining never drops below zero;
// reaching zero schedules the refill. A concurrent change is re-read and re-applied.
func (l *Ledger) Consume(ctx context.Context, learnerID string, current State) (State, error) {
	st := current
	for i := 0; i < maxAttempts; i++ {
		if st.Remaining <= 0 {
			return st, nil
		}
		now := l.now().UTC()
		next := st.Remaining - 1
		patch := store.Record{"remaining": next, "updated_at": now}
		if next == 0 {
			patch["refill_at"] = now.Add(l.refill)
		}

		row, ok, err := store.CompareAndSwap(ctx, l.store, store.CollectionHearts,
			[]store.Condition{store.Eq("learner_id", learnerID), store.Eq("remaining", st.Remaining)},
			patch,
		)
		if err != nil {
			return State{}, fmt.Errorf("consume heart of %s: %w", learnerID, err)
		}
		if ok {
			var consumed State
			if err := store.Decode(row, &consumed); err != nil {
				return State{}, err
			}
			return consumed, nil
		}

		var found bool
		st, found, err = l.read(ctx, learnerID)
		if err != nil {
			return State{}, err
		}
		if !found {
			return State{}, fmt.Errorf("hearts of %s: %w", learnerID, apperr.ErrNotFound)
		}
	}
	return State{}, fmt.Errorf("consume heart of %s: %w", learnerID, apperr.ErrStale)
}

// Status renders st for the learner at the ledger's current time.
func (l *Ledger) Status(st State) Status {
	status := Status{
		Remaining: st.Remaining,
		Max:       l.max,
	}
	if st.Remaining < l.max && st.RefillAt != nil {
		status.RefillAt = st.RefillAt
		wait := st.RefillAt.Sub(l.now())
		if wait > 0 {
			status.SecondsUntilRefill = int64(math.Ceil(wait.Seconds()))
		}
	}
	return status
}
