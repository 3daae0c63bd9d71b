// Package reward grants lesson completion rewards exactly once per learner and lesson.
package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/at-ishikawa/lessonquiz/internal/store"
)

//go:generate mockgen -source=reward.go -destination=../mocks/reward/mock_reward.go -package=mock_reward

const (
	dateLayout  = "2006-01-02"
	maxAttempts = 3
)

// Granter grants the reward of a lesson the first time a learner passes it.
type Granter interface {
	GrantIfFirstPass(ctx context.Context, learnerID, lessonID string, xp int, badge string) (Result, error)
}

// Result describes what a grant changed. Granted is false when the reward had already been granted.
type Result struct {
	Granted      bool `json:"granted"`
	XP           int  `json:"xp"`
	Streak       int  `json:"streak"`
	BadgeAwarded bool `json:"badge_awarded"`
}

type Profile struct {
	ID               string   `json:"id"`
	XP               int      `json:"xp"`
	Streak           int      `json:"streak"`
	LastActivityDate *string  `json:"last_activity_date"`
	Revision         int      `json:"revision"`
	RewardedLessons  []string `json:"rewarded_lessons"`
}

// StoreGranter implements Granter on a store.Store. Rows the learner's credential may not
// write are written through the privileged store instead.
type StoreGranter struct {
	store      store.Store
	privileged store.Store
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*StoreGranter)

func WithPrivilegedStore(s store.Store) Option { return func(g *StoreGranter) { g.privileged = s } }

func WithLocation(loc *time.Location) Option { return func(g *StoreGranter) { g.location = loc } }

func WithClock(now func() time.Time) Option { return func(g *StoreGranter) { g.now = now } }

func WithLogger(logger *slog.Logger) Option { return func(g *StoreGranter) { g.logger = logger } }

func NewGranter(s store.Store, opts ...Option) *StoreGranter {
	g := &StoreGranter{
		store:    s,
		location: time.UTC,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GrantIfFirstPass records the reward row keyed by (learner, lesson) and applies it to the profile.
// The profile lists the lessons it was credited for and changes under a revision check, so
// crediting is idempotent. applied_at is set last and only marks the grant as finished, which
// lets a call after any earlier failure finish the grant without adding XP twice.
func (g *StoreGranter) GrantIfFirstPass(ctx context.Context, learnerID, lessonID string, xp int, badge string) (Result, error) {
	now := g.now().UTC()
	var badgeValue any
	if badge != "" {
		badgeValue = badge
	}
	err := g.write(ctx, store.CollectionRewards, learnerID, func(s store.Store) error {
		_, err := s.Insert(ctx, store.CollectionRewards, store.Record{
			"id":         uuid.NewString(),
			"learner_id": learnerID,
			"lesson_id":  lessonID,
			"xp":         xp,
			"badge":      badgeValue,
			"granted_at": now,
			"applied_at": nil,
		})
		return err
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return Result{}, fmt.Errorf("insert reward of %s/%s: %w", learnerID, lessonID, err)
	}

	var finished bool
	err = g.write(ctx, store.CollectionRewards, learnerID, func(s store.Store) error {
		row, ok, err := store.FindOne(ctx, s, store.CollectionRewards, store.Where(
			store.Eq("learner_id", learnerID),
			store.Eq("lesson_id", lessonID),
		))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reward of %s/%s not found after insert", learnerID, lessonID)
		}
		finished = row["applied_at"] != nil
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("find reward of %s/%s: %w", learnerID, lessonID, err)
	}
	if finished {
		g.logger.DebugContext(ctx, "reward already granted",
			"learner_id", learnerID,
			"lesson_id", lessonID)
		return Result{}, nil
	}

	var (
		profile  Profile
		credited bool
	)
	err = g.write(ctx, store.CollectionProfiles, learnerID, func(s store.Store) error {
		var err error
		profile, credited, err = g.applyToProfile(ctx, s, learnerID, lessonID, xp, now)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	var result Result
	if credited {
		result = Result{Granted: true, XP: profile.XP, Streak: profile.Streak}
	}

	if badge != "" {
		err := g.write(ctx, store.CollectionAchievements, learnerID, func(s store.Store) error {
			_, err := s.Insert(ctx, store.CollectionAchievements, store.Record{
				"id":         uuid.NewString(),
				"learner_id": learnerID,
				"badge":      badge,
				"lesson_id":  lessonID,
				"awarded_at": now,
			})
			return err
		})
		switch {
		case err == nil:
			result.BadgeAwarded = true
		case errors.Is(err, store.ErrConflict):
		default:
			return result, fmt.Errorf("award badge %s to %s: %w", badge, learnerID, err)
		}
	}

	err = g.write(ctx, store.CollectionRewards, learnerID, func(s store.Store) error {
		_, _, err := store.CompareAndSwap(ctx, s, store.CollectionRewards,
			[]store.Condition{
				store.Eq("learner_id", learnerID),
				store.Eq("lesson_id", lessonID),
				store.IsNull("applied_at"),
			},
			store.Record{"applied_at": now},
		)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("mark reward of %s/%s applied: %w", learnerID, lessonID, err)
	}

	if !credited {
		g.logger.DebugContext(ctx, "reward finished without new XP",
			"learner_id", learnerID,
			"lesson_id", lessonID)
		return result, nil
	}
	g.logger.InfoContext(ctx, "reward granted",
		"learner_id", learnerID,
		"lesson_id", lessonID,
		"xp", xp,
		"streak", result.Streak,
		"badge", badge)
	return result, nil
}

// write runs fn against the learner's store and repeats it against the privileged store when
// the learner's credential is denied.
func (g *StoreGranter) write(ctx context.Context, collection, learnerID string, fn func(s store.Store) error) error {
	err := fn(g.store)
	if err == nil || !errors.Is(err, store.ErrPermissionDenied) || g.privileged == nil {
		return err
	}

	g.logger.WarnContext(ctx, "write denied, retrying with privileged credentials",
		"collection", collection,
		"learner_id", learnerID,
		"error", err)
	return fn(g.privileged)
}

// applyToProfile adds xp and advances the daily streak unless the profile was already credited
// for the lesson. credited=false means an earlier or concurrent grant did it. Another grant
// changing the profile first is re-read and re-applied.
func (g *StoreGranter) applyToProfile(ctx context.Context, s store.Store, learnerID, lessonID string, xp int, now time.Time) (Profile, bool, error) {
	today := now.In(g.location).Format(dateLayout)
	yesterday := now.In(g.location).AddDate(0, 0, -1).Format(dateLayout)

	for i := 0; i < maxAttempts; i++ {
		row, ok, err := store.FindOne(ctx, s, store.CollectionProfiles, store.Where(store.Eq("id", learnerID)))
		if err != nil {
			return Profile{}, false, fmt.Errorf("find profile %s: %w", learnerID, err)
		}

		if !ok {
			created, err := s.Insert(ctx, store.CollectionProfiles, store.Record{
				"id":                 learnerID,
				"xp":                 xp,
				"streak":             1,
				"last_activity_date": today,
				"revision":           1,
				"rewarded_lessons":   []string{lessonID},
				"updated_at":         now,
			})
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return Profile{}, false, fmt.Errorf("create profile %s: %w", learnerID, err)
			}
			profile, err := decodeProfile(created)
			return profile, err == nil, err
		}

		profile, err := decodeProfile(row)
		if err != nil {
			return Profile{}, false, err
		}
		if slices.Contains(profile.RewardedLessons, lessonID) {
			return profile, false, nil
		}

		streak := NextStreak(profile.Streak, profile.LastActivityDate, today, yesterday)
		updated, ok, err := store.CompareAndSwap(ctx, s, store.CollectionProfiles,
			[]store.Condition{store.Eq("id", learnerID), store.Eq("revision", profile.Revision)},
			store.Record{
				"xp":                 profile.XP + xp,
				"streak":             streak,
				"last_activity_date": today,
				"revision":           profile.Revision + 1,
				"rewarded_lessons":   append(slices.Clone(profile.RewardedLessons), lessonID),
				"updated_at":         now,
			},
		)
		if err != nil {
			return Profile{}, false, fmt.Errorf("update profile %s: %w", learnerID, err)
		}
		if ok {
			profile, err := decodeProfile(updated)
			return profile, err == nil, err
		}
	}
	return Profile{}, false, fmt.Errorf("update profile %s: changed concurrently %d times", learnerID, maxAttempts)
}

// NextStreak keeps the streak for activity earlier today, extends it after activity yesterday
// and restarts it otherwise.
func NextStreak(streak int, lastActivity *string, today, yesterday string) int {
	switch {
	case lastActivity != nil && *lastActivity == today:
		if streak < 1 {
			return 1
		}
		return streak
	case lastActivity != nil && *lastActivity == yesterday:
		return streak + 1
	}
	return 1
}

func decodeProfile(row store.Record) (Profile, error) {
	var p Profile
	if err := store.Decode(row, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}
