// Package app assembles the quiz engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/at-ishikawa/lessonquiz/internal/attempt"
	"github.com/at-ishikawa/lessonquiz/internal/config"
	"github.com/at-ishikawa/lessonquiz/internal/content"
	"github.com/at-ishikawa/lessonquiz/internal/database"
	"github.com/at-ishikawa/lessonquiz/internal/grading"
	"github.com/at-ishikawa/lessonquiz/internal/hearts"
	"github.com/at-ishikawa/lessonquiz/internal/identity"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
	"github.com/at-ishikawa/lessonquiz/internal/reward"
	"github.com/at-ishikawa/lessonquiz/internal/store"
	"github.com/at-ishikawa/lessonquiz/internal/store/memstore"
	"github.com/at-ishikawa/lessonquiz/internal/store/reststore"
	"github.com/at-ishikawa/lessonquiz/internal/store/sqlstore"
	"github.com/at-ishikawa/lessonquiz/schemas"
)

// Stores are the persistence handles selected by store.driver.
type Stores struct {
	// Learner acts with the caller's credential.
	Learner store.Store
	// Privileged may write what the learner's credential cannot. Nil when the backend has no such split.
	Privileged store.Store
	// DB is set for the SQL drivers.
	DB      *sqlx.DB
	Dialect database.Dialect

	closers []func() error
}

// Close releases every connection the stores hold.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Migrate applies the embedded schema. The REST and memory drivers have nothing to migrate.
func (s *Stores) Migrate(ctx context.Context) ([]string, error) {
	if s.DB == nil {
		return nil, nil
	}
	applied, err := database.Migrate(ctx, s.DB, schemas.FS, schemas.Dir(string(s.Dialect)))
	if err != nil {
		return nil, fmt.Errorf("database.Migrate() > %w", err)
	}
	return applied, nil
}

// OpenStores opens the store configured by cfg.Store.Driver.
func OpenStores(cfg *config.Config) (*Stores, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		return &Stores{Learner: memstore.New(nil)}, nil

	case config.StoreDriverREST:
		rest := cfg.Store.REST
		learner := reststore.NewClient(reststore.Config{
			BaseURL:          rest.BaseURL,
			APIKey:           rest.AnonKey,
			Timeout:          rest.Timeout(),
			MaxRetryAttempts: rest.MaxRetryAttempts,
		}, reststore.WithTokenFunc(identity.TokenFromContext))
		stores := &Stores{Learner: learner, closers: []func() error{learner.Close}}
		if rest.ServiceKey != "" {
			privileged := reststore.NewClient(reststore.Config{
				BaseURL:          rest.BaseURL,
				APIKey:           rest.ServiceKey,
				Timeout:          rest.Timeout(),
				MaxRetryAttempts: rest.MaxRetryAttempts,
			})
			stores.Privileged = privileged
			stores.closers = append(stores.closers, privileged.Close)
		} else {
			slog.Default().Warn("store.rest.service_key is not set; rewards denied to the learner will fail")
		}
		return stores, nil

	case config.StoreDriverMySQL:
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database.Open() > %w", err)
		}
		return sqlStores(db, database.DialectMySQL), nil

	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(cfg.Store.SQLite)
		if err != nil {
			return nil, fmt.Errorf("database.OpenSQLite() > %w", err)
		}
		return sqlStores(db, database.DialectSQLite), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func sqlStores(db *sqlx.DB, dialect database.Dialect) *Stores {
	return &Stores{
		Learner: sqlstore.New(db, dialect, nil),
		DB:      db,
		Dialect: dialect,
		closers: []func() error{db.Close},
	}
}

// NewEngine wires the quiz engine over stores. A nil reg leaves the engine metrics unregistered.
func NewEngine(cfg *config.Config, stores *Stores, reg prometheus.Registerer) *quiz.Engine {
	ledger := hearts.NewLedger(stores.Learner,
		hearts.WithMax(cfg.Quiz.MaxHearts),
		hearts.WithRefill(cfg.Quiz.HeartRefill()),
	)
	rewardOpts := []reward.Option{reward.WithLocation(cfg.Rewards.Location())}
	if stores.Privileged != nil {
		rewardOpts = append(rewardOpts, reward.WithPrivilegedStore(stores.Privileged))
	}

	return quiz.NewEngine(
		content.NewStoreReader(stores.Learner),
		grading.DefaultRegistry(),
		ledger,
		attempt.NewRepository(stores.Learner),
		reward.NewGranter(stores.Learner, rewardOpts...),
		quiz.WithMetrics(quiz.NewMetrics(reg)),
		quiz.WithDefaultXP(cfg.Quiz.DefaultLessonXP),
	)
}
