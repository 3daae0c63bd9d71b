package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/lessonquiz/internal/config"
	"github.com/at-ishikawa/lessonquiz/internal/content"
	"github.com/at-ishikawa/lessonquiz/internal/database"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
	"github.com/at-ishikawa/lessonquiz/internal/store"
	"github.com/at-ishikawa/lessonquiz/internal/store/memstore"
	"github.com/at-ishikawa/lessonquiz/internal/store/reststore"
	"github.com/at-ishikawa/lessonquiz/internal/store/sqlstore"
)

func testConfig(driver string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Driver: driver,
			REST: config.RESTStoreConfig{
				BaseURL: "http://127.0.0.1:54321",
				AnonKey: "anon",
			},
		},
		Quiz:    config.QuizConfig{MaxHearts: 5, HeartRefillHours: 24, DefaultLessonXP: 10},
		Rewards: config.RewardsConfig{Timezone: "UTC"},
	}
}

func TestOpenStores(t *testing.T) {
	tests := []struct {
		name           string
		cfg            func(t *testing.T) *config.Config
		wantLearner    any
		wantPrivileged bool
		wantDB         bool
		wantErr        bool
	}{
		{
			name:        "memory",
			cfg:         func(t *testing.T) *config.Config { return testConfig(config.StoreDriverMemory) },
			wantLearner: &memstore.Store{},
		},
		{
			name:        "rest without a service key",
			cfg:         func(t *testing.T) *config.Config { return testConfig(config.StoreDriverREST) },
			wantLearner: &reststore.Client{},
		},
		{
			name: "rest with a service key",
			cfg: func(t *testing.T) *config.Config {
				cfg := testConfig(config.StoreDriverREST)
				cfg.Store.REST.ServiceKey = "service"
				return cfg
			},
			wantLearner:    &reststore.Client{},
			wantPrivileged: true,
		},
		{
			name: "sqlite",
			cfg: func(t *testing.T) *config.Config {
				cfg := testConfig(config.StoreDriverSQLite)
				cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "quiz.db")
				return cfg
			},
			wantLearner: &sqlstore.Store{},
			wantDB:      true,
		},
		{
			name:    "unknown",
			cfg:     func(t *testing.T) *config.Config { return testConfig("postgres") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stores, err := OpenStores(tt.cfg(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { assert.NoError(t, stores.Close()) }()

			assert.IsType(t, tt.wantLearner, stores.Learner)
			assert.Equal(t, tt.wantPrivileged, stores.Privileged != nil)
			assert.Equal(t, tt.wantDB, stores.DB != nil)
		})
	}
}

func TestNewEngine_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(config.StoreDriverSQLite)
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "quiz.db")

	stores, err := OpenStores(cfg)
	require.NoError(t, err)
	defer func() { _ = stores.Close() }()
	assert.Equal(t, database.DialectSQLite, stores.Dialect)

	applied, err := stores.Migrate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	bundle, err := content.LoadBundle(filepath.Join("..", "content", "testdata", "bundle.yml"))
	require.NoError(t, err)
	_, err = content.Seed(ctx, stores.Learner, bundle, time.Now())
	require.NoError(t, err)

	engine := NewEngine(cfg, stores, prometheus.NewRegistry())
	state, err := engine.GetState(ctx, "learner-1", "lesson-greetings")
	require.NoError(t, err)
	assert.Equal(t, quiz.KindLocked, state.Kind)

	_, err = stores.Learner.Insert(ctx, store.CollectionSectionProgress, store.Record{
		"id":           "progress-2",
		"learner_id":   "learner-1",
		"section_id":   "greetings-practice",
		"completed_at": time.Now(),
	})
	require.NoError(t, err)

	state, err = engine.GetState(ctx, "learner-1", "lesson-greetings")
	require.NoError(t, err)
	assert.Equal(t, quiz.KindInProgress, state.Kind)
	assert.Equal(t, 2, state.QuestionCount)
	assert.Equal(t, 5, state.Hearts.Remaining)
	require.NotNil(t, state.Question)

	again, err := engine.GetState(ctx, "learner-1", "lesson-greetings")
	require.NoError(t, err)
	assert.Equal(t, state.AttemptID, again.AttemptID)
}

func TestStores_MigrateWithoutDatabase(t *testing.T) {
	stores, err := OpenStores(testConfig(config.StoreDriverMemory))
	require.NoError(t, err)
	applied, err := stores.Migrate(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, applied)
}
