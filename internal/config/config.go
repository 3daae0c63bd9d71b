package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // streak days need zone data on minimal images

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverREST   = "rest"
	StoreDriverMySQL  = "mysql"
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

type ServerConfig struct {
	Port int        `mapstructure:"port" validate:"min=1,max=65535"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Quiz     QuizConfig     `mapstructure:"quiz"`
	Rewards  RewardsConfig  `mapstructure:"rewards"`
}

type StoreConfig struct {
	Driver string          `mapstructure:"driver" validate:"oneof=rest mysql sqlite memory"`
	REST   RESTStoreConfig `mapstructure:"rest"`
	SQLite SQLiteConfig    `mapstructure:"sqlite"`
}

type RESTStoreConfig struct {
	BaseURL          string `mapstructure:"base_url" validate:"omitempty,url"`
	AnonKey          string `mapstructure:"anon_key"`
	ServiceKey       string `mapstructure:"service_key"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds" validate:"min=0"`
	MaxRetryAttempts uint   `mapstructure:"max_retry_attempts"`
}

// Timeout returns the request timeout of the REST store.
func (c RESTStoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type QuizConfig struct {
	MaxHearts        int `mapstructure:"max_hearts" validate:"min=1,max=99"`
	HeartRefillHours int `mapstructure:"heart_refill_hours" validate:"min=1"`
	DefaultLessonXP  int `mapstructure:"default_lesson_xp" validate:"min=0"`
}

// HeartRefill returns the regeneration interval of hearts.
func (c QuizConfig) HeartRefill() time.Duration {
	return time.Duration(c.HeartRefillHours) * time.Hour
}

type RewardsConfig struct {
	Timezone string `mapstructure:"timezone" validate:"timezone"`
}

// Location returns the time zone streak days are counted in.
func (c RewardsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/lessonquiz")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("store.driver", StoreDriverMemory)
	v.SetDefault("store.rest.timeout_seconds", 10)
	v.SetDefault("store.rest.max_retry_attempts", 3)
	v.SetDefault("store.sqlite.path", "lessonquiz.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "local")
	v.SetDefault("database.username", "user")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("quiz.max_hearts", 5)
	v.SetDefault("quiz.heart_refill_hours", 24)
	v.SetDefault("quiz.default_lesson_xp", 10)
	v.SetDefault("rewards.timezone", "UTC")

	// Credentials come from the environment only
	for key, env := range map[string]string{
		"store.rest.anon_key":    "STORE_ANON_KEY",
		"store.rest.service_key": "STORE_SERVICE_KEY",
		"database.password":      "DB_PASSWORD",
		"auth.jwt_secret":        "AUTH_JWT_SECRET",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}
	if cfg.Store.Driver == StoreDriverREST && cfg.Store.REST.BaseURL == "" {
		return nil, fmt.Errorf("invalid configuration: store.rest.base_url is required for the %s driver", StoreDriverREST)
	}

	return &cfg, nil
}
