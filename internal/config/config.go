package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Env        string           `json:"env"`
	LogLevel   string           `json:"log_level"`
	HTTP       HTTPConfig       `json:"http"`
	DB         DBConfig         `json:"db"`
	Auth       AuthConfig       `json:"auth"`
	Admin      AdminConfig      `json:"admin"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Grading    GradingConfig    `json:"grading"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type HTTPConfig struct {
	Port string `json:"port"`
}

type DBConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"sslmode"`
}

// DSN renders the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret        string `json:"jwt_secret"`
	RefreshSecret    string `json:"refresh_secret"`
	AccessTTLMinutes int    `json:"access_ttl_minutes"`
	RefreshTTLHours  int    `json:"refresh_ttl_hours"`
}

// AccessTTL returns the access token lifetime.
func (c AuthConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

func (c AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLHours) * time.Hour
}

type AdminConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// SchedulingConfig tunes booking serialization.
type SchedulingConfig struct {
	// LockTimeoutMillis bounds how long a request waits for a busy room.
	LockTimeoutMillis int `json:"lock_timeout_ms"`
}

func (c SchedulingConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMillis) * time.Millisecond
}

// GradingConfig controls rubric normalization and aggregation.
type GradingConfig struct {
	// MaxGrade is the top of the grade scale rubric totals are normalized to.
	MaxGrade float64 `json:"max_grade"`
	// Decimals is the rounding precision of rubric totals and final grades.
	Decimals int `json:"decimals"`
	// Workers bounds concurrent per-student computations for a class.
	Workers int `json:"workers"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.HTTP.Port == "" {
		c.HTTP.Port = "8080"
	}
	if c.DB.Host == "" {
		c.DB.Host = "localhost"
	}
	if c.DB.Port == "" {
		c.DB.Port = "5432"
	}
	if c.DB.User == "" {
		c.DB.User = "postgres"
	}
	if c.DB.Password == "" {
		c.DB.Password = "postgres"
	}
	if c.DB.Name == "" {
		c.DB.Name = "simlab_db"
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "supersecret_change_me"
	}
	if c.Auth.RefreshSecret == "" {
		c.Auth.RefreshSecret = c.Auth.JWTSecret + "_refresh"
	}
	if c.Auth.AccessTTLMinutes == 0 {
		c.Auth.AccessTTLMinutes = 60
	}
	if c.Auth.RefreshTTLHours == 0 {
		c.Auth.RefreshTTLHours = 24 * 7
	}
	if c.Admin.Email == "" {
		c.Admin.Email = "admin@example.com"
	}
	if c.Admin.Password == "" {
		c.Admin.Password = "admin123"
	}
	if c.Admin.FullName == "" {
		c.Admin.FullName = "Administrator"
	}
	if c.Scheduling.LockTimeoutMillis == 0 {
		c.Scheduling.LockTimeoutMillis = 2000
	}
	if c.Grading.MaxGrade == 0 {
		c.Grading.MaxGrade = 5
	}
	if c.Grading.Decimals == 0 {
		c.Grading.Decimals = 2
	}
	if c.Grading.Workers == 0 {
		c.Grading.Workers = 8
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Auth.AccessTTLMinutes < 0 || c.Auth.RefreshTTLHours < 0 {
		return fmt.Errorf("auth token lifetimes must not be negative")
	}
	if c.Scheduling.LockTimeoutMillis < 0 {
		return fmt.Errorf("scheduling.lock_timeout_ms must not be negative")
	}
	if c.Grading.MaxGrade <= 0 {
		return fmt.Errorf("grading.max_grade must be positive")
	}
	if c.Grading.Decimals < 0 || c.Grading.Decimals > 6 {
		return fmt.Errorf("grading.decimals must be within 0..6")
	}
	if c.Grading.Workers < 1 {
		return fmt.Errorf("grading.workers must be positive")
	}
	return nil
}

// Load reads the optional config file at path (yaml or json) and applies
// APP_ environment overrides, e.g. APP_DB__HOST overrides db.host.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("APP_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "app_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
