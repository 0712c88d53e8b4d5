package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultAddr = ":8080"

// Config captures the runtime configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Session  SessionConfig
	Costing  CostingConfig
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string
	UseMock         bool
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type LoggingConfig struct {
	Level string
}

// SessionConfig holds the cookie settings of the import session store.
type SessionConfig struct {
	Lifetime     time.Duration
	CookieName   string
	CookieDomain string
	CookieSecure bool
}

// CostingConfig holds the default hourly rates. Parameter rows stored in
// the database take precedence over these values.
type CostingConfig struct {
	LaborRate  float64
	EnergyRate float64
}

// Load reads the environment and an optional recipecost.yaml and builds a Config value.
func Load() (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Addr: firstNonEmpty(v.GetString("server.addr"), defaultAddr),
		},
		Database: DatabaseConfig{
			URL:             strings.TrimSpace(v.GetString("database.url")),
			UseMock:         parseBoolWithDefault(v.GetString("database.use_mock"), false),
			MaxIdleConns:    parseIntWithDefault(v.GetString("database.max_idle_conns"), 0),
			MaxOpenConns:    parseIntWithDefault(v.GetString("database.max_open_conns"), 0),
			ConnMaxLifetime: parseDurationWithDefault(v.GetString("database.conn_max_lifetime"), 0),
			ConnMaxIdleTime: parseDurationWithDefault(v.GetString("database.conn_max_idle_time"), 0),
		},
		Logging: LoggingConfig{
			Level: strings.TrimSpace(v.GetString("logging.level")),
		},
		Session: SessionConfig{
			Lifetime:     parseDurationWithDefault(v.GetString("session.lifetime"), 12*time.Hour),
			CookieName:   firstNonEmpty(v.GetString("session.cookie_name"), "recipecost_session"),
			CookieDomain: strings.TrimSpace(v.GetString("session.cookie_domain")),
			CookieSecure: parseBoolWithDefault(v.GetString("session.cookie_secure"), false),
		},
		Costing: CostingConfig{
			LaborRate:  parseFloatWithDefault(v.GetString("costing.labor_rate"), 0),
			EnergyRate: parseFloatWithDefault(v.GetString("costing.energy_rate"), 0),
		},
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}

	return cfg, nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"server.addr":         {"SERVER_ADDR", "ADDR"},
		"database.url":        {"DATABASE_URL", "DB_URL"},
		"logging.level":       {"LOG_LEVEL", "LOGGING_LEVEL"},
		"costing.labor_rate":  {"COSTING_LABOR_RATE", "RECIPE_LABOR_RATE"},
		"costing.energy_rate": {"COSTING_ENERGY_RATE", "RECIPE_ENERGY_RATE"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path := strings.TrimSpace(os.Getenv("RECIPECOST_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("recipecost")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseFloatWithDefault(value string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}
