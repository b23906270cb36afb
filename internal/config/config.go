package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:5173"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	ProductCacheTTL time.Duration `envconfig:"PRODUCT_CACHE_TTL" default:"30s"`
	LockTTL         time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	LockWait        time.Duration `envconfig:"LOCK_WAIT" default:"3s"`

	SessionSecret string        `envconfig:"SESSION_SECRET"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	Employees     []string      `envconfig:"EMPLOYEES" default:"abdulrahman,heba,hadeel"`

	ManagerPIN          string `envconfig:"MANAGER_PIN"`
	StrictExchangeStock bool   `envconfig:"STRICT_EXCHANGE_STOCK" default:"false"`
	Timezone            string `envconfig:"TIMEZONE" default:"UTC"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg.SessionSecret = strings.TrimSpace(cfg.SessionSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	employees := make([]string, 0, len(cfg.Employees))
	for _, name := range cfg.Employees {
		if name = strings.TrimSpace(name); name != "" {
			employees = append(employees, name)
		}
	}
	cfg.Employees = employees
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves Timezone; report day boundaries are computed in it.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
