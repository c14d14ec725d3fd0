package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Driver string `yaml:"driver"` // "sqlite" (default)
		DSN    string `yaml:"dsn"`    // "./jitprof.db"
	} `yaml:"database"`

	Analysis struct {
		Traces            []string `yaml:"traces"`              // ["./traces"]
		WarningLimit      int      `yaml:"warning_limit"`       // 30
		DisabledRules     []string `yaml:"disabled_rules"`      // []
		Workers           int      `yaml:"workers"`             // 4
		LocationCacheSize int      `yaml:"location_cache_size"` // 1024
		RulesPack         string   `yaml:"rules_pack"`          // "" (optional YAML rule pack)
	} `yaml:"analysis"`

	Reporting struct {
		OutDir  string   `yaml:"out_dir"` // "./reports"
		Formats []string `yaml:"formats"` // ["json","html","text"]
	} `yaml:"reporting"`

	Logging struct {
		Format string `yaml:"format"` // "json"|"text"|"auto"
		Level  string `yaml:"level"`  // "info"|"debug"|"warn"|"error"
	} `yaml:"logging"`

	Server struct {
		Addr           string        `yaml:"addr"`            // ":8080"
		AllowedOrigins []string      `yaml:"allowed_origins"` // ["http://localhost:5173"]
		SessionTTL     time.Duration `yaml:"session_ttl"`     // 12h
	} `yaml:"server"`
}

func DefaultConfig() Config {
	var c Config
	c.Database.Driver = "sqlite"
	c.Database.DSN = "./jitprof.db"
	c.Analysis.WarningLimit = 30
	c.Analysis.Workers = 4
	c.Analysis.LocationCacheSize = 1024
	c.Reporting.OutDir = "./reports"
	c.Reporting.Formats = []string{"json", "html", "text"}
	c.Logging.Format = "json"
	c.Logging.Level = "info"
	c.Server.Addr = ":8080"
	c.Server.AllowedOrigins = []string{"http://localhost:5173"}
	c.Server.SessionTTL = 12 * time.Hour
	return c
}

// LoadConfig reads defaults, then the YAML file at path (if any), then
// JITPROF_* environment overrides. A .env file in the working directory is
// loaded first and never overrides variables already set.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("load .env: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("JITPROF_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JITPROF_TRACES"); v != "" {
		c.Analysis.Traces = splitList(v)
	}
	if v, ok := envInt("JITPROF_WARNING_LIMIT"); ok {
		c.Analysis.WarningLimit = v
	}
	if v := os.Getenv("JITPROF_DISABLED_RULES"); v != "" {
		c.Analysis.DisabledRules = splitList(v)
	}
	if v := os.Getenv("JITPROF_RULES_PACK"); v != "" {
		c.Analysis.RulesPack = v
	}
	if v, ok := envInt("JITPROF_WORKERS"); ok {
		c.Analysis.Workers = v
	}
	if v := os.Getenv("JITPROF_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("JITPROF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("JITPROF_OUT_DIR"); v != "" {
		c.Reporting.OutDir = v
	}
	if v := os.Getenv("JITPROF_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("JITPROF_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Server.SessionTTL = d
		}
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
