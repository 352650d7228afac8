package config

import (
    "fmt"
    "os"
    "strconv"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// Config holds everything the dashboard runtime needs at startup. Values are
// read from an optional YAML file, then overridden by environment variables
// so container deployments can tweak without shipping a file.
type Config struct {
    ServiceURL  string `yaml:"serviceUrl"`
    RedisURL    string `yaml:"redisUrl"`
    DatabaseURL string `yaml:"databaseUrl"`
    Port        int    `yaml:"port"`

    PollIntervalMs   int `yaml:"pollIntervalMs"`
    RequestTimeoutMs int `yaml:"requestTimeoutMs"`

    Grid GridConfig `yaml:"grid"`
}

// GridConfig describes the logical city grid and the zoom envelope.
type GridConfig struct {
    Cols     int `yaml:"cols"`
    Rows     int `yaml:"rows"`
    CellSize int `yaml:"cellSize"`
    MinZoom  int `yaml:"minZoom"`
    MaxZoom  int `yaml:"maxZoom"`
    ZoomStep int `yaml:"zoomStep"`
}

// Default returns the built-in configuration.
func Default() Config {
    return Config{
        ServiceURL:       "http://localhost:8085",
        Port:             8080,
        PollIntervalMs:   500,
        RequestTimeoutMs: 5000,
        Grid: GridConfig{
            Cols:     70,
            Rows:     50,
            CellSize: 20,
            MinZoom:  25,
            MaxZoom:  300,
            ZoomStep: 25,
        },
    }
}

// Load reads the config file at path (if non-empty and present) and applies
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
    cfg := Default()
    if path != "" {
        data, err := os.ReadFile(path)
        if err != nil {
            if !os.IsNotExist(err) {
                return cfg, fmt.Errorf("read config: %w", err)
            }
        } else if err := yaml.Unmarshal(data, &cfg); err != nil {
            return cfg, fmt.Errorf("parse config: %w", err)
        }
    }
    applyEnv(&cfg)
    if err := cfg.validate(); err != nil {
        return cfg, err
    }
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("SERVICE_URL"); v != "" { cfg.ServiceURL = v }
    if v := os.Getenv("REDIS_URL"); v != "" { cfg.RedisURL = v }
    if v := os.Getenv("DATABASE_URL"); v != "" { cfg.DatabaseURL = v }
    if v := os.Getenv("PORT"); v != "" {
        if n, err := strconv.Atoi(v); err == nil { cfg.Port = n }
    }
    if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { cfg.PollIntervalMs = n }
    }
    if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { cfg.RequestTimeoutMs = n }
    }
}

func (c Config) validate() error {
    if c.ServiceURL == "" {
        return fmt.Errorf("serviceUrl is required")
    }
    if c.Grid.Cols <= 0 || c.Grid.Rows <= 0 || c.Grid.CellSize <= 0 {
        return fmt.Errorf("grid dimensions must be positive")
    }
    if c.Grid.MinZoom <= 0 || c.Grid.MaxZoom < c.Grid.MinZoom {
        return fmt.Errorf("invalid zoom range [%d,%d]", c.Grid.MinZoom, c.Grid.MaxZoom)
    }
    return nil
}

// PollInterval returns the step-loop cadence as a duration.
func (c Config) PollInterval() time.Duration {
    return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RequestTimeout bounds every remote call so a hung connection cannot leave
// playback stuck running.
func (c Config) RequestTimeout() time.Duration {
    return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
