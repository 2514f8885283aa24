// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
    "os"
    "strconv"
    "time"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Server struct {
        Addr string `yaml:"addr"`
    } `yaml:"server"`
    Database struct {
        URL string `yaml:"url"`
    } `yaml:"database"`
    Redis struct {
        URL string `yaml:"url"`
    } `yaml:"redis"`
    Optimizer struct {
        URL          string `yaml:"url"`
        PredictorURL string `yaml:"predictor_url"`
        TimeoutSec   int    `yaml:"timeout_sec"`
    } `yaml:"optimizer"`
    Export struct {
        URL        string `yaml:"url"`
        TimeoutSec int    `yaml:"timeout_sec"`
    } `yaml:"export"`
    Tracking struct {
        InactivityMin int `yaml:"inactivity_minutes"`
    } `yaml:"tracking"`
    Webhooks struct {
        MaxAttempts int `yaml:"max_attempts"`
    } `yaml:"webhooks"`
    Log struct {
        Level  string `yaml:"level"`
        Format string `yaml:"format"`
    } `yaml:"log"`
}

// Load reads path (if it exists), then applies env overrides. A missing
// file is not an error: env-only deployments are the common case.
func Load(path string) (Config, error) {
    var c Config
    c.Server.Addr = ":8080"
    c.Optimizer.TimeoutSec = 60
    c.Export.TimeoutSec = 30
    c.Tracking.InactivityMin = 15
    c.Webhooks.MaxAttempts = 10
    c.Log.Level = "info"
    c.Log.Format = "json"

    if path != "" {
        b, err := os.ReadFile(path)
        if err == nil {
            if err := yaml.Unmarshal(b, &c); err != nil {
                return Config{}, err
            }
        } else if !os.IsNotExist(err) {
            return Config{}, err
        }
    }

    if v := os.Getenv("PORT"); v != "" {
        c.Server.Addr = ":" + v
    }
    if v := os.Getenv("DATABASE_URL"); v != "" {
        c.Database.URL = v
    }
    if v := os.Getenv("REDIS_URL"); v != "" {
        c.Redis.URL = v
    }
    if v := os.Getenv("OPTIMIZER_URL"); v != "" {
        c.Optimizer.URL = v
    }
    if v := os.Getenv("PREDICTOR_URL"); v != "" {
        c.Optimizer.PredictorURL = v
    }
    if v := os.Getenv("EXPORT_URL"); v != "" {
        c.Export.URL = v
    }
    if v := os.Getenv("TRACKING_INACTIVITY_MIN"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            c.Tracking.InactivityMin = n
        }
    }
    if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            c.Webhooks.MaxAttempts = n
        }
    }
    if v := os.Getenv("LOG_LEVEL"); v != "" {
        c.Log.Level = v
    }
    if v := os.Getenv("LOG_FORMAT"); v != "" {
        c.Log.Format = v
    }
    return c, nil
}

func (c Config) OptimizerTimeout() time.Duration { return time.Duration(c.Optimizer.TimeoutSec) * time.Second }
func (c Config) ExportTimeout() time.Duration    { return time.Duration(c.Export.TimeoutSec) * time.Second }
func (c Config) TrackingInactivity() time.Duration {
    return time.Duration(c.Tracking.InactivityMin) * time.Minute
}
