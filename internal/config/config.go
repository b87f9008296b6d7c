// Package config loads application configuration from environment variables.
package config

import (
    "log"
    "os"
    "strconv"
    "time"

    "github.com/shopspring/decimal"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env         string
    Port        string
    DBUser      string
    DBPass      string
    DBHost      string
    DBPort      string
    DBName      string
    JWTSecret   string        // optional; a random key is generated when empty
    TokenTTL    time.Duration // TOKEN_TTL, e.g. "24h"
    BcryptCost  int
    NightlyRate decimal.Decimal
    RetryPolicy string // PAYMENT_RETRY_POLICY
    AMQPURL     string // empty disables event publishing
    LogsDir     string // where the payment log consumer writes
    LogLevel    string
    LogFormat   string
    Gateway     GatewayConfig
}

// GatewayConfig tunes the payment gateway simulator.
type GatewayConfig struct {
    MinLatency time.Duration
    MaxLatency time.Duration
    // Seed fixes the random source; zero seeds from the clock.
    Seed int64
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must() and a missing value ends the process.
func Load() Config {
    return Config{
        Env:         envStr("APP_ENV", "dev"),
        Port:        must("APP_PORT"),
        DBUser:      must("DB_USER"),
        DBPass:      os.Getenv("DB_PASS"),
        DBHost:      must("DB_HOST"),
        DBPort:      must("DB_PORT"),
        DBName:      must("DB_NAME"),
        JWTSecret:   os.Getenv("JWT_SECRET"),
        TokenTTL:    envDur("TOKEN_TTL", 24*time.Hour),
        BcryptCost:  envInt("BCRYPT_COST", 10),
        NightlyRate: envDecimal("NIGHTLY_RATE", decimal.NewFromInt(1000)),
        RetryPolicy: envStr("PAYMENT_RETRY_POLICY", "allow_after_failure"),
        AMQPURL:     os.Getenv("RABBITMQ_URL"),
        LogsDir:     envStr("PAYMENT_LOG_DIR", "logs"),
        LogLevel:    envStr("LOG_LEVEL", "info"),
        LogFormat:   envStr("LOG_FORMAT", "json"),
        Gateway:     LoadGatewayConfig(),
    }
}

// LoadGatewayConfig reads the simulator settings.  A maximum below the
// minimum is raised to the minimum.
func LoadGatewayConfig() GatewayConfig {
    g := GatewayConfig{
        MinLatency: envDur("GATEWAY_MIN_LATENCY", time.Second),
        MaxLatency: envDur("GATEWAY_MAX_LATENCY", 3*time.Second),
        Seed:       int64(envInt("GATEWAY_SEED", 0)),
    }
    if g.MinLatency < 0 {
        g.MinLatency = 0
    }
    if g.MaxLatency < g.MinLatency {
        g.MaxLatency = g.MinLatency
    }
    return g
}

// must retrieves the value of a required environment variable.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

func envDecimal(k string, d decimal.Decimal) decimal.Decimal {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    n, err := decimal.NewFromString(v)
    if err != nil || !n.IsPositive() {
        log.Fatalf("invalid decimal for %s: %q", k, v)
    }
    return n
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch v {
    case "1","true","TRUE","True","yes","YES","on","ON": return true
    case "0","false","FALSE","False","no","NO","off","OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
