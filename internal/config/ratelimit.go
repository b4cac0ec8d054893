package config

import (
    "strings"
    "time"
)

// RateLimitConfig tunes the Redis token bucket in front of seat mutations.
// A viewer clicking through seats spends one token per hold or release;
// the bucket refills steadily so a normal selection never hits the limit.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int           // burst size
    RefillTokens   int           // tokens added per RefillInterval
    RefillInterval time.Duration
    TTL            time.Duration // idle bucket lifetime in Redis
    KeyStrategy    string        // ip | user | ip_user | user_route | ip_user_route
    Prefix         string
    // Exempt lists "METHOD /path" routes that are never limited.  Releases
    // are exempt by default: a closing tab beacons all of its holds at once
    // and a rejected beacon leaves the seat blocked until its TTL.
    Exempt map[string]bool
    Debug  bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Out of range values are
// clamped rather than rejected.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 20),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 500*time.Millisecond),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    strings.ToLower(envStr("RATE_LIMIT_KEY_STRATEGY", "user_route")),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Exempt:         parseRoutes(envStr("RATE_LIMIT_EXEMPT", "POST /v1/seats/release, POST /v1/seats/release-all")),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    cfg.Capacity = max(cfg.Capacity, 1)
    cfg.RefillTokens = max(cfg.RefillTokens, 1)
    if cfg.RefillInterval <= 0 {
        cfg.RefillInterval = time.Second
    }
    // A bucket must outlive a few refills or it resets to full too early.
    cfg.TTL = max(cfg.TTL, 5*cfg.RefillInterval)
    return cfg
}

// parseRoutes reads a comma separated list of "METHOD /path" entries.
func parseRoutes(s string) map[string]bool {
    out := map[string]bool{}
    for _, r := range strings.Split(s, ",") {
        f := strings.Fields(r)
        if len(f) != 2 {
            continue
        }
        out[strings.ToUpper(f[0])+" "+f[1]] = true
    }
    return out
}
