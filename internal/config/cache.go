package config

import (
    "strings"
    "time"
)

// CacheConfig tunes the Redis response cache in front of the seat layout
// route.  Layouts only change when the catalog does, so entries can live
// long; seat status is never cached.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool // cacheable request methods
    TTL          time.Duration
    KeyStrategy  string // route (path + params) | route_query
    Prefix       string
    MaxBodyBytes int // larger responses are served but not stored
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
    methods := map[string]bool{}
    for _, m := range strings.Split(envStr("CACHE_METHODS", "GET"), ",") {
        if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
            methods[m] = true
        }
    }
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      methods,
        TTL:          envDur("CACHE_TTL", 10*time.Minute),
        KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", "route")),
        Prefix:       envStr("CACHE_PREFIX", "layout"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 256<<10),
    }
}
