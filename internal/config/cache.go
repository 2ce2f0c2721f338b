package config

import "time"

// CacheConfig controls the record cache. Per-view TTLs (overdue list,
// categories, statistics) are fixed in the service layer; the default
// covers per-record and list entries.
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    envBool("CACHE_ENABLED", true),
		DefaultTTL: envDur("CACHE_DEFAULT_TTL", 5*time.Minute),
	}
}
