package broker

import "github.com/redis/go-redis/v9"

// NewRedisClient builds the client used by WithRedisDedup. Returns nil when
// addr is empty so callers can wire it unconditionally at startup and let the
// Broker fall back to RS-only dedup.
func NewRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}
