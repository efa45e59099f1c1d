package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/loreguard/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey derives a stable key from the parts that determine a model reply.
// Parts are length-prefixed so that ("ab","c") and ("a","bc") differ.
func CacheKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		var size [8]byte
		n := uint64(len(part))
		for i := range size {
			size[i] = byte(n >> (8 * i))
		}
		h.Write(size[:])
		h.Write([]byte(part))
	}
	return "loreguard:v1:" + hex.EncodeToString(h.Sum(nil))
}

// FromConfig builds the layered reply cache, or returns nil when caching is disabled
func FromConfig(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	return NewLayeredCache(
		time.Duration(cfg.MemoryTTLMins)*time.Minute,
		cfg.Dir,
		time.Duration(cfg.DiskTTLHours)*time.Hour,
	)
}
