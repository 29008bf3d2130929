package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"pdfmerge/internal/infra/logging"
)

// computeMergeCacheKey derives the cache key from the ordered document
// fingerprint and the output options.
func computeMergeCacheKey(fingerprint string, divider bool) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte(strconv.FormatBool(divider)))
	return "mergecache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedMerge returns the cached PDF for key, or nil on a miss.
func getCachedMerge(c *fiber.Ctx, rdb *redis.Client, key string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, err
	}

	logging.Info("Merge cache hit", "key", key)
	return cached, nil
}

// setCachedMerge stores a merged PDF; failures are only logged.
func setCachedMerge(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
