package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	pendingMarker        = "pending"
	idempotencyTimeout   = 2 * time.Second
)

// replay is what gets stored for a completed request. Headers other than the
// content type are never kept, so cookies cannot leak into a replay.
type replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency replays the stored response of a request that repeats both the
// Idempotency-Key header and the exact body on the same route. Mount it only
// on routes whose responses carry no credentials. Requests without the
// header, and every request when Redis is not configured, pass through.
// Only 2xx responses are stored so a failed attempt can be retried.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(idempotencyKeyHeader)
		if key == "" || cache == nil {
			return c.Next()
		}
		slot := replaySlot(c, key)

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, slot, pendingMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "Idempotency store failure.")
		}
		if !reserved {
			return replayStored(ctx, c, cache, slot, logger)
		}

		if err := c.Next(); err != nil {
			release(cache, slot)
			return err
		}

		res := c.Response()
		if res.StatusCode() < fiber.StatusOK || res.StatusCode() >= fiber.StatusMultipleChoices {
			release(cache, slot)
			return nil
		}

		payload, err := json.Marshal(replay{
			Status:      res.StatusCode(),
			ContentType: string(res.Header.ContentType()),
			Body:        append([]byte(nil), res.Body()...),
		})
		if err == nil {
			err = cache.Set(ctx, slot, payload, ttl).Err()
		}
		if err != nil {
			logger.Warn("idempotent response not stored", slog.Any("error", err))
			release(cache, slot)
		}
		return nil
	}
}

// replaySlot scopes a client key to the route and the request body.
func replaySlot(c *fiber.Ctx, key string) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(c.Method()), []byte(c.Path()), []byte(key), c.Body()} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return idempotencyPrefix + hex.EncodeToString(h.Sum(nil))
}

func replayStored(ctx context.Context, c *fiber.Ctx, cache *redis.Client, slot string, logger *slog.Logger) error {
	raw, err := cache.Get(ctx, slot).Bytes()
	if errors.Is(err, redis.Nil) || string(raw) == pendingMarker {
		return fiber.NewError(fiber.StatusConflict, "Duplicate request currently processing.")
	}
	if err != nil {
		logger.Error("idempotency lookup failed", slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "Idempotency store failure.")
	}

	var stored replay
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.Warn("stored idempotent response unreadable", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "Duplicate request.")
	}
	if stored.ContentType != "" {
		c.Set(fiber.HeaderContentType, stored.ContentType)
	}
	return c.Status(stored.Status).Send(stored.Body)
}

func release(cache *redis.Client, slot string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	cache.Del(ctx, slot)
}
