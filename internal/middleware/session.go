package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/authflow/internal/auth"
	"github.com/congo-pay/authflow/internal/identity"
)

const profileTTL = time.Minute

// ProfileCache keeps recently resolved profiles in memory so authenticated
// requests skip the store lookup. Revocation is always checked.
type ProfileCache struct {
	cache *ristretto.Cache[string, identity.Profile]
}

// NewProfileCache builds a bounded in-process profile cache.
func NewProfileCache() (*ProfileCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, identity.Profile]{
		NumCounters: 1e5,
		MaxCost:     1 << 14,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ProfileCache{cache: c}, nil
}

// Get returns a cached profile.
func (p *ProfileCache) Get(userID string) (identity.Profile, bool) {
	if p == nil {
		return identity.Profile{}, false
	}
	return p.cache.Get(userID)
}

// Set stores a profile for a short time.
func (p *ProfileCache) Set(profile identity.Profile) {
	if p == nil {
		return
	}
	p.cache.SetWithTTL(profile.ID, profile, 1, profileTTL)
}

// Close releases the cache goroutines.
func (p *ProfileCache) Close() {
	if p != nil {
		p.cache.Close()
	}
}

// Session requires a valid, unrevoked session token and stores the caller's
// profile under auth.LocalsUser.
func Session(svc *auth.Service, profiles *ProfileCache, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := svc.Authenticate(c.UserContext(), auth.TokenFromRequest(c))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrRevoked) {
				logger.Error("session lookup failed", slog.Any("error", err))
			}
			return fiber.NewError(http.StatusUnauthorized, "User is not authenticated.")
		}

		profile, ok := profiles.Get(claims.Subject)
		if !ok {
			profile, err = svc.Profile(c.UserContext(), claims.Subject)
			if errors.Is(err, identity.ErrUserNotFound) {
				return fiber.NewError(http.StatusUnauthorized, "User is not authenticated.")
			}
			if err != nil {
				return err
			}
			profiles.Set(profile)
		}

		c.Locals(auth.LocalsUser, profile)
		return c.Next()
	}
}
