package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints. Configured
// backends are pinged concurrently; absent ones report "disabled".
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		pgStatus, mongoStatus, redisStatus := "disabled", "disabled", "disabled"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		var g errgroup.Group
		if d.Postgres != nil {
			g.Go(func() error {
				pgStatus = probe(d.Postgres.Ping(ctx))
				return nil
			})
		}
		if d.Mongo != nil {
			g.Go(func() error {
				mongoStatus = probe(d.Mongo.Client().Ping(ctx, nil))
				return nil
			})
		}
		if d.Cache != nil {
			g.Go(func() error {
				redisStatus = probe(d.Cache.Ping(ctx).Err())
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		for _, s := range []string{pgStatus, mongoStatus, redisStatus} {
			if s != "ok" && s != "disabled" {
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": pgStatus, "mongo": mongoStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func probe(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
