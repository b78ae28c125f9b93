package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

const readinessTimeout = 2 * time.Second

// Check probes one dependency of the worker.
type Check func(ctx context.Context) error

// RegisterHealthRoutes mounts /livez, /readyz and, when metrics is not nil, /metrics.
func RegisterHealthRoutes(app fiber.Router, checks map[string]Check, metrics http.Handler) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks))
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler runs every check and reports 503 when any is down.
func ReadyzHandler(checks map[string]Check) fiber.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		results := fiber.Map{}
		ready := true
		for _, name := range names {
			results[name] = "ok"
			if err := checks[name](ctx); err != nil {
				results[name] = "down"
				ready = false
			}
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
