// Package v1 registers the v1 API routes
package v1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conflux-chain/cloud-provisioner/internal/api/v1/handlers"
)

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, fleets *handlers.FleetHandler) {
	group := router.Group("/fleets")
	group.Post("/", fleets.CreateFleet)
	group.Get("/", fleets.ListFleets)
	group.Get("/:id", fleets.GetFleet)
}

// Register registers the v1 routes
func Register(app *fiber.App, fleets *handlers.FleetHandler) {
	v1Group := app.Group("/api/v1")
	SetupRoutes(v1Group, fleets)
}
