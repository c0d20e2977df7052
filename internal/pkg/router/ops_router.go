package router

import (
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/rs/zerolog/log"

	"github.com/overseer-bot/shop/internal/pkg/constants"
	"github.com/overseer-bot/shop/internal/pkg/metrics/counter"
)

// OpsRouter serves operator endpoints: fiber metrics and the OpenAPI docs.
type OpsRouter struct {
	MetricsUser     string
	MetricsPassword string
	// SpecFile is the OpenAPI document; empty disables the docs UI.
	SpecFile string
	// Outcomes, when set, is served as JSON next to the fiber monitor.
	Outcomes *counter.Outcomes
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	if h.MetricsUser != "" && h.MetricsPassword != "" {
		auth := basicauth.New(basicauth.Config{
			Users: map[string]string{
				h.MetricsUser: h.MetricsPassword,
			},
		})
		app.Get(constants.MetricsRoute, auth, monitor.New())
		if h.Outcomes != nil {
			app.Get(constants.OutcomesRoute, auth, h.handleOutcomes)
		}
	}

	if h.SpecFile != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsBasePath,
			FilePath: h.SpecFile,
			Path:     constants.DocsVersionID,
		}))
	}
}

func (h OpsRouter) handleOutcomes(c *fiber.Ctx) error {
	snap, err := h.Outcomes.Snapshot(c.UserContext())
	if err != nil {
		log.Warn().Err(err).Msg("could not read webhook outcome counters")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "counters unavailable"})
	}
	return c.JSON(fiber.Map{"webhook_outcomes": snap})
}
