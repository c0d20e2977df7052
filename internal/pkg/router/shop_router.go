package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/overseer-bot/shop/app/controllers"
	"github.com/overseer-bot/shop/internal/pkg/constants"
)

// ShopRouter mounts the checkout, webhook and redirect endpoints under /shop.
type ShopRouter struct {
	controller *controllers.ShopController

	// CheckoutLimit is the number of checkout requests allowed per client per
	// minute. Zero disables the limiter.
	CheckoutLimit int
	// LimiterStorage keeps limiter counters; nil uses fiber's in-memory store.
	LimiterStorage fiber.Storage
}

func NewShopRouter(controller *controllers.ShopController, checkoutLimit int, storage fiber.Storage) *ShopRouter {
	return &ShopRouter{
		controller:     controller,
		CheckoutLimit:  checkoutLimit,
		LimiterStorage: storage,
	}
}

func (h ShopRouter) InstallRouter(app *fiber.App) {
	shop := app.Group(constants.ShopRoute)

	shop.Get("/", h.controller.HandlePing)
	shop.Get(constants.HealthPath, h.controller.HandleHealth)
	shop.Get(constants.SuccessPath, h.controller.HandleSuccess)
	shop.Get(constants.CancelPath, h.controller.HandleCancel)

	// Webhooks are authenticated by signature and must never be throttled
	// away, the processor would keep redelivering.
	shop.Post(constants.WebhookPath, h.controller.HandleWebhook)

	if h.CheckoutLimit > 0 {
		shop.Post(constants.CheckoutPath, h.checkoutLimiter(), h.controller.HandleCheckout)
	} else {
		shop.Post(constants.CheckoutPath, h.controller.HandleCheckout)
	}
}

func (h ShopRouter) checkoutLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        h.CheckoutLimit,
		Expiration: time.Minute,
		Storage:    h.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many checkout requests"})
		},
	})
}
