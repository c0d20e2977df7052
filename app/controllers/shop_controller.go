package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/overseer-bot/shop/internal/pkg/billing"
)

const (
	processorTimeout = 20 * time.Second
	webhookTimeout   = 15 * time.Second
)

// Pinger is a dependency checked by the health endpoint.
type Pinger func(ctx context.Context) error

// OutcomeCounter records the outcome of each reconciled webhook.
type OutcomeCounter interface {
	Add(ctx context.Context, outcome string) error
}

// ShopController serves checkout creation, processor webhooks and the
// browser redirect endpoints. All collaborators are injected.
type ShopController struct {
	issuer        *billing.Service
	reconciler    *billing.Reconciler
	webhookSecret string

	successRedirect string
	cancelRedirect  string

	database Pinger
	cache    Pinger
	outcomes OutcomeCounter
}

// ShopControllerConfig wires a ShopController.
type ShopControllerConfig struct {
	Issuer          *billing.Service
	Reconciler      *billing.Reconciler
	WebhookSecret   string
	SuccessRedirect string
	CancelRedirect  string
	Database        Pinger
	// Cache is optional; a nil cache is reported as disabled.
	Cache    Pinger
	Outcomes OutcomeCounter
}

func NewShopController(cfg ShopControllerConfig) *ShopController {
	return &ShopController{
		issuer:          cfg.Issuer,
		reconciler:      cfg.Reconciler,
		webhookSecret:   cfg.WebhookSecret,
		successRedirect: cfg.SuccessRedirect,
		cancelRedirect:  cfg.CancelRedirect,
		database:        cfg.Database,
		cache:           cfg.Cache,
		outcomes:        cfg.Outcomes,
	}
}

func (sc *ShopController) HandlePing(c *fiber.Ctx) error {
	return c.SendString("Hello, world!")
}

func (sc *ShopController) HandleCheckout(c *fiber.Ctx) error {
	var in billing.CheckoutInput
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		log.Debug().Err(err).Msg("checkout request body is not valid JSON")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), processorTimeout)
	defer cancel()

	redirectURL, err := sc.issuer.CreateCheckout(ctx, in)
	if err != nil {
		return sc.checkoutError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": redirectURL})
}

func (sc *ShopController) checkoutError(c *fiber.Ctx, err error) error {
	var verr *billing.ValidationError
	var perr *billing.ProcessorError
	switch {
	case errors.As(err, &verr):
		log.Debug().Strs("fields", verr.Fields).Msg("checkout request missing required parameter")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Error()})
	case errors.Is(err, billing.ErrInvalidPrice):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid price"})
	case errors.As(err, &perr):
		log.Error().Err(err).Msg("error occurred during checkout creation")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": perr.Error()})
	default:
		log.Error().Err(err).Msg("checkout could not be recorded")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_persist_failed"})
	}
}

func (sc *ShopController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(billing.StripeSignatureHeader))

	event, err := billing.ParseStripeWebhook(rawBody, signature, sc.webhookSecret)
	if err != nil {
		if errors.Is(err, billing.ErrSignatureInvalid) {
			log.Warn().Err(err).Msg("rejected webhook with invalid signature")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid signature"})
		}
		log.Warn().Err(err).Msg("rejected malformed webhook payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payload"})
	}
	log.Debug().Str("event_id", event.ID).Str("type", event.Type).Msg("verified webhook event")

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	outcome, err := sc.reconciler.Reconcile(ctx, event)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}
	if sc.outcomes != nil {
		if err := sc.outcomes.Add(ctx, string(outcome)); err != nil {
			log.Debug().Err(err).Msg("could not count webhook outcome")
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": outcome})
}

func (sc *ShopController) HandleSuccess(c *fiber.Ctx) error {
	return c.Redirect(withSessionID(sc.successRedirect, c.Query("session_id")), fiber.StatusFound)
}

func (sc *ShopController) HandleCancel(c *fiber.Ctx) error {
	return c.Redirect(withSessionID(sc.cancelRedirect, c.Query("session_id")), fiber.StatusFound)
}

func (sc *ShopController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	dbState := "ok"
	if sc.database == nil {
		dbState = "unconfigured"
		status = fiber.StatusServiceUnavailable
	} else if err := sc.database(ctx); err != nil {
		log.Warn().Err(err).Msg("health check: database unavailable")
		dbState = "unavailable"
		status = fiber.StatusServiceUnavailable
	}

	cacheState := "disabled"
	if sc.cache != nil {
		cacheState = "ok"
		if err := sc.cache(ctx); err != nil {
			cacheState = "unavailable"
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"database": dbState,
		"cache":    cacheState,
	})
}

// HandleNotFound answers unmatched routes with a JSON 404.
func HandleNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status_code": fiber.StatusNotFound})
}

func withSessionID(target, sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}
