package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/overseer-bot/shop/app/controllers"
	"github.com/overseer-bot/shop/internal/pkg/billing"
	"github.com/overseer-bot/shop/internal/pkg/billing/memory"
	"github.com/overseer-bot/shop/internal/pkg/cache"
	"github.com/overseer-bot/shop/internal/pkg/constants"
	"github.com/overseer-bot/shop/internal/pkg/database"
	"github.com/overseer-bot/shop/internal/pkg/env"
	"github.com/overseer-bot/shop/internal/pkg/logging"
	"github.com/overseer-bot/shop/internal/pkg/metrics/counter"
	"github.com/overseer-bot/shop/internal/pkg/router"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApplication(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start shop service")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	log.Info().Str("addr", addr).Msg("shop service listening")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shop service stopped")
}

// NewApplication wires configuration, storage and the processor client into
// a fiber app. Background work is bound to ctx.
func NewApplication(ctx context.Context) (*fiber.App, error) {
	env.SetupEnvFile()
	logging.Setup(env.GetEnv("LOG_LEVEL", "info"), env.IsDev())

	cfg := billing.LoadConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	catalog, err := billing.ParseTierCatalog(cfg.Prices)
	if err != nil {
		return nil, fmt.Errorf("STRIPE_PRICES: %w", err)
	}

	repo, err := setupRepository()
	if err != nil {
		return nil, err
	}

	cache.SetupCache()
	var outcomes *counter.Outcomes
	if pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second); cache.Ping(pingCtx) == nil {
		outcomes = counter.NewOutcomes(cache.GetClient())
		cancel()
	} else {
		cancel()
		log.Warn().Msg("webhook outcome counters disabled")
	}

	provider, err := billing.NewStripeProvider(billing.StripeProviderConfig{
		SecretKey: cfg.StripeSecretKey,
		APIURL:    cfg.StripeAPIURL,
	})
	if err != nil {
		return nil, err
	}

	svc := billing.NewService(repo, provider, catalog, cfg.SuccessURL, cfg.CancelURL)
	go billing.RunCorrelationJanitor(ctx, svc, cfg.CorrelationRetention, cfg.PruneInterval)

	ctl := controllers.NewShopController(controllers.ShopControllerConfig{
		Issuer:          svc,
		Reconciler:      billing.NewReconciler(repo, catalog),
		WebhookSecret:   cfg.WebhookSecret,
		SuccessRedirect: env.GetEnv("SUCCESS_REDIRECT_URL", cfg.SuccessURL),
		CancelRedirect:  env.GetEnv("CANCEL_REDIRECT_URL", cfg.CancelURL),
		Database:        repo.Ping,
		Cache:           cache.Ping,
		Outcomes:        outcomes,
	})

	app := fiber.New(fiber.Config{
		AppName:   "overseer-shop",
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	router.InstallRouter(app,
		router.OpsRouter{
			MetricsUser:     env.GetEnv("METRICS_USER", ""),
			MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
			SpecFile:        findSpecFile(),
			Outcomes:        outcomes,
		},
		router.NewShopRouter(ctl, env.GetEnvInt("CHECKOUT_RATE_LIMIT", 10), cache.NewLimiterStorage()),
	)

	return app, nil
}

func setupRepository() (billing.Repository, error) {
	if database.Driver() == database.DriverMemory {
		log.Warn().Msg("DB_DRIVER=memory: ledger is not persisted")
		return memory.New(), nil
	}
	db, err := database.SetupDatabase(database.SettingsFromEnv())
	if err != nil {
		return nil, err
	}
	return billing.NewRepository(db), nil
}

// findSpecFile looks for the OpenAPI document from the working directory
// and from cmd/shop.
func findSpecFile() string {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + constants.DocsSpecFile
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	log.Warn().Str("file", constants.DocsSpecFile).Msg("OpenAPI document not found, docs disabled")
	return ""
}
