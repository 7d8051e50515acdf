package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pantrylink/pantrylink-backend/api/routes"
	"github.com/pantrylink/pantrylink-backend/internal/agencies"
	"github.com/pantrylink/pantrylink-backend/internal/audit"
	"github.com/pantrylink/pantrylink-backend/internal/auth"
	"github.com/pantrylink/pantrylink-backend/internal/centers"
	"github.com/pantrylink/pantrylink-backend/internal/clients"
	"github.com/pantrylink/pantrylink-backend/internal/organizations"
	"github.com/pantrylink/pantrylink-backend/internal/sessions"
	subscriptionsvc "github.com/pantrylink/pantrylink-backend/internal/subscriptions"
	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/internal/users"
	"github.com/pantrylink/pantrylink-backend/internal/vouchers"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
	"github.com/pantrylink/pantrylink-backend/pkg/metrics"
	"github.com/pantrylink/pantrylink-backend/pkg/migrate"
	"github.com/pantrylink/pantrylink-backend/pkg/redis"
	"github.com/pantrylink/pantrylink-backend/pkg/stripe"
)

const webhookDedupTTL = 48 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(registry)
	voucherMetrics := metrics.NewVoucherMetrics(registry)

	runner, err := tenancy.NewRunner(dbClient.DB())
	if err != nil {
		fatal(logg, "failed to create scope runner", err)
	}
	tenantRepo, err := tenancy.NewRepository(runner)
	if err != nil {
		fatal(logg, "failed to create tenant repository", err)
	}
	resolver, err := tenancy.NewResolver(tenantRepo, cfg.Tenancy)
	if err != nil {
		fatal(logg, "failed to create tenant resolver", err)
	}

	sessionStore, err := sessions.NewStore(runner, cfg.Session)
	if err != nil {
		fatal(logg, "failed to create session store", err)
	}
	trail, err := audit.NewRecorder(runner, logg)
	if err != nil {
		fatal(logg, "failed to create audit recorder", err)
	}

	plans := subscriptionsvc.NewPlanRepository(dbClient.DB())
	gate, err := subscriptionsvc.NewGate(plans, cfg.FeatureFlags.EnforceSubscriptions)
	if err != nil {
		fatal(logg, "failed to create subscription gate", err)
	}

	usersRepo := users.NewRepository()
	orgRepo := organizations.NewRepository()
	agenciesRepo := agencies.NewRepository()
	centersRepo := centers.NewRepository()
	clientsRepo := clients.NewRepository()
	vouchersRepo := vouchers.NewRepository()

	authService, err := auth.NewService(auth.ServiceParams{
		Runner:    runner,
		Users:     usersRepo,
		Sessions:  sessionStore,
		Limiter:   redisClient,
		Log:       logg,
		RateLimit: cfg.AuthRateLimit,
	})
	if err != nil {
		fatal(logg, "failed to create auth service", err)
	}

	userService, err := users.NewService(users.ServiceParams{
		Runner:   runner,
		Repo:     usersRepo,
		Gate:     gate,
		Sessions: sessionStore,
		Trail:    trail,
		Password: cfg.Password,
	})
	if err != nil {
		fatal(logg, "failed to create user service", err)
	}

	orgService, err := organizations.NewService(organizations.ServiceParams{
		Runner:   runner,
		Tenants:  orgRepo,
		Users:    usersRepo,
		Plans:    plans,
		Trail:    trail,
		Password: cfg.Password,
	})
	if err != nil {
		fatal(logg, "failed to create organization service", err)
	}

	agencyService, err := agencies.NewService(runner, agenciesRepo, gate, trail)
	if err != nil {
		fatal(logg, "failed to create agency service", err)
	}
	centerService, err := centers.NewService(runner, centersRepo, trail)
	if err != nil {
		fatal(logg, "failed to create center service", err)
	}
	clientService, err := clients.NewService(runner, clientsRepo, trail)
	if err != nil {
		fatal(logg, "failed to create client service", err)
	}

	voucherService, err := vouchers.NewService(vouchers.ServiceParams{
		Runner:  runner,
		Repo:    vouchersRepo,
		Clients: clientsRepo,
		Centers: centersRepo,
		Gate:    gate,
		Trail:   trail,
		Metrics: voucherMetrics,
		Config:  cfg.Vouchers,
	})
	if err != nil {
		fatal(logg, "failed to create voucher service", err)
	}

	params := routes.RouterParams{
		Config:   cfg,
		Log:      logg,
		DB:       dbClient,
		Redis:    redisClient,
		Registry: registry,

		Resolver:    resolver,
		Sessions:    sessionStore,
		HTTPMetrics: httpMetrics,

		AuthService:         authService,
		UserService:         userService,
		OrganizationService: orgService,
		AgencyService:       agencyService,
		CenterService:       centerService,
		ClientService:       clientService,
		VoucherService:      voucherService,
		Plans:               plans,
	}

	// Stripe is optional: without credentials the platform runs with
	// unenforced billing and no webhook endpoint.
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			fatal(logg, "failed to initialize stripe", err)
		}
		webhookSvc, err := subscriptionsvc.NewWebhookService(subscriptionsvc.WebhookServiceParams{
			Tenants: orgRepo,
			Plans:   plans,
			Runner:  runner,
		})
		if err != nil {
			fatal(logg, "failed to create stripe webhook service", err)
		}
		webhookGuard, err := subscriptionsvc.NewIdempotencyGuard(redisClient, webhookDedupTTL, "stripe")
		if err != nil {
			fatal(logg, "failed to create webhook idempotency guard", err)
		}
		params.StripeClient = stripeClient
		params.WebhookSvc = webhookSvc
		params.WebhookGuard = webhookGuard
	} else {
		logg.Warn(context.Background(), "stripe credentials absent, billing webhooks disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
