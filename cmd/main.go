package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"canteen-system/internal/auth"
	"canteen-system/internal/cache"
	"canteen-system/internal/config"
	"canteen-system/internal/database"
	"canteen-system/internal/logger"
	"canteen-system/internal/messaging"
	"canteen-system/internal/models"
	"canteen-system/internal/services/menu"
	"canteen-system/internal/services/notification"
	"canteen-system/internal/services/order"
	"canteen-system/internal/services/payment"
	"canteen-system/internal/web"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (order-service, notification-subscriber, issue-token)")
		port       = flag.Int("port", 0, "HTTP port (defaults to server.port from config)")
		configPath = flag.String("config", "config.yaml", "Path to the configuration file")
		prefetch   = flag.Int("prefetch", 10, "RabbitMQ prefetch count")
		userID     = flag.String("user-id", "", "User id for issue-token mode")
		role       = flag.String("role", string(models.RoleUser), "Role for issue-token mode")
		outlets    = flag.String("outlets", "", "Comma-separated outlet ids for issue-token mode")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "order-service":
		log.Info("service_starting", "Starting order service", requestID, map[string]interface{}{
			"port": cfg.Server.Port,
		})
		err = runOrderService(ctx, cfg, log)
	case "notification-subscriber":
		log.Info("service_starting", "Starting notification subscriber", requestID, map[string]interface{}{
			"prefetch": *prefetch,
		})
		err = runNotificationSubscriber(ctx, cfg, log, *prefetch)
	case "issue-token":
		err = issueToken(cfg, *userID, *role, *outlets)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}
	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runOrderService serves ordering, menus and payments over HTTP
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	publisher := messaging.NewPublisher(conn, log)
	defer publisher.Close()
	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	notifier := messaging.NewNotifier(publisher, log, messaging.DefaultNotifierBuffer)
	notifier.Start(context.Background())
	defer notifier.Stop()

	menuCache := cache.NewMenuCache(cfg.Cache.TTL, log)
	menuCache.StartJanitor(ctx, cfg.Cache.SweepInterval)
	defer menuCache.Stop()

	menuStore := database.NewMenuStore(db)
	orderStore := database.NewOrderStore(db)
	outletStore := database.NewOutletStore(db)
	txStore := database.NewTransactionStore(db)

	orders := order.NewService(menuStore, orderStore, outletStore, menuCache, notifier, log)
	menus := menu.NewService(menuStore, outletStore, menuCache, notifier, log)
	payments := payment.NewService(menuStore, outletStore, txStore, orders,
		payment.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.Timeout), cfg.Gateway.Currency, log)

	authn := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	paymentHandler := payment.NewHandler(payments, log, cfg.Server.RequestTimeout)

	r := chi.NewRouter()
	r.Use(web.WithLogging(log))
	r.Get("/health", healthHandler(db, log))
	paymentHandler.GatewayRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware(log))
		order.NewHandler(orders, log, cfg.Server.RequestTimeout).Routes(r)
		menu.NewHandler(menus, log).Routes(r)
		paymentHandler.Routes(r)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("service_started", fmt.Sprintf("Order service started on port %d", cfg.Server.Port), requestID, nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports whether the database answers. Failure details go to the log only.
func healthHandler(db pinger, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			log.Error("health_check_failed", "Database ping failed", logger.RequestIDFrom(r.Context()), err, nil)
			web.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		web.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// runNotificationSubscriber prints canteen events until shutdown
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	consumer := messaging.NewConsumer(conn, log, messaging.NotificationsQueue, "notification-subscriber-"+uuid.NewString()[:8], prefetch)
	return notification.NewSubscriber(consumer, log).Start(ctx)
}

// issueToken prints a bearer token for local testing
func issueToken(cfg *config.Config, rawUserID, rawRole, rawOutlets string) error {
	p := models.Principal{Role: models.Role(rawRole)}

	if rawUserID == "" {
		p.UserID = uuid.New()
	} else {
		id, err := uuid.Parse(rawUserID)
		if err != nil {
			return fmt.Errorf("invalid --user-id: %w", err)
		}
		p.UserID = id
	}

	for _, raw := range strings.Split(rawOutlets, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid outlet id %q: %w", raw, err)
		}
		p.Outlets = append(p.Outlets, id)
	}

	token, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).IssueToken(p)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
