package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/advisorly/schedcore/internal/booking"
	"github.com/advisorly/schedcore/internal/busy"
	"github.com/advisorly/schedcore/internal/cache"
	"github.com/advisorly/schedcore/internal/calsync"
	"github.com/advisorly/schedcore/internal/consumer"
	"github.com/advisorly/schedcore/internal/dragmap"
	"github.com/advisorly/schedcore/internal/handlers"
	"github.com/advisorly/schedcore/internal/inbox"
	"github.com/advisorly/schedcore/internal/outbox"
	"github.com/advisorly/schedcore/internal/slots"
	"github.com/advisorly/schedcore/internal/storage"
	"github.com/advisorly/schedcore/libs/config"
	"github.com/advisorly/schedcore/libs/db"
	"github.com/advisorly/schedcore/libs/httpx"
	"github.com/advisorly/schedcore/libs/kafkax"
	"github.com/advisorly/schedcore/libs/otelx"
	"github.com/advisorly/schedcore/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	defaults, err := config.LoadEngineDefaults(config.String("ENGINE_DEFAULTS_FILE", ""))
	if err != nil {
		logger.Error("engine defaults load failed", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
	}

	outboxRepo := outbox.NewRepository(pool)
	bookingStore := storage.NewBookingStore(pool, outboxRepo)
	rulesRepo := storage.NewRulesRepository(pool)
	eventTypesRepo := storage.NewEventTypesRepository(pool)
	connectionsRepo := storage.NewConnectionsRepository(pool)
	syncJobsRepo := storage.NewSyncJobsRepository(pool)

	adapter, err := calsync.NewBridgeAdapter(config.String("CALENDAR_BRIDGE_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("calendar bridge init failed; using http adapter", "err", err)
		adapter = nil
	}
	if adapter == nil {
		adapter = calsync.NewHTTPAdapter(nil)
	}

	aggregator := busy.NewAggregator(bookingStore, eventTypesRepo, connectionsRepo, adapter, defaults.PullTimeout(), logger)
	generator := slots.NewGenerator(rulesRepo, eventTypesRepo, aggregator, defaults.Granularity())
	availCache := cache.NewAvailability(rdb, config.Seconds("AVAILABILITY_CACHE_TTL_SECONDS", 30*time.Second), logger)
	bookingSvc := booking.NewService(bookingStore, logger, defaults.SyncMaxAttempts)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	syncWorker := calsync.NewWorker(syncJobsRepo, bookingStore, connectionsRepo, outboxRepo, adapter, logger, calsync.WorkerConfig{
		Interval:  config.Seconds("SYNC_WORKER_INTERVAL_SECONDS", 2*time.Second),
		BatchSize: config.Int("SYNC_WORKER_BATCH", 20),
		Backoff:   defaults.SyncBackoff(),
		OpTimeout: defaults.PushTimeout(),
	})
	go syncWorker.Run(ctx)

	reconciler := calsync.NewReconciler(syncJobsRepo, logger, config.String("RECONCILE_CRON", "*/10 * * * *"))
	cronRunner, err := reconciler.Start(ctx)
	if err != nil {
		logger.Error("reconciler setup failed", "err", err)
		panic(err)
	}
	defer cronRunner.Stop()

	inboxRepo := inbox.NewRepository(pool)
	if eventConsumer := consumer.New(logger, inboxRepo, availCache, consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", service),
	}); eventConsumer != nil {
		go eventConsumer.Run(ctx)
	}

	availabilityHandler := handlers.NewAvailabilityHandler(generator, availCache, logger)
	bookingsHandler := handlers.NewBookingsHandler(bookingSvc, bookingStore, availCache, logger)
	rulesHandler := handlers.NewRulesHandler(rulesRepo, availCache, logger)
	eventTypesHandler := handlers.NewEventTypesHandler(eventTypesRepo, logger)
	connectionHandler := handlers.NewConnectionHandler(connectionsRepo, availCache, logger)
	dragHandler := handlers.NewDragSelectionHandler(dragmap.New(defaults.Granularity(), defaults.MinSlot()))
	timezonesHandler := handlers.NewTimezonesHandler(defaults.Timezones)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/availability", availabilityHandler.Get)
	mux.HandleFunc("/api/v1/bookings", bookingsRouter(bookingsHandler))
	mux.HandleFunc("/api/v1/bookings/cancel", bookingsHandler.Cancel)
	mux.HandleFunc("/api/v1/bookings/reschedule", bookingsHandler.Reschedule)
	mux.HandleFunc("/api/v1/rules", rulesHandler.Handle)
	mux.HandleFunc("/api/v1/event-types", eventTypesHandler.Handle)
	mux.HandleFunc("/api/v1/calendar-connection", connectionHandler.Handle)
	mux.HandleFunc("/api/v1/drag-selection", dragHandler.Map)
	mux.HandleFunc("/api/v1/timezones", timezonesHandler.List)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(30 * time.Second),
	}
	if origins := config.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		middlewares = append(middlewares, httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(origins, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}))
	}
	if limit := config.Int("RATE_LIMIT_PER_MINUTE", 0); limit > 0 {
		if rdb != nil {
			limiter := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, service)
			middlewares = append(middlewares, limiter.Middleware(logger, true))
			logger.Info("rate limiting enabled (redis)", "per_minute", limit)
		} else {
			middlewares = append(middlewares, httpx.NewRateLimiter(limit, time.Minute).Middleware())
			logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
		}
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// bookingsRouter splits the collection endpoint by method: POST creates,
// GET lists.
func bookingsRouter(h *handlers.BookingsHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.Create(w, r)
		case http.MethodGet:
			h.List(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
