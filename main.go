package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appNotify "github.com/greenloop/recyclemart/internal/application/notify"
	appPickup "github.com/greenloop/recyclemart/internal/application/pickup"
	appPurchase "github.com/greenloop/recyclemart/internal/application/purchase"
	"github.com/greenloop/recyclemart/internal/config"
	domListing "github.com/greenloop/recyclemart/internal/domain/listing"
	domNotification "github.com/greenloop/recyclemart/internal/domain/notification"
	domPickup "github.com/greenloop/recyclemart/internal/domain/pickup"
	domPurchase "github.com/greenloop/recyclemart/internal/domain/purchase"
	domSaga "github.com/greenloop/recyclemart/internal/domain/saga"
	"github.com/greenloop/recyclemart/internal/infrastructure/id"
	"github.com/greenloop/recyclemart/internal/infrastructure/memory"
	"github.com/greenloop/recyclemart/internal/infrastructure/notifier"
	infraobs "github.com/greenloop/recyclemart/internal/infrastructure/observability"
	"github.com/greenloop/recyclemart/internal/infrastructure/observability/oteltrace"
	"github.com/greenloop/recyclemart/internal/infrastructure/observability/prometrics"
	"github.com/greenloop/recyclemart/internal/infrastructure/observability/zaplogger"
	"github.com/greenloop/recyclemart/internal/infrastructure/outbox"
	"github.com/greenloop/recyclemart/internal/infrastructure/paymentsim"
	"github.com/greenloop/recyclemart/internal/infrastructure/sqlite"
	"github.com/greenloop/recyclemart/internal/observability"
	"github.com/greenloop/recyclemart/internal/pkg/logging"
	httppresentation "github.com/greenloop/recyclemart/internal/presentation/http"
)

func main() {
	cfg := config.Load()

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)
	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	appLogger := zaplogger.Wrap(baseLogger)

	registry := prometrics.New(cfg.ServiceName, "")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests:   registry.Counter(string(observability.MUsecaseRequests), "Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests:      registry.Counter(string(observability.MHTTPRequests), "Total number of HTTP requests.", "method", "route", "status"),
		observability.MExternalRequests:  registry.Counter(string(observability.MExternalRequests), "Total number of external collaborator calls.", "peer", "endpoint", "outcome"),
		observability.MSagaCompensations: registry.Counter(string(observability.MSagaCompensations), "Count of saga compensations performed.", "saga"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration:         registry.Histogram(string(observability.MUsecaseDuration), "Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration:     registry.Histogram(string(observability.MHTTPRequestDuration), "Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route", "status"),
		observability.MExternalRequestDuration: registry.Histogram(string(observability.MExternalRequestDuration), "Duration of external collaborator calls in seconds.", prometheus.DefBuckets, "peer", "endpoint"),
	}
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), appLogger, counters, histograms)

	var (
		pickupRepo   domPickup.Repository
		listingRepo  domListing.Repository
		purchaseRepo domPurchase.Repository
		notifRepo    domNotification.Repository
		sagaLog      domSaga.Log
	)
	if cfg.DBPath != "" {
		store, err := sqlite.NewStore(cfg.DBPath)
		if err != nil {
			systemLogger.Fatal("sqlite_open_failed", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		if err := store.InitSchema(); err != nil {
			systemLogger.Fatal("sqlite_schema_failed", zap.Error(err))
		}
		pickupRepo = sqlite.NewPickupRepository(store)
		listingRepo = sqlite.NewListingRepository(store)
		purchaseRepo = sqlite.NewPurchaseRepository(store)
		notifRepo = sqlite.NewNotificationRepository(store)
		sagaLog = sqlite.NewSagaLog(store)
		systemLogger.Info("store_ready", zap.String("db_path", cfg.DBPath))
	} else {
		pickupRepo = memory.NewPickupRepository()
		listingRepo = memory.NewListingRepository()
		purchaseRepo = memory.NewPurchaseRepository()
		notifRepo = memory.NewNotificationRepository()
		sagaLog = memory.NewSagaLog()
		systemLogger.Info("store_ready", zap.String("db_path", "memory"))
	}

	// Dangling intent entries mean a crash hit between a gateway call and its
	// confirming write; surface them for reconciliation before serving.
	if unresolved, err := sagaLog.Unresolved(context.Background()); err != nil {
		systemLogger.Error("saga_recovery_scan_failed", zap.Error(err))
	} else {
		for _, e := range unresolved {
			systemLogger.Warn("saga_unresolved",
				zap.String("saga_id", e.ID),
				zap.String("kind", string(e.Kind)),
				zap.String("entity_id", e.EntityID),
				zap.Time("at", e.At),
			)
		}
	}

	gateway := paymentsim.New()
	gateway.SetSuccessRate(cfg.PaymentSuccessRate)
	idGenerator := id.NewUUIDGenerator()

	bus := outbox.NewBus(appLogger)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	pickupService := appPickup.NewService(pickupRepo, listingRepo, gateway, sagaLog, bus, idGenerator, cfg.PaymentTimeout, tel)
	purchaseService := appPurchase.NewService(listingRepo, purchaseRepo, gateway, sagaLog, bus, idGenerator, cfg.PaymentTimeout, tel)

	dispatcher := notifier.New(notifRepo, idGenerator, appLogger)
	notifyWorker := appNotify.New(bus, dispatcher, tel)
	notifyWorker.Start()

	handler := httppresentation.NewHandler(pickupService, purchaseService, appLogger, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		systemLogger.Info("http_server_start", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
}
