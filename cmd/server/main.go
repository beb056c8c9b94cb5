// Command server runs the blood-unit traceability service: a read-heavy
// indexer and marketplace coordinator over an append-only ledger. The
// ledger is the single source of truth; this process holds no
// authoritative state and can be restarted at will.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bloodtrace/internal/audit"
	"bloodtrace/internal/contracts"
	"bloodtrace/internal/inventory"
	invhandler "bloodtrace/internal/inventory/handler"
	"bloodtrace/internal/ledger"
	"bloodtrace/internal/market"
	markethandler "bloodtrace/internal/market/handler"
	"bloodtrace/internal/platform/config"
	"bloodtrace/internal/platform/httpserver"
	"bloodtrace/internal/platform/kafka"
	"bloodtrace/internal/platform/logger"
	"bloodtrace/internal/platform/metrics"
	"bloodtrace/internal/platform/redis"
	"bloodtrace/internal/provenance"
	provhandler "bloodtrace/internal/provenance/handler"
	"bloodtrace/internal/roles"
	roleshandler "bloodtrace/internal/roles/handler"
	"bloodtrace/internal/session"
	httptransport "bloodtrace/internal/transport/http"
	"bloodtrace/pkg/domain"
)

const (
	traceCacheTTL   = 30 * time.Second
	listingCacheTTL = 5 * time.Second
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	gateway := ledger.NewClient(cfg.LedgerURL,
		ledger.WithMetrics(m),
		ledger.WithTimeout(cfg.CallTimeout),
	)
	scanner := ledger.NewScanner(gateway,
		ledger.WithChunkSize(cfg.ScanChunkSize),
		ledger.WithLookback(cfg.ScanLookback),
		ledger.WithDeploymentBlock(cfg.DeploymentBlock),
		ledger.WithScanMetrics(m),
		ledger.WithScanLogger(log),
	)

	tracker := contracts.NewTracker(gateway, cfg.TrackerContract)
	donation := contracts.NewUnitToken(gateway, cfg.DonationContract, domain.TokenClassDonation)
	derivative := contracts.NewUnitToken(gateway, cfg.DerivativeContract, domain.TokenClassDerivative)

	resolver := roles.NewResolver(tracker, scanner, roles.WithLogger(log))
	sessions := session.NewService(gateway, resolver, cfg.ChainID, session.WithLogger(log))

	// Advisory cache: the service runs identically without it.
	cache, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer cache.Close()
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, log)
	if err != nil {
		log.Error("kafka unavailable", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	var auditor *audit.Publisher
	if producer != nil {
		auditor = audit.NewPublisher(256, log)
		worker := audit.NewWorker(audit.NewKafkaSink(producer, cfg.AuditTopic), auditor.Inbox(), log)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit worker stopped", "error", err)
			}
		}()
	}

	indexer := provenance.NewIndexer(tracker, donation, derivative, scanner,
		provenance.WithLogger(log),
		provenance.WithMetrics(m),
		provenance.WithCache(cache, traceCacheTTL),
	)
	coordinator := market.NewCoordinator(tracker, donation, derivative,
		market.WithLogger(log),
		market.WithMetrics(m),
		market.WithAudit(auditor),
		market.WithIndexer(indexer),
		market.WithCache(cache, listingCacheTTL),
	)
	projector := inventory.NewProjector(tracker, donation, derivative, scanner,
		inventory.WithLogger(log),
	)

	identity := cfg.SessionIdentity
	if !identity.IsZero() {
		sess, err := sessions.Connect(ctx, session.StaticSigner{Addr: identity, Chain: cfg.ChainID})
		if err != nil {
			log.Error("session connect failed", "error", err)
			os.Exit(1)
		}
		classified, err := sessions.Classify(ctx, sess.ID)
		if err != nil {
			log.Error("session classification failed", "error", err)
			os.Exit(1)
		}
		log.Info("server session established",
			"identity", identity.Short(),
			"network", classified.Network.Name,
			"role", classified.Classification.Role,
		)
	} else {
		log.Info("no session identity configured, mutating routes disabled")
	}

	router := httptransport.NewRouter(httptransport.Options{
		Logger:   log,
		Identity: identity,
		Health: func(r *http.Request) error {
			_, err := gateway.Height(r.Context())
			return err
		},
	},
		provhandler.New(indexer, log),
		roleshandler.New(resolver, log),
		invhandler.New(projector, log),
		markethandler.New(coordinator, log),
	)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting bloodtrace", "addr", cfg.Addr, "ledger", cfg.LedgerURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("bloodtrace stopped")
}
