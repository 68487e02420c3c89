package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	identityhandler "ncc/internal/identity/handler"
	identityservice "ncc/internal/identity/service"
	"ncc/internal/identity/token"
	"ncc/internal/notify"
	"ncc/internal/platform/config"
	"ncc/internal/platform/httpserver"
	"ncc/internal/platform/logger"
	httpmetrics "ncc/internal/platform/metrics"
	reghandler "ncc/internal/registration/handler"
	regmetrics "ncc/internal/registration/metrics"
	"ncc/internal/registration/reconcile"
	"ncc/internal/registration/store"
	"ncc/internal/registration/verification"
	"ncc/internal/registration/workflow"
	httptransport "ncc/internal/transport/http"
	"ncc/pkg/platform/audit/publisher"
)

const (
	tokenIssuer     = "ncc"
	auditBufferSize = 1024
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run wires the stores, services and transports, then serves until SIGINT or
// SIGTERM. Backends without configuration fall back to in-memory implementations.
func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res resources
	defer res.close(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := httpmetrics.New(reg)
	domainMetrics := regmetrics.New(reg)

	docs, err := openDocuments(ctx, cfg, &res, log)
	if err != nil {
		return err
	}
	blobs, err := openBlobs(ctx, cfg, log)
	if err != nil {
		return err
	}
	sessions, trl, err := openSessions(ctx, cfg, &res, log)
	if err != nil {
		return err
	}
	accounts, auditStore, err := openPostgres(ctx, cfg, &res, log)
	if err != nil {
		return err
	}

	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	res.add("audit", func() error {
		auditPublisher.Close()
		return nil
	})

	profiles := store.NewProfiles(docs.profiles)
	registrations := store.NewRegistrations(docs.registrations)

	identity, err := identityservice.New(accounts, trl,
		token.New(cfg.JWTSigningKey, tokenIssuer, cfg.TokenTTL),
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(auditPublisher),
		identityservice.WithRoleResolver(profiles),
	)
	if err != nil {
		return fmt.Errorf("identity service: %w", err)
	}

	engine, err := reconcile.New(profiles, registrations,
		reconcile.WithLogger(log),
		reconcile.WithAuditPublisher(auditPublisher),
		reconcile.WithMetrics(domainMetrics),
		reconcile.WithEventType(cfg.Registration.EventType),
	)
	if err != nil {
		return fmt.Errorf("reconcile engine: %w", err)
	}

	wf, err := workflow.New(workflow.Deps{
		Reconciler:    engine,
		Profiles:      profiles,
		Registrations: registrations,
		Sessions:      sessions,
		Blobs:         blobs,
		Identity:      identity,
	}, workflow.Config{
		EventType:            cfg.Registration.EventType,
		Fee:                  cfg.Registration.Fee,
		StudentIDBucket:      cfg.Blob.StudentIDBucket,
		PaymentBucket:        cfg.Blob.PaymentBucket,
		MaxUploadBytes:       cfg.Registration.MaxUploadBytes,
		PreviewExpiry:        cfg.Blob.PreviewURLExpiry,
		IdentityPollAttempts: cfg.Registration.IdentityPollAttempts,
		IdentityPollInterval: cfg.Registration.IdentityPollInterval,
	},
		workflow.WithLogger(log),
		workflow.WithAuditPublisher(auditPublisher),
		workflow.WithMetrics(domainMetrics),
	)
	if err != nil {
		return fmt.Errorf("registration workflow: %w", err)
	}

	notifier, err := notify.NewHandler(newMailer(cfg, log),
		notify.WithLogger(log),
		notify.WithEventName(cfg.Registration.EventType),
	)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	bus, err := openEvents(ctx, cfg, notifier, log)
	if err != nil {
		return err
	}
	res.add("events", bus.publisher.Close)

	verifier, err := verification.New(profiles, registrations, auditStore,
		verification.WithLogger(log),
		verification.WithAuditPublisher(auditPublisher),
		verification.WithMetrics(domainMetrics),
		verification.WithEventPublisher(bus.publisher),
	)
	if err != nil {
		return fmt.Errorf("verification service: %w", err)
	}

	if admin := cfg.BootstrapAdmin; admin.Email != "" {
		userID, err := store.SeedAdmin(ctx, identity, profiles, admin.Email, admin.Password, admin.Name)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		log.InfoContext(ctx, "bootstrap admin ready", "user_id", userID)
	}

	handlers := []httptransport.Registrar{
		identityhandler.New(identity, identity, log),
		reghandler.New(wf, engine, verifier, identity, profiles,
			reghandler.WithLogger(log),
			reghandler.WithAdminToken(cfg.AdminToken),
			reghandler.WithMaxUploadBytes(cfg.Registration.MaxUploadBytes),
			reghandler.WithMetrics(httpMetrics),
		),
	}
	if r, ok := blobs.(httptransport.Registrar); ok {
		handlers = append(handlers, r)
	}
	router := httptransport.NewRouter(httptransport.Deps{
		Handlers:     handlers,
		Metrics:      httpMetrics,
		Gatherer:     reg,
		HealthChecks: res.health,
		Logger:       log,
	})
	srv := httpserver.New(cfg.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting ncc registration server",
			"addr", cfg.Addr,
			"events_driver", cfg.Events.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, consumer := range bus.consumers {
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("waiting for in-flight decision events")
	verifier.Wait()
	return err
}
