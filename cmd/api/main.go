package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/datapolicy/policyscan/internal/api/handlers"
	"github.com/datapolicy/policyscan/internal/api/router"
	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/validator"
	"github.com/datapolicy/policyscan/internal/repository/postgres"
	"github.com/datapolicy/policyscan/internal/scanner"
	"github.com/datapolicy/policyscan/internal/scheduler"
	"github.com/datapolicy/policyscan/internal/services"
	"github.com/datapolicy/policyscan/internal/targetdb"
	"github.com/datapolicy/policyscan/internal/translator"
	"github.com/datapolicy/policyscan/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	// Internal store for rules, violations, runs and the schedule
	db, err := postgres.New(cfg.Store)
	if err != nil {
		log.ErrorWithErr(err, "Failed to connect to store")
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, migrations.GetFS()); err != nil {
		log.ErrorWithErr(err, "Failed to run migrations")
		os.Exit(1)
	}

	// Customer database the rules are evaluated against
	target, err := targetdb.NewConnector(cfg.Target, cfg.Scan.QueryTimeout, log)
	if err != nil {
		log.ErrorWithErr(err, "Failed to configure target database")
		os.Exit(1)
	}
	defer target.Close()

	ruleRepo := postgres.NewRuleRepository(db)
	violationRepo := postgres.NewViolationRepository(db)
	scanRepo := postgres.NewScanRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)

	translate := translator.NewOpenAI(cfg.Translator, log)
	engine := scanner.NewEngine(ruleRepo, violationRepo, scanRepo, target, translate, cfg.Scan, log)

	ruleService := services.NewRuleService(ruleRepo, log)
	violationService := services.NewViolationService(violationRepo, log)
	scanService := services.NewScanService(engine, scanRepo, log)

	sched := scheduler.New(scanService, scheduleRepo, cfg.Scan, log)
	if err := sched.Start(context.Background()); err != nil {
		log.ErrorWithErr(err, "Failed to start scheduler")
		os.Exit(1)
	}
	defer sched.Stop()

	val := validator.New()
	h := &router.Handlers{
		Health:    handlers.NewHealthHandler(db.DB, log),
		Scan:      handlers.NewScanHandler(scanService, sched, log),
		Schedule:  handlers.NewScheduleHandler(sched, log, val),
		Rule:      handlers.NewRuleHandler(ruleService, log, val),
		Violation: handlers.NewViolationHandler(violationService, log, val),
		Target:    handlers.NewTargetHandler(target, log),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(cfg, log, h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": srv.Addr,
			"env":  cfg.Server.Environment,
		}).Info("Server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.ErrorWithErr(err, "Server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.ErrorWithErr(err, "Forced shutdown")
	}

	log.Info("Server stopped")
}
