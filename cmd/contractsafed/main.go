package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	_ "github.com/lib/pq"          // Postgres driver
	_ "modernc.org/sqlite"         // SQLite driver

	"github.com/airinterface/contract-safe/pkg/capability"
	"github.com/airinterface/contract-safe/pkg/config"
	"github.com/airinterface/contract-safe/pkg/escrow"
	"github.com/airinterface/contract-safe/pkg/event"
	"github.com/airinterface/contract-safe/pkg/httpapi"
	"github.com/airinterface/contract-safe/pkg/ingest"
	"github.com/airinterface/contract-safe/pkg/principal"
	"github.com/airinterface/contract-safe/pkg/sponsor"
	"github.com/airinterface/contract-safe/pkg/task"
	"github.com/airinterface/contract-safe/pkg/webhook"
)

// CapEscrowMutate is the capability recorded for the principal wired as
// the ledger's sole authorized caller.
const CapEscrowMutate = "escrow:mutate"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	admin := principal.Principal(cfg.AdminPrincipal)
	controllerID := principal.Principal(cfg.ControllerPrincipal)
	native := escrow.Asset(cfg.NativeAsset)

	emitter := event.NewWriterEmitter(os.Stdout)

	// Storage: Postgres or SQLite by URL, in-memory when unset.
	var escrowStore escrow.Store = escrow.NewMemoryStore()
	var dedupStore ingest.DedupStore = ingest.NewMemoryDedupStore()
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() { _ = db.Close() }()

		ctx := context.Background()
		sqlEscrow := escrow.NewSQLStore(db)
		if err := sqlEscrow.Init(ctx); err != nil {
			log.Fatalf("Failed to init escrow schema: %v", err)
		}
		sqlDedup := ingest.NewSQLDedupStore(db)
		if err := sqlDedup.Init(ctx); err != nil {
			log.Fatalf("Failed to init notification schema: %v", err)
		}
		escrowStore = sqlEscrow
		dedupStore = sqlDedup
	}

	ledger := escrow.NewLedger(admin, native, escrowStore, emitter)
	controller := task.NewController(controllerID, native, ledger, emitter)
	tracker := buildTracker(cfg, admin, emitter)

	// Bootstrap wiring: the task controller is the sole authorized
	// caller into the ledger, and the grant is recorded in the
	// capability directory.
	directory := capability.NewDirectory(admin)
	if err := directory.Grant(admin, controllerID, CapEscrowMutate); err != nil {
		log.Fatalf("Failed to record controller capability: %v", err)
	}
	if err := ledger.AddAuthorizedCaller(admin, controllerID); err != nil {
		log.Fatalf("Failed to authorize controller: %v", err)
	}

	// Async side: jobs go to Redis when configured, otherwise stay
	// in-process.
	var queue ingest.Queue = ingest.NewMemoryQueue()
	if cfg.RedisURL != "" {
		aq, err := ingest.NewAsynqQueue(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize job queue: %v", err)
		}
		defer func() { _ = aq.Close() }()
		queue = aq
	}
	orch := ingest.NewOrchestrator(dedupStore, queue)
	webhookHandler := webhook.NewHandler(orch, cfg.WebhookSecret)

	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(httpapi.RateLimitMiddleware(10, 20)))
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/webhooks/indexer", webhookHandler.HandleNotification).Methods("POST")
	router.HandleFunc("/tasks/{id}", getTaskHandler(controller)).Methods("GET")
	router.HandleFunc("/tasks/{id}/notifications", historyHandler(orch)).Methods("GET")
	registerSponsorRoutes(router, tracker)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("server exited")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func openDatabase(url string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver = "postgres"
	}
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return db, nil
}

// buildTracker assembles the sponsorship tracker from the policy file
// when configured, falling back to env defaults.
func buildTracker(cfg *config.Config, admin principal.Principal, emitter event.Emitter) *sponsor.Tracker {
	quota := cfg.DailyQuota
	reset := cfg.QuotaResetPeriod
	var policy *config.SponsorPolicy
	if cfg.SponsorPolicyPath != "" {
		p, err := config.LoadSponsorPolicy(cfg.SponsorPolicyPath)
		if err != nil {
			log.Fatalf("Failed to load sponsor policy: %v", err)
		}
		policy = p
		quota = p.DailyQuota
		reset = p.ResetPeriod()
	}

	tracker := sponsor.NewTracker(admin, quota, reset, emitter)
	if policy != nil {
		for _, op := range policy.AllowlistedOps {
			if err := tracker.AddAllowlisted(admin, op); err != nil {
				log.Fatalf("Failed to allowlist %q: %v", op, err)
			}
		}
		if policy.InitialDeposit > 0 {
			if err := tracker.Deposit(admin, policy.InitialDeposit); err != nil {
				log.Fatalf("Failed to fund sponsor deposit: %v", err)
			}
		}
	}
	return tracker
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func getTaskHandler(controller *task.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			httpapi.WriteBadRequest(w, "task id must be an integer")
			return
		}
		t, err := controller.GetTask(id)
		if err != nil {
			httpapi.WriteError(w, http.StatusNotFound, "Not Found", fmt.Sprintf("task %d", id))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(t)
	}
}

func historyHandler(orch *ingest.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			httpapi.WriteBadRequest(w, "task id must be an integer")
			return
		}
		history, err := orch.History(r.Context(), id)
		if err != nil {
			httpapi.WriteInternal(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(history)
	}
}
