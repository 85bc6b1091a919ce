package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ekazakov-source/statka/src/config"
	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/handlers"
	"github.com/ekazakov-source/statka/src/logger"
	"github.com/ekazakov-source/statka/src/models"
	"github.com/ekazakov-source/statka/src/payouts"
	"github.com/ekazakov-source/statka/src/services"
)

var limiter *rate.Limiter

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// seedInitialData matches first-boot behavior: an empty users table gets a
// head admin and a starting EUR rate so the ledger is usable immediately.
func seedInitialData() {
	var count int
	if err := database.DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		logger.L.Error("Failed to count users during seed check", "error", err)
		return
	}
	if count > 0 {
		return
	}

	if _, err := database.DB.Exec(
		"INSERT INTO users (username, role) VALUES (?, ?)", "ADMIN_HEAD", models.RoleAdmin); err != nil {
		logger.L.Error("Failed to seed admin user", "error", err)
		return
	}
	today := time.Now().UTC().Format("2006-01-02")
	if _, err := database.DB.Exec(
		"INSERT OR IGNORE INTO fx_rates (date, from_currency, to_currency, rate) VALUES (?, ?, ?, ?)",
		today, "EUR", models.SettlementCurrency, config.Cfg.FxFallbackRate); err != nil {
		logger.L.Error("Failed to seed initial fx rate", "error", err)
		return
	}
	logger.L.Info("Seeded initial admin user and fx rate", "username", "ADMIN_HEAD", "date", today)
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Statka backend server starting...")

	limiter = rate.NewLimiter(rate.Every(config.Cfg.RateLimitInterval), config.Cfg.RateLimitBurst)

	logger.L.Info("Loading payout reference data...", "path", config.Cfg.PayoutDataPath)
	payoutCfg, err := payouts.Load(config.Cfg.PayoutDataPath)
	if err != nil {
		logger.L.Error("Failed to load payout tables", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	seedInitialData()
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(config.Cfg.ReportCacheExpiration, config.Cfg.ReportCacheCleanup)

	logger.L.Info("Initializing services and handlers...")
	auditService := services.NewAuditService()
	fxService := services.NewFxService(auditService, config.Cfg.FxFallbackRate)
	accountService := services.NewAccountService(auditService, reportCache)
	ledgerService := services.NewLedgerService(payoutCfg, fxService, auditService, reportCache)
	rollupService := services.NewRollupService(reportCache)

	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	rollupHandler := handlers.NewRollupHandler(rollupService)
	accountHandler := handlers.NewAccountHandler(accountService, fxService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/ledger/submit", ledgerHandler.HandleSubmitBatch)
	apiRouter.HandleFunc("GET /api/ledger/locked", ledgerHandler.HandleIsDayLocked)
	apiRouter.HandleFunc("POST /api/ledger/lock", ledgerHandler.HandleLockDay)

	apiRouter.HandleFunc("GET /api/rollup", rollupHandler.HandleQueryRollup)
	apiRouter.HandleFunc("GET /api/export", rollupHandler.HandleExportRaw)

	apiRouter.HandleFunc("GET /api/users", accountHandler.HandleListUsers)
	apiRouter.HandleFunc("POST /api/users", accountHandler.HandleCreateUser)
	apiRouter.HandleFunc("PATCH /api/users", accountHandler.HandleToggleUser)
	apiRouter.HandleFunc("DELETE /api/users", accountHandler.HandleDeleteUser)

	apiRouter.HandleFunc("GET /api/socs", accountHandler.HandleListSocs)
	apiRouter.HandleFunc("POST /api/socs", accountHandler.HandleCreateSoc)
	apiRouter.HandleFunc("PUT /api/socs", accountHandler.HandleUpdateSoc)

	apiRouter.HandleFunc("GET /api/cabinets", accountHandler.HandleListCabinets)
	apiRouter.HandleFunc("POST /api/cabinets", accountHandler.HandleCreateCabinet)
	apiRouter.HandleFunc("PUT /api/cabinets", accountHandler.HandleUpdateCabinet)

	apiRouter.HandleFunc("GET /api/fx", accountHandler.HandleListFxRates)
	apiRouter.HandleFunc("POST /api/fx", accountHandler.HandleSetFxRate)

	rootMux.Handle("/api/", apiRouter)
	rootMux.Handle("/metrics", promhttp.Handler())

	rootMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Statka backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := rateLimitMiddleware(rootMux)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
