package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finsight/internal/auth"
	"finsight/internal/config"
	"finsight/internal/handlers"
	"finsight/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	if err := bootstrapAdmin(context.Background(), db, cfg); err != nil {
		logger.Error("Failed to bootstrap admin user", "error", err)
		os.Exit(1)
	}

	h := handlers.NewHandlers(db, cfg.TemplateDir, cfg.SecureCookie)
	mux := setupRouter(h, cfg.StaticDir)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	// Periodically drop expired sessions.
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := db.CleanExpiredSessions(cleanupCtx); err != nil {
					logger.Error("Session cleanup failed", "error", err)
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	// Graceful shutdown handling
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting server", "port", cfg.Port, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// setupRouter wires all routes. Dashboard routes require a session; account
// and landing routes do not.
func setupRouter(h *handlers.Handlers, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	requireAuth := func(fn http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(fn)
	}

	mux.HandleFunc("GET /{$}", h.Landing)

	mux.Handle("GET /dashboard/{$}", requireAuth(h.Dashboard))
	mux.Handle("GET /dashboard/add-expense/{$}", requireAuth(h.AddExpenseForm))
	mux.Handle("POST /dashboard/add-expense/{$}", requireAuth(h.AddExpense))
	mux.Handle("GET /dashboard/set-budget/{$}", requireAuth(h.SetBudgetForm))
	mux.Handle("POST /dashboard/set-budget/{$}", requireAuth(h.SetBudget))
	mux.Handle("GET /dashboard/monthly-summary/{$}", requireAuth(h.MonthlySummary))
	mux.Handle("GET /dashboard/export-csv/{$}", requireAuth(h.ExportCSV))
	mux.Handle("GET /dashboard/delete-expense/{id}/{$}", requireAuth(h.DeleteExpenseConfirm))
	mux.Handle("POST /dashboard/delete-expense/{id}/{$}", requireAuth(h.DeleteExpense))
	mux.Handle("POST /dashboard/delete-budget/{id}/{$}", requireAuth(h.DeleteBudget))

	mux.HandleFunc("GET /accounts/login/{$}", h.LoginForm)
	mux.HandleFunc("POST /accounts/login/{$}", h.Login)
	mux.HandleFunc("POST /accounts/logout/{$}", h.Logout)
	mux.HandleFunc("GET /accounts/register/{$}", h.RegisterForm)
	mux.HandleFunc("POST /accounts/register/{$}", h.Register)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	return mux
}

// bootstrapAdmin creates the configured admin account when the user table is
// empty, so a fresh deployment has a way to log in.
func bootstrapAdmin(ctx context.Context, db *storage.DB, cfg *config.Config) error {
	if cfg.AdminUser == "" {
		return nil
	}
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	user, err := db.CreateUser(ctx, cfg.AdminUser, hash)
	if err != nil {
		return err
	}
	slog.Info("Bootstrap user created", "username", user.Username, "id", user.ID)
	return nil
}
