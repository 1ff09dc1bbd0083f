package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	authcore "github.com/agilepm-dev/authcore"
	"github.com/agilepm-dev/authcore/httpapi"
	promexport "github.com/agilepm-dev/authcore/metrics/export/prometheus"
	"github.com/agilepm-dev/authcore/permission"
	"github.com/agilepm-dev/authcore/redisdir"
)

func main() {
	_ = godotenv.Load()

	logger := httpapi.NewLogger()

	redisURL := mustEnv(logger, "REDIS_URL")
	jwtSecret := mustEnv(logger, "JWT_SECRET")
	port := envOrDefault("PORT", "8080")

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      envOrDefault("APP_ENV", "development"),
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
		}
		defer sentry.Flush(2 * time.Second)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("parse_redis_url_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("ping_redis_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(jwtSecret)
	cfg.Security.MaxLoginAttempts = envIntOrDefault("MAX_LOGIN_ATTEMPTS", cfg.Security.MaxLoginAttempts)
	cfg.Security.SuspiciousWindow = envHoursOrDefault("SUSPICIOUS_WINDOW_HOURS", cfg.Security.SuspiciousWindow)
	cfg.TOTP.Issuer = envOrDefault("TOTP_ISSUER", cfg.TOTP.Issuer)
	cfg.JWT.AccessTTL = envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", cfg.JWT.RefreshTTL)
	cfg.BackupCodes.Validity = envDaysOrDefault("BACKUP_CODE_VALIDITY_DAYS", cfg.BackupCodes.Validity)
	cfg.PasswordReset.TokenTTL = envMinutesOrDefault("RESET_TOKEN_TTL_MINUTES", cfg.PasswordReset.TokenTTL)

	engine, err := authcore.NewBuilder().
		WithConfig(cfg).
		WithRedis(client).
		WithUserDirectory(redisdir.New(client, "usr")).
		WithMailer(logMailer{logger: logger}).
		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		logger.Error("build_engine_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.Router(engine, permission.NewTable(), logger))
	mux.Handle("GET /metrics", promexport.NewExporter(engine).Handler())

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server_start", map[string]any{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", map[string]any{"error": err.Error()})
	}
	logger.Info("server_stopped", nil)
}

// logMailer stands in for a real delivery channel: the reset token lands in
// the structured log. Swap in an SMTP mailer for production.
type logMailer struct {
	logger *httpapi.Logger
}

func (m logMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.logger.Info("password_reset_email", map[string]any{"email": email, "token": token})
	return nil
}

func mustEnv(logger *httpapi.Logger, name string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		logger.Error("missing_required_env", map[string]any{"name": name})
		os.Exit(1)
	}
	return value
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback time.Duration) time.Duration {
	return envDurationOrDefault(name, fallback, time.Minute)
}

func envHoursOrDefault(name string, fallback time.Duration) time.Duration {
	return envDurationOrDefault(name, fallback, time.Hour)
}

func envDaysOrDefault(name string, fallback time.Duration) time.Duration {
	return envDurationOrDefault(name, fallback, 24*time.Hour)
}

func envDurationOrDefault(name string, fallback, unit time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * unit
}
