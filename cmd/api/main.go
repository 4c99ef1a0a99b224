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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"github.com/insightora-auth/internal/application/auth"
	"github.com/insightora-auth/internal/application/device"
	"github.com/insightora-auth/internal/application/housekeeping"
	"github.com/insightora-auth/internal/application/notify"
	"github.com/insightora-auth/internal/application/otp"
	"github.com/insightora-auth/internal/application/session"
	"github.com/insightora-auth/internal/config"
	"github.com/insightora-auth/internal/infrastructure/dynamo"
	jwtinfra "github.com/insightora-auth/internal/infrastructure/jwt"
	"github.com/insightora-auth/internal/infrastructure/redis"
	"github.com/insightora-auth/internal/infrastructure/smtp"
	"github.com/insightora-auth/internal/infrastructure/sns"
	"github.com/insightora-auth/internal/pkg/password"
	transporthttp "github.com/insightora-auth/internal/transport/http"
	"github.com/insightora-auth/internal/transport/http/handler"
	appmiddleware "github.com/insightora-auth/internal/transport/http/middleware"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("dynamodb client: %w", err)
	}
	// Creates the tables if they don't exist.
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	users := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	codes := dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OneTimeCodes)
	devices := dynamo.NewTrustedDeviceRepo(dynamoClient, cfg.DynamoTables.TrustedDevices)

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	mailer, err := newMailer(ctx, cfg)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(mailer, cfg.NotifyTimeout)

	otpSvc := otp.NewService(otp.ServiceDeps{Store: codes, Policy: cfg.OTP})
	deviceSvc := device.NewService(device.ServiceDeps{Store: devices, TrustDuration: cfg.DeviceTrustDuration})
	authSvc := auth.NewService(auth.ServiceDeps{
		Users:             users,
		OTP:               otpSvc,
		Devices:           deviceSvc,
		Sessions:          session.NewService(session.ServiceDeps{Tokens: tokens, Users: users}),
		Hasher:            password.NewBcrypt(),
		Notifier:          dispatcher,
		OTPTTL:            cfg.OTP.TTL,
		PasswordMinLength: cfg.PasswordMinLength,
		LogCodes:          cfg.IsDevelopment(),
	})

	checks := map[string]handler.Check{
		"dynamodb": func(ctx context.Context) error {
			_, err := dynamoClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.DynamoTables.Users)})
			return err
		},
	}

	var limit func(http.Handler) http.Handler
	if cfg.RedisAddr != "" {
		rdb, err := redis.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limit = appmiddleware.NewSharedRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute).Limit
		checks["redis"] = rdb.Ping
	} else {
		limit = appmiddleware.PerMinute(ctx, cfg.RateLimitPerMinute).Limit
	}

	go housekeeping.NewSweeper(otpSvc, deviceSvc).Run(ctx, cfg.HousekeepingInterval)

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Auth:         authSvc,
		Tokens:       tokens,
		RateLimit:    limit,
		HealthChecks: checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "notifier", cfg.NotifierBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	dispatcher.Wait()
	slog.Info("server stopped")
	return nil
}

func newMailer(ctx context.Context, cfg *config.Config) (notify.Mailer, error) {
	switch cfg.NotifierBackend {
	case "sns":
		m, err := sns.NewTopicMailer(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("sns notifier: %w", err)
		}
		return m, nil
	case "smtp", "":
		return smtp.NewMailer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown NOTIFIER_BACKEND %q", cfg.NotifierBackend)
	}
}
