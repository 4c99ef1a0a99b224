package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/insightora-auth/internal/application/device"
	"github.com/insightora-auth/internal/application/otp"
	"github.com/insightora-auth/internal/application/user"
	"github.com/insightora-auth/internal/config"
	"github.com/insightora-auth/internal/infrastructure/dynamo"
)

var jsonOut bool

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Operate the auth service's stores",
	Long: `Administrative commands that act directly on the DynamoDB tables.

Configuration comes from the same environment variables (and .env file)
as the API server.

Examples:
  authctl bootstrap
  authctl sweep
  authctl deactivate-user --email jane@example.com
  authctl activate-user --email jane@example.com
  authctl revoke-devices --email jane@example.com`,
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// stores is the wiring shared by every subcommand.
type stores struct {
	cfg     *config.Config
	client  *dynamodb.Client
	users   *dynamo.UserRepo
	otps    otp.Service
	devices device.Service
}

func connect(ctx context.Context) (*stores, error) {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dynamodb client: %w", err)
	}
	return &stores{
		cfg:    cfg,
		client: client,
		users:  dynamo.NewUserRepo(client, cfg.DynamoTables.Users),
		otps: otp.NewService(otp.ServiceDeps{
			Store:  dynamo.NewOTPRepo(client, cfg.DynamoTables.OneTimeCodes),
			Policy: cfg.OTP,
		}),
		devices: device.NewService(device.ServiceDeps{
			Store:         dynamo.NewTrustedDeviceRepo(client, cfg.DynamoTables.TrustedDevices),
			TrustDuration: cfg.DeviceTrustDuration,
		}),
	}, nil
}

func (s *stores) userService() user.Service {
	return user.NewService(user.ServiceDeps{Users: s.users, Devices: s.devices})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
