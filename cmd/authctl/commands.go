package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/insightora-auth/internal/application/housekeeping"
	"github.com/insightora-auth/internal/domain"
	"github.com/insightora-auth/internal/infrastructure/dynamo"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the DynamoDB tables if they don't exist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		dynamo.Bootstrap(cmd.Context(), s.client, s.cfg.DynamoTables)
		fmt.Println("Tables ready")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete used or expired codes and expire stale device trust",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		res, err := housekeeping.NewSweeper(s.otps, s.devices).Sweep(cmd.Context())
		if jsonOut {
			if perr := printJSON(res); perr != nil {
				return perr
			}
			return err
		}
		fmt.Printf("Removed %d codes, expired %d devices\n", res.Codes, res.Devices)
		return err
	},
}

var deactivateUserCmd = &cobra.Command{
	Use:   "deactivate-user",
	Short: "Block an account from logging in and drop its trusted devices",
	Long: `Deactivate an account. Login, login verification and token refresh
fail with ACCOUNT_DEACTIVATED or USER_INACTIVE until the account is
activated again. Access tokens already issued stay valid until expiry.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return setActive(cmd, false)
	},
}

var activateUserCmd = &cobra.Command{
	Use:   "activate-user",
	Short: "Re-enable a deactivated account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return setActive(cmd, true)
	},
}

var revokeDevicesCmd = &cobra.Command{
	Use:   "revoke-devices",
	Short: "Require the login code on every device for an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		n, err := s.userService().RevokeDevices(cmd.Context(), email)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]interface{}{"email": email, "revoked": n})
		}
		fmt.Printf("Revoked %d trusted devices for %s\n", n, email)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{deactivateUserCmd, activateUserCmd, revokeDevicesCmd} {
		c.Flags().String("email", "", "account email")
		_ = c.MarkFlagRequired("email")
	}

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(deactivateUserCmd)
	rootCmd.AddCommand(activateUserCmd)
	rootCmd.AddCommand(revokeDevicesCmd)
}

func setActive(cmd *cobra.Command, active bool) error {
	email, _ := cmd.Flags().GetString("email")
	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	svc := s.userService()

	var p *domain.UserProfile
	if active {
		p, err = svc.Activate(cmd.Context(), email)
	} else {
		p, err = svc.Deactivate(cmd.Context(), email)
	}
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(p)
	}
	state := "active"
	if !p.Active {
		state = "deactivated"
	}
	fmt.Printf("%s (%s) is now %s\n", p.Email, p.UserID, state)
	return nil
}
