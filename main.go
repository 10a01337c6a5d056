package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/yeremiapane/kitchen-display/config"
	"github.com/yeremiapane/kitchen-display/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kitchen",
		Short:         "Kitchen order display and order feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newDisplayCmd())
	root.AddCommand(newFeedCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// loadConfig -> baca .env + environment, siapkan logger dan mode gin
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	utils.InitLogger(cfg.LogLevel)
	if cfg.HTTP.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Auth.JWTSecret != "" {
		utils.SetJWTSecret(cfg.Auth.JWTSecret)
	}
	return cfg, nil
}

func newTokenCmd() *cobra.Command {
	var (
		role   string
		userID uint
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for a kitchen role (chef, staff, admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			switch role {
			case "chef", "staff", "admin":
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := utils.GenerateToken(userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "chef", "role claim")
	cmd.Flags().UintVar(&userID, "user-id", 1, "user id claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_TTL)")
	return cmd
}
