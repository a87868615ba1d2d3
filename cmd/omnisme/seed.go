package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/portal/service"
	"github.com/xela07ax/omnisme/internal/repository/postgres"
)

func newSeedCmd() *cobra.Command {
	var adminPassword, userPassword string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Wipe the database and load the demo organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := postgres.MigrateUp(cfg.Database.URL, logger); err != nil {
				return err
			}
			pool, err := postgres.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			hasher := service.NewHasher(cfg.Auth.BcryptCost)
			adminHash, err := hasher.Hash(adminPassword)
			if err != nil {
				return fmt.Errorf("admin password: %w", err)
			}
			userHash, err := hasher.Hash(userPassword)
			if err != nil {
				return fmt.Errorf("user password: %w", err)
			}

			sum, err := postgres.NewStore(pool).Seed(cmd.Context(), adminHash, userHash)
			if err != nil {
				return err
			}
			logger.Info("demo data seeded",
				zap.String("organization", sum.Organization.Name),
				zap.Int("users", sum.Users),
				zap.Int("software", sum.Software),
				zap.Int("licenses", sum.Licenses),
				zap.Int("requests", sum.Requests))
			logger.Info("demo credentials",
				zap.String("admin", "admin@demo.com / "+adminPassword),
				zap.String("others", "manager@demo.com, john@demo.com, jane@demo.com / "+userPassword))
			return nil
		},
	}
	cmd.Flags().StringVar(&adminPassword, "admin-password", "admin123", "password for admin@demo.com")
	cmd.Flags().StringVar(&userPassword, "user-password", "user1234", "password for the demo users")
	return cmd
}
