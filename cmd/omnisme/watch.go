package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/notify"
)

// newWatchCmd печатает решения по заявкам из Redis в stdout, по одному JSON на строку.
func newWatchCmd() *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream request decisions published by the portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()

			enc := json.NewEncoder(os.Stdout)
			notify.Subscribe(ctx, rdb, logger, func(ev notify.DecisionEvent) {
				if orgID != "" && ev.OrganizationID != orgID {
					return
				}
				if err := enc.Encode(ev); err != nil {
					logger.Error("write event", zap.Error(err))
				}
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "only show decisions of this organization")
	return cmd
}
