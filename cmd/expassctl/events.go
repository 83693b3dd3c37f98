package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/expass/internal/config"
	"github.com/jwalitptl/expass/pkg/logger"
	"github.com/jwalitptl/expass/pkg/messaging"
	"github.com/jwalitptl/expass/pkg/messaging/redis"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow password policy events as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := redis.NewClient(redis.Config{URL: cfg.Redis.URL})
		if err != nil {
			return err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		log := logger.NewLogger(&logger.Config{Level: logger.WarnLevel, Output: cmd.ErrOrStderr()})
		broker := redis.NewRedisBroker(client, &log.ZL, nil)
		defer broker.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		err = messaging.Consume(ctx, broker, cfg.Events.Channel, func(msg messaging.Message) error {
			return enc.Encode(msg)
		}, func(err error) {
			log.Warn("skipping event", "error", err.Error())
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
