package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/expass/internal/config"
	"github.com/jwalitptl/expass/internal/repository/postgres"
	"github.com/jwalitptl/expass/internal/service/credential"
	"github.com/jwalitptl/expass/internal/service/expiration"
	"github.com/jwalitptl/expass/internal/service/policy"
	"github.com/jwalitptl/expass/pkg/logger"
)

var verdictCmd = &cobra.Command{
	Use:   "verdict <user-id>",
	Short: "Print the password expiration verdict for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		base := postgres.NewBaseRepository(db)
		log := logger.NewLogger(&logger.Config{
			Level:  logger.WarnLevel,
			Output: cmd.ErrOrStderr(),
		})
		policySvc := policy.NewService(postgres.NewPolicyRepository(base), postgres.NewRoleRepository(base), policy.Config{
			DefaultLimit:  policy.StaticDefault(cfg.Policy.DefaultLimitDays),
			ProtectedRole: cfg.Policy.ProtectedRole,
		}, log, nil, nil)
		engine := expiration.NewEngine(
			postgres.NewUserRepository(base),
			policySvc,
			credential.NewService(postgres.NewCredentialRepository(base), time.Now),
			cfg.Policy.Location(),
			time.Now,
			nil,
		)

		verdict, err := engine.Evaluate(cmd.Context(), userID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	},
}

func init() {
	rootCmd.AddCommand(verdictCmd)
}
