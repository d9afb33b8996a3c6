package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vestlabs/vesting-service/internal/auth"
	"github.com/vestlabs/vesting-service/internal/config"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/observability"
	"github.com/vestlabs/vesting-service/internal/persistence"
	"github.com/vestlabs/vesting-service/internal/schedule"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vestingctl",
		Short:         "Operator tooling for the vesting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTokenCmd(), newScheduleCmd(), newMigrateCmd())
	return root
}

func newTokenCmd() *cobra.Command {
	var (
		identity string
		operator bool
		secret   string
		ttl      int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
				if ttl <= 0 {
					ttl = cfg.Auth.AccessTokenTTLMinutes
				}
			}
			var role *domain.Role
			if operator {
				r := domain.RoleOperator
				role = &r
			}
			token, expiresAt, err := auth.NewTokenManager(secret, ttl).GenerateToken(domain.Identity(identity), role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "identity the token is issued to")
	cmd.Flags().BoolVar(&operator, "operator", false, "grant the OPERATOR role")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to AUTH_JWT_SECRET)")
	cmd.Flags().IntVar(&ttl, "ttl-minutes", 0, "token lifetime in minutes")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var (
		start, cliff, end int64
		total             string
		at                []int64
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview the releasable amount of a schedule at given times",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := schedule.Validate(start, cliff, end); err != nil {
				return err
			}
			amount, err := domain.ParseAmount(total)
			if err != nil {
				return err
			}
			if len(at) == 0 {
				at = []int64{start, cliff, start + (end-start)/2, end}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tVESTED")
			for _, now := range at {
				fmt.Fprintf(w, "%d\t%s\n", now, domain.FormatAmount(schedule.Releasable(now, start, cliff, end, amount)))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&start, "start", 0, "vesting start (unix seconds)")
	cmd.Flags().Int64Var(&cliff, "cliff", 0, "cliff time (unix seconds)")
	cmd.Flags().Int64Var(&end, "end", 0, "vesting end (unix seconds)")
	cmd.Flags().StringVar(&total, "total", "", "total amount in base units")
	cmd.Flags().Int64SliceVar(&at, "at", nil, "evaluation times; defaults to start, cliff, midpoint and end")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the configured store and apply its schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			store, closeStore, err := persistence.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := store.Ping(cmd.Context()); err != nil {
				return err
			}
			logger.Info("store ready", zap.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}
