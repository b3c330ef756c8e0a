package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/card-payments/internal/config"
	"github.com/Dan9191/card-payments/internal/integrations/gateway"
	"github.com/Dan9191/card-payments/internal/middleware"
	"github.com/Dan9191/card-payments/internal/models"
	"github.com/Dan9191/card-payments/internal/repository"
	"github.com/Dan9191/card-payments/internal/scheduler"
	"github.com/Dan9191/card-payments/internal/service"
	"github.com/Dan9191/card-payments/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the payments schema and tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.EnsureSchema(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func processCmd() *cobra.Command {
	var (
		number, name, expiry, cvv, amount, description string
		dryRun                                         bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a single card transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}

			key, err := utils.ParseKey(cfg.EncryptionKey)
			if err != nil {
				return fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
			}
			cipher, err := utils.NewCipher(key)
			if err != nil {
				return err
			}

			var cards service.CardStore
			var txLog service.TransactionLog
			if dryRun {
				mem := repository.NewMemory()
				cards, txLog = mem, mem
			} else {
				db, err := openDB(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				repo := repository.NewRepository(db)
				cards, txLog = repo, repo
			}

			var authorizer service.Authorizer = gateway.NewSimulated(cfg.DeclinedCards, cfg.GatewayLatency, logger)
			if cfg.GatewayMode == config.GatewaySOAP {
				authorizer = gateway.NewSOAPClient(cfg.GatewayURL, cfg.GatewayTimeout, logger)
			}

			svc := service.NewService(cards, txLog, authorizer, cipher, logger, service.Options{GatewayTimeout: cfg.GatewayTimeout})
			card := models.CardDetails{CardNumber: number, CardholderName: name, ExpiryDate: expiry, CVV: cvv}

			result, err := svc.ProcessTransaction(cmd.Context(), card, value, description)
			if result != nil {
				out, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			var invalid *service.InvalidCardError
			if errors.As(err, &invalid) {
				return fmt.Errorf("card rejected: %s check failed", invalid.Reason)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&number, "card", "4111111111111111", "Card number")
	cmd.Flags().StringVar(&name, "name", "John Doe", "Cardholder name")
	cmd.Flags().StringVar(&expiry, "expiry", utils.GenerateExpiryDate(time.Now(), 2), "Expiry date (MM/YY)")
	cmd.Flags().StringVar(&cvv, "cvv", "123", "Card verification value")
	cmd.Flags().StringVar(&amount, "amount", "99.99", "Amount to charge")
	cmd.Flags().StringVar(&description, "description", "Online Purchase", "Transaction description")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use in-memory storage instead of the database")

	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Log the transaction summary for the previous UTC day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			reporter := scheduler.NewReporter(repository.NewRepository(db), nil, newLogger(cfg))
			summary, err := reporter.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(summary, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue an API bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			token, err := middleware.SignToken(cfg.JWTSecret, args[0], jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
