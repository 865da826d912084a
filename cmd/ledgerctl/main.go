package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/boddenberg/church-ledger-bfa-go/internal/app"
	"github.com/boddenberg/church-ledger-bfa-go/internal/config"
	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"

	token    string
	logLevel string
	asJSON   bool

	rootCmd = &cobra.Command{
		Use:   "ledgerctl",
		Short: "Read church ledger statements from the command line",
		Long: `ledgerctl fetches accounts and transaction history from the church ledger
API and prints the same statements and dashboards the BFA serves.

Configuration comes from the environment (and .env), as for the server.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("LEDGER_TOKEN"), "bearer token for the ledger API (default $LEDGER_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")

	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(statementCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is what every command needs to talk to the ledger.
type session struct {
	components *app.Components
	creds      domain.Credentials
	logger     *zap.Logger
}

func newSession() (*session, error) {
	if token == "" {
		return nil, errors.New("a ledger token is required: pass --token or set LEDGER_TOKEN")
	}
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	logger := observability.NewLogger(logLevel)
	components := app.Build(cfg, observability.NewMetrics(), logger)
	return &session{
		components: components,
		creds:      domain.Credentials{Token: token, SessionID: "ledgerctl"},
		logger:     logger,
	}, nil
}

func (s *session) close() {
	if err := s.components.Close(); err != nil {
		s.logger.Warn("failed to close cache", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ledgerctl", version)
		},
	}
}
