package main

import (
	"fmt"
	"strings"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the ledger accounts visible to the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			accounts, err := s.components.Ledger.Accounts(cmd.Context(), s.creds)
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), accounts)
			}
			return renderAccounts(cmd.OutOrStdout(), accounts)
		},
	}
}

func statementCmd() *cobra.Command {
	var showRows bool

	cmd := &cobra.Command{
		Use:   "statement <account-code>",
		Short: "Build the statement for one account",
		Long: `Fetch every transaction page for the account, then print the period
summary, channel breakdown and reconciliation result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			stmt, err := s.components.Ledger.Statement(cmd.Context(), s.creds, args[0], true)
			if err != nil {
				return fmt.Errorf("failed to build statement: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stmt)
			}
			return renderStatement(cmd.OutOrStdout(), stmt, showRows)
		},
	}
	cmd.Flags().BoolVar(&showRows, "rows", false, "also print every transaction row")
	return cmd
}

func dashboardCmd() *cobra.Command {
	var codes string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Aggregate several accounts into one dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			dash, err := s.components.Ledger.Dashboard(cmd.Context(), s.creds, parseCodes(codes))
			if err != nil {
				return fmt.Errorf("failed to build dashboard: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), dash)
			}
			return renderDashboard(cmd.OutOrStdout(), dash)
		},
	}
	cmd.Flags().StringVar(&codes, "accounts", "", "comma-separated account codes (default: all)")
	return cmd
}

func parseCodes(raw string) domain.Scope {
	var codes []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return domain.Scope{AccountCodes: codes}
}
