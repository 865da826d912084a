package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAccounts(t *testing.T) {
	var buf bytes.Buffer
	err := renderAccounts(&buf, []domain.Account{
		{Code: "CHQ-001", AccountName: "Main", AccountNumber: "0123456789", BankCode: "058",
			Balance: decimal.RequireFromString("1300"), DefaultFor: domain.DefaultFor{Giving: true, Remittance: true}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "CHQ-001")
	assert.Contains(t, out, "1300.00")
	assert.Contains(t, out, "giving,remittance")
}

func TestRenderAccounts_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderAccounts(&buf, nil))
	assert.Equal(t, "No accounts found.\n", buf.String())
}

func TestRenderStatement_Mismatch(t *testing.T) {
	stmt := &domain.Statement{
		Header: domain.StatementHeader{AccountCode: "CHQ-001", AccountName: "Main"},
		Summary: []domain.SummaryRow{
			{Period: domain.PeriodWeekly, Income: decimal.RequireFromString("500"), Expense: decimal.RequireFromString("200"), Net: decimal.RequireFromString("300")},
		},
		Reconciliation: domain.Reconciliation{
			ComputedClosing: decimal.RequireFromString("1300"),
			ReportedClosing: decimal.RequireFromString("1250"),
			Difference:      decimal.RequireFromString("50"),
		},
		Warnings: []string{"closing balance mismatch"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderStatement(&buf, stmt, false))

	out := buf.String()
	assert.Contains(t, out, "weekly")
	assert.Contains(t, out, "MISMATCH (difference 50.00)")
	assert.Contains(t, out, "warning: closing balance mismatch")
}

func TestParseCodes(t *testing.T) {
	assert.True(t, parseCodes("").All())
	assert.Equal(t, []string{"A", "B"}, parseCodes(" A, ,B ").AccountCodes)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "ledgerctl "))
}
