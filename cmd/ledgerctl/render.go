package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderAccounts(w io.Writer, accounts []domain.Account) error {
	if len(accounts) == 0 {
		_, err := fmt.Fprintln(w, "No accounts found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tNUMBER\tBANK\tBALANCE\tDEFAULT FOR")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Code, a.AccountName, a.AccountNumber, bankLabel(a), a.Balance.StringFixed(2), defaultLabel(a.DefaultFor))
	}
	return tw.Flush()
}

func renderStatement(w io.Writer, stmt *domain.Statement, rows bool) error {
	h := stmt.Header
	fmt.Fprintf(w, "%s  %s (%s)\n", h.AccountCode, h.AccountName, h.AccountNumber)
	fmt.Fprintf(w, "Opening %s  Closing %s  Transactions %d\n\n", h.Opening.StringFixed(2), h.Closing.StringFixed(2), h.TransactionCount)

	if err := renderSummary(w, stmt.Summary, stmt.Channels); err != nil {
		return err
	}
	renderReconciliation(w, stmt.Reconciliation, stmt.Warnings)

	if !rows {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tREFERENCE\tPURPOSE\tCREDIT\tDEBIT\tCHARGE\tBALANCE")
	for _, r := range stmt.Rows {
		date := "-"
		if r.Date != nil {
			date = r.Date.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			date, r.Reference, r.Purpose,
			r.Credit.StringFixed(2), r.Debit.StringFixed(2), r.Charge.StringFixed(2), r.ComputedBalance.StringFixed(2))
	}
	return tw.Flush()
}

func renderDashboard(w io.Writer, dash *domain.Dashboard) error {
	codes := make([]string, 0, len(dash.Accounts))
	for _, a := range dash.Accounts {
		codes = append(codes, a.Code)
	}
	fmt.Fprintf(w, "Accounts: %s\n", strings.Join(codes, ", "))
	fmt.Fprintf(w, "Total balance %s  Opening %s  Closing %s\n\n",
		dash.TotalBalance.StringFixed(2), dash.Opening.StringFixed(2), dash.Closing.StringFixed(2))

	if err := renderSummary(w, dash.Summary, dash.Channels); err != nil {
		return err
	}
	renderReconciliation(w, dash.Reconciliation, dash.Warnings)
	return nil
}

func renderSummary(w io.Writer, summary []domain.SummaryRow, channels []domain.ChannelRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tINCOME\tEXPENSE\tCHARGES\tNET")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.Period, s.Income.StringFixed(2), s.Expense.StringFixed(2), s.Charges.StringFixed(2), s.Net.StringFixed(2))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CHANNEL\tCOUNT\tAMOUNT\tSHARE")
	for _, c := range channels {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f%%\n", c.Channel, c.Count, c.Amount.StringFixed(2), c.Percentage)
	}
	return tw.Flush()
}

func renderReconciliation(w io.Writer, rec domain.Reconciliation, warnings []string) {
	status := "balanced"
	if !rec.Balanced {
		status = "MISMATCH (difference " + rec.Difference.StringFixed(2) + ")"
	}
	fmt.Fprintf(w, "\nReconciliation: computed %s, reported %s, %s\n",
		rec.ComputedClosing.StringFixed(2), rec.ReportedClosing.StringFixed(2), status)
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func bankLabel(a domain.Account) string {
	if a.BankName != "" {
		return a.BankName
	}
	return a.BankCode
}

func defaultLabel(d domain.DefaultFor) string {
	var flags []string
	if d.Giving {
		flags = append(flags, "giving")
	}
	if d.Fund {
		flags = append(flags, "fund")
	}
	if d.Remittance {
		flags = append(flags, "remittance")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
