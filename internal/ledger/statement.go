package ledger

import (
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// Assemble combines an account's history and its derived figures into a
// statement view-model. Rows are chronological.
func Assemble(
	account domain.Account,
	history domain.TransactionHistory,
	agg domain.PeriodAggregates,
	stats domain.ChannelStats,
	rec domain.Reconciliation,
	generatedAt time.Time,
) *domain.Statement {
	chrono := Chronological(history.Transactions)
	balances := RunningBalances(history.Opening, chrono)

	rows := make([]domain.StatementRow, len(chrono))
	for i, tx := range chrono {
		row := domain.StatementRow{
			Reference:       tx.Reference,
			Type:            tx.Type,
			Purpose:         tx.Purpose,
			Credit:          decimal.Zero,
			Debit:           decimal.Zero,
			Charge:          tx.Charge,
			Balance:         tx.Balance,
			ComputedBalance: balances[i],
		}
		if tx.HasDate() {
			d := tx.Date
			row.Date = &d
		}
		if tx.Type == domain.Credit {
			row.Credit = tx.Amount
		} else {
			row.Debit = tx.Amount
		}
		rows[i] = row
	}

	header := domain.StatementHeader{
		AccountCode:      account.Code,
		AccountName:      account.AccountName,
		AccountNumber:    account.AccountNumber,
		BankName:         account.BankName,
		Opening:          history.Opening,
		Closing:          history.Closing,
		TransactionCount: len(chrono),
		GeneratedAt:      generatedAt,
	}
	header.From, header.To = dateRange(chrono)

	return &domain.Statement{
		Header:         header,
		Summary:        summaryRows(agg),
		Channels:       channelRows(stats),
		Rows:           rows,
		Aggregates:     agg,
		Stats:          stats,
		Reconciliation: rec,
		Warnings:       warnings(account.Code, agg, rec),
	}
}

func summaryRows(agg domain.PeriodAggregates) []domain.SummaryRow {
	rows := make([]domain.SummaryRow, 0, len(domain.Periods))
	for _, p := range domain.Periods {
		t := agg.Get(p)
		rows = append(rows, domain.SummaryRow{
			Period:  p,
			Income:  t.Income,
			Expense: t.Expense,
			Charges: t.Charges,
			Net:     t.Income.Sub(t.Expense).Sub(t.Charges),
		})
	}
	return rows
}

func channelRows(stats domain.ChannelStats) []domain.ChannelRow {
	return []domain.ChannelRow{
		{Channel: domain.Credit, Count: stats.Credit.Count, Amount: stats.Credit.Amount, Percentage: stats.Percentages.Credit},
		{Channel: domain.Debit, Count: stats.Debit.Count, Amount: stats.Debit.Amount, Percentage: stats.Percentages.Debit},
	}
}

func dateRange(chrono []domain.Transaction) (from, to *time.Time) {
	for i := range chrono {
		if !chrono[i].HasDate() {
			continue
		}
		d := chrono[i].Date
		if from == nil {
			from = &d
		}
		to = &d
	}
	return from, to
}

func warnings(accountCode string, agg domain.PeriodAggregates, rec domain.Reconciliation) []string {
	var out []string
	if w := Warning(accountCode, rec); w != nil {
		out = append(out, w.Error())
	}
	if agg.Skipped > 0 {
		out = append(out, "transactions with unreadable dates were left out of the period totals")
	}
	return out
}
