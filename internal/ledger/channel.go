package ledger

import (
	"math"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// ComputeStats tallies credit and debit transactions.
//
// Percentages are shares of the transaction count, not of value, rounded
// half-to-even to one decimal so the two channels always sum to 100.
// An empty input yields 0% for both channels.
func ComputeStats(txs []domain.Transaction) domain.ChannelStats {
	stats := domain.ChannelStats{
		Credit: domain.ChannelCount{Amount: decimal.Zero},
		Debit:  domain.ChannelCount{Amount: decimal.Zero},
	}

	for _, tx := range txs {
		switch tx.Type {
		case domain.Credit:
			stats.Credit.Count++
			stats.Credit.Amount = stats.Credit.Amount.Add(tx.Amount)
		case domain.Debit:
			stats.Debit.Count++
			stats.Debit.Amount = stats.Debit.Amount.Add(tx.Amount)
		}
	}

	total := stats.Total()
	stats.Percentages = domain.ChannelPercentages{
		Credit: percentage(stats.Credit.Count, total),
		Debit:  percentage(stats.Debit.Count, total),
	}
	return stats
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.RoundToEven(1000*float64(count)/float64(total)) / 10
}
