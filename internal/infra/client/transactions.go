package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// wireTransaction maps the ledger's transaction JSON.
type wireTransaction struct {
	Reference string          `json:"reference"`
	Date      string          `json:"date"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Charge    decimal.Decimal `json:"charge"`
	Purpose   string          `json:"purpose"`
	Balance   decimal.Decimal `json:"balance"`
}

// transactionPage is one page of GET /accounts/{code}/transactions/.
type transactionPage struct {
	Results struct {
		Opening      decimal.Decimal   `json:"opening"`
		Closing      decimal.Decimal   `json:"closing"`
		Credits      decimal.Decimal   `json:"credits"`
		Debits       decimal.Decimal   `json:"debits"`
		Transactions []wireTransaction `json:"transactions"`
	} `json:"results"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// FetchAllTransactions follows the ledger's pages for one account and
// concatenates them in the order served. Opening and closing come from the
// first page. Pages are fetched strictly one after another.
func (c *LedgerClient) FetchAllTransactions(ctx context.Context, creds domain.Credentials, code string) (*domain.TransactionHistory, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.FetchAllTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("account.code", code))

	history := &domain.TransactionHistory{AccountCode: code}
	first := fmt.Sprintf("%s?limit=%d", c.endpoint("accounts", code, "transactions"), c.pageSize)

	pages, err := c.paginate(ctx, creds, "transactions", "account", code, first, func(body []byte, page int) (string, error) {
		var p transactionPage
		if err := json.Unmarshal(body, &p); err != nil {
			return "", fmt.Errorf("decode transactions page %d: %w", page, err)
		}
		if page == 1 {
			history.Opening = p.Results.Opening
			history.Closing = p.Results.Closing
		}
		for _, wt := range p.Results.Transactions {
			tx, ok := c.toTransaction(code, wt)
			if ok {
				history.Transactions = append(history.Transactions, tx)
			}
		}
		if p.Next == nil {
			return "", nil
		}
		return *p.Next, nil
	})
	history.Pages = pages
	span.SetAttributes(
		attribute.Int("ledger.pages", pages),
		attribute.Int("ledger.transactions", len(history.Transactions)),
	)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	if history.Transactions == nil {
		history.Transactions = []domain.Transaction{}
	}
	return history, nil
}

func (c *LedgerClient) toTransaction(code string, wt wireTransaction) (domain.Transaction, bool) {
	typ, ok := domain.ParseTransactionType(wt.Type)
	if !ok {
		c.logger.Warn("ledger: skipping transaction with unknown type",
			zap.String("account_code", code),
			zap.String("reference", wt.Reference),
			zap.String("type", wt.Type),
		)
		return domain.Transaction{}, false
	}

	tx := domain.Transaction{
		Reference: wt.Reference,
		Type:      typ,
		Amount:    wt.Amount.Abs(),
		Charge:    wt.Charge.Abs(),
		Purpose:   wt.Purpose,
		Balance:   wt.Balance,
	}
	if d, ok := domain.ParseLedgerDate(wt.Date); ok {
		tx.Date = d
	} else {
		c.logger.Debug("ledger: unreadable transaction date",
			zap.String("account_code", code),
			zap.String("reference", wt.Reference),
			zap.String("date", wt.Date),
		)
	}
	return tx, true
}

// pageFunc consumes one page body and returns the raw next link, or ""
// when the traversal is complete.
type pageFunc func(body []byte, page int) (string, error)

// paginate walks a cursor-linked collection starting at first. It stops at
// the configured page cap and on a repeated link, both reported as
// ErrPageLimit. It returns the number of pages read.
func (c *LedgerClient) paginate(ctx context.Context, creds domain.Credentials, op, resource, subject, first string, consume pageFunc) (int, error) {
	seen := map[string]bool{first: true}
	current := first

	for page := 1; ; page++ {
		if page > c.maxPages {
			return page - 1, &domain.ErrPageLimit{
				AccountCode: subject,
				Pages:       page - 1,
				Reason:      "page cap " + strconv.Itoa(c.maxPages) + " reached",
			}
		}

		body, err := c.call(ctx, creds, request{
			op:       op,
			method:   http.MethodGet,
			url:      current,
			resource: resource,
			subject:  subject,
		})
		if err != nil {
			return page - 1, err
		}

		next, err := consume(body, page)
		if err != nil {
			return page, err
		}
		if next == "" {
			c.logger.Debug("ledger: traversal complete",
				zap.String("op", op),
				zap.String("subject", subject),
				zap.Int("pages", page),
			)
			return page, nil
		}

		resolved, err := resolveNext(first, current, next)
		if err != nil {
			return page, fmt.Errorf("resolve next link: %w", err)
		}
		if seen[resolved] {
			return page, &domain.ErrPageLimit{
				AccountCode: subject,
				Pages:       page,
				Reason:      "ledger repeated a page link",
			}
		}
		seen[resolved] = true
		current = resolved
	}
}

// resolveNext turns the ledger's next value into a URL. Absolute URLs are
// followed as-is, paths resolve against the current page, and anything
// else is treated as a bare cursor on the first page's query.
func resolveNext(first, current, next string) (string, error) {
	next = strings.TrimSpace(next)

	u, err := url.Parse(next)
	if err == nil && u.IsAbs() {
		return next, nil
	}
	if err == nil && (strings.HasPrefix(next, "/") || strings.HasPrefix(next, "?")) {
		base, err := url.Parse(current)
		if err != nil {
			return "", err
		}
		return base.ResolveReference(u).String(), nil
	}

	base, err := url.Parse(first)
	if err != nil {
		return "", err
	}
	q := base.Query()
	q.Set("cursor", next)
	base.RawQuery = q.Encode()
	return base.String(), nil
}
