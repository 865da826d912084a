package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// wireAccount maps the ledger's account JSON. Default flags arrive either
// nested under default_for or as top-level for_* booleans.
type wireAccount struct {
	Code          string             `json:"code"`
	AccountNumber string             `json:"account_number"`
	AccountName   string             `json:"account_name"`
	BankName      string             `json:"bank_name"`
	BankCode      string             `json:"bank_code"`
	Balance       decimal.Decimal    `json:"balance"`
	IsDefault     bool               `json:"is_default"`
	DefaultFor    *domain.DefaultFor `json:"default_for"`
	ForGiving     bool               `json:"for_giving"`
	ForFund       bool               `json:"for_fund"`
	ForRemittance bool               `json:"for_remittance"`
}

func (w wireAccount) toDomain() domain.Account {
	flags := domain.DefaultFor{Giving: w.ForGiving, Fund: w.ForFund, Remittance: w.ForRemittance}
	if w.DefaultFor != nil {
		flags = *w.DefaultFor
	}
	return domain.Account{
		Code:          w.Code,
		AccountNumber: w.AccountNumber,
		AccountName:   w.AccountName,
		BankName:      w.BankName,
		BankCode:      w.BankCode,
		Balance:       w.Balance,
		IsDefault:     w.IsDefault,
		DefaultFor:    flags,
	}
}

type accountPage struct {
	Results []wireAccount `json:"results"`
	Next    *string       `json:"next"`
}

// ListAccounts returns every account visible to the credentials.
func (c *LedgerClient) ListAccounts(ctx context.Context, creds domain.Credentials) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.ListAccounts")
	defer span.End()

	accounts := []domain.Account{}
	first := fmt.Sprintf("%s?limit=%d", c.endpoint("accounts"), c.pageSize)

	_, err := c.paginate(ctx, creds, "list_accounts", "accounts", "accounts", first, func(body []byte, page int) (string, error) {
		// Some deployments return a bare array instead of a page envelope.
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
			var list []wireAccount
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return "", fmt.Errorf("decode accounts: %w", err)
			}
			for _, w := range list {
				accounts = append(accounts, w.toDomain())
			}
			return "", nil
		}

		var p accountPage
		if err := json.Unmarshal(body, &p); err != nil {
			return "", fmt.Errorf("decode accounts page %d: %w", page, err)
		}
		for _, w := range p.Results {
			accounts = append(accounts, w.toDomain())
		}
		if p.Next == nil {
			return "", nil
		}
		return *p.Next, nil
	})
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("ledger.accounts", len(accounts)))
	return accounts, nil
}

// GetAccount fetches a single account.
func (c *LedgerClient) GetAccount(ctx context.Context, creds domain.Credentials, code string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.code", code))

	body, err := c.call(ctx, creds, request{
		op:       "get_account",
		method:   http.MethodGet,
		url:      c.endpoint("accounts", code),
		resource: "account",
		subject:  code,
	})
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return decodeAccount(body, code)
}

// VerifyBank resolves an account number at a bank. Any rejection from the
// resolver is reported as ErrVerificationFailed so the user can correct
// the details.
func (c *LedgerClient) VerifyBank(ctx context.Context, creds domain.Credentials, accountNumber, bankCode string) (*domain.BankVerification, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.VerifyBank")
	defer span.End()
	span.SetAttributes(attribute.String("bank.code", bankCode))

	body, err := c.call(ctx, creds, request{
		op:     "verify_bank",
		method: http.MethodPost,
		url:    c.endpoint("banks", "verify"),
		body: map[string]string{
			"account_number": accountNumber,
			"bank_code":      bankCode,
		},
		resource: "bank account",
		subject:  accountNumber,
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		var validation *domain.ErrValidation
		switch {
		case errors.As(err, &notFound):
			err = &domain.ErrVerificationFailed{AccountNumber: accountNumber, BankCode: bankCode}
		case errors.As(err, &validation):
			err = &domain.ErrVerificationFailed{AccountNumber: accountNumber, BankCode: bankCode, Message: validation.Error()}
		}
		failSpan(span, err)
		return nil, err
	}

	var out struct {
		AccountName string `json:"account_name"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode bank verification: %w", err)
	}
	if out.AccountName == "" {
		return nil, &domain.ErrVerificationFailed{AccountNumber: accountNumber, BankCode: bankCode, Message: "resolver returned no account name"}
	}

	return &domain.BankVerification{
		AccountNumber: accountNumber,
		BankCode:      bankCode,
		AccountName:   out.AccountName,
	}, nil
}

// CreateAccount registers a verified bank account.
func (c *LedgerClient) CreateAccount(ctx context.Context, creds domain.Credentials, m *domain.CreateAccount) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.CreateAccount")
	defer span.End()

	body, err := c.call(ctx, creds, request{
		op:     "create_account",
		method: http.MethodPost,
		url:    c.endpoint("accounts", "create"),
		body: map[string]any{
			"account_number": m.AccountNumber,
			"bank_code":      m.BankCode,
			"for_giving":     m.Defaults.Giving,
			"for_fund":       m.Defaults.Fund,
			"for_remittance": m.Defaults.Remittance,
		},
		resource: "account",
		subject:  m.AccountNumber,
	})
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return decodeAccount(body, "")
}

// UpdateAccount sends a partial update with only the fields that changed.
func (c *LedgerClient) UpdateAccount(ctx context.Context, creds domain.Credentials, m *domain.UpdateAccount) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.UpdateAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.code", m.Code))

	payload := map[string]string{}
	if m.AccountNumber != "" {
		payload["account_number"] = m.AccountNumber
	}
	if m.BankCode != "" {
		payload["bank_code"] = m.BankCode
	}

	body, err := c.call(ctx, creds, request{
		op:       "update_account",
		method:   http.MethodPut,
		url:      c.endpoint("accounts", m.Code),
		body:     payload,
		resource: "account",
		subject:  m.Code,
	})
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return decodeAccount(body, m.Code)
}

// MakeDefault commits all three default flags in a single request.
func (c *LedgerClient) MakeDefault(ctx context.Context, creds domain.Credentials, m *domain.MakeDefault) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.MakeDefault")
	defer span.End()
	span.SetAttributes(attribute.String("account.code", m.Code))

	body, err := c.call(ctx, creds, request{
		op:     "make_default",
		method: http.MethodPut,
		url:    c.endpoint("accounts", m.Code, "make-default"),
		body: map[string]bool{
			"for_giving":     m.Flags.Giving,
			"for_fund":       m.Flags.Fund,
			"for_remittance": m.Flags.Remittance,
		},
		resource: "account",
		subject:  m.Code,
	})
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return &domain.Account{Code: m.Code, IsDefault: m.Flags.Any(), DefaultFor: m.Flags}, nil
	}
	return decodeAccount(body, m.Code)
}

// DeleteAccount removes an account. The ledger checks the password; a
// rejection on the password field is reported as ErrUnauthorized.
func (c *LedgerClient) DeleteAccount(ctx context.Context, creds domain.Credentials, code, password string) error {
	ctx, span := tracer.Start(ctx, "LedgerClient.DeleteAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.code", code))

	_, err := c.call(ctx, creds, request{
		op:       "delete_account",
		method:   http.MethodPost,
		url:      c.endpoint("accounts", code, "delete"),
		body:     map[string]string{"password": password},
		resource: "account",
		subject:  code,
	})
	if err != nil {
		var validation *domain.ErrValidation
		if errors.As(err, &validation) && passwordRejected(validation) {
			err = &domain.ErrUnauthorized{Message: "password was not accepted"}
		}
		failSpan(span, err)
		return err
	}

	c.logger.Info("ledger: account deleted", zap.String("account_code", code))
	return nil
}

func passwordRejected(v *domain.ErrValidation) bool {
	if v.Field == "password" {
		return true
	}
	_, ok := v.Fields["password"]
	return ok
}

type wireReceipt struct {
	Reference   string          `json:"reference"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Purpose     string          `json:"purpose"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
}

// Transfer moves funds between two accounts. The idempotency key is sent
// so the ledger can reject an accidental duplicate; this client never
// replays the request itself.
func (c *LedgerClient) Transfer(ctx context.Context, creds domain.Credentials, m *domain.Transfer, idempotencyKey string) (*domain.TransferReceipt, error) {
	ctx, span := tracer.Start(ctx, "LedgerClient.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("transfer.from", m.From),
		attribute.String("transfer.to", m.To),
	)

	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	body, err := c.call(ctx, creds, request{
		op:     "transfer",
		method: http.MethodPost,
		url:    c.endpoint("accounts", "transfer"),
		body: map[string]string{
			"from_account": m.From,
			"to_account":   m.To,
			"amount":       m.Amount.StringFixed(2),
			"purpose":      m.Purpose,
		},
		headers:  headers,
		resource: "account",
		subject:  m.From,
	})
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	var w wireReceipt
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("decode transfer receipt: %w", err)
		}
	}

	receipt := &domain.TransferReceipt{
		Reference:   w.Reference,
		FromAccount: orDefault(w.FromAccount, m.From),
		ToAccount:   orDefault(w.ToAccount, m.To),
		Amount:      w.Amount,
		Purpose:     orDefault(w.Purpose, m.Purpose),
		Status:      w.Status,
	}
	if receipt.Amount.IsZero() {
		receipt.Amount = m.Amount
	}
	if t, ok := domain.ParseLedgerDate(w.CreatedAt); ok {
		created := t.UTC().Truncate(time.Second)
		receipt.CreatedAt = &created
	}
	return receipt, nil
}

func decodeAccount(body []byte, code string) (*domain.Account, error) {
	var w wireAccount
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	if w.Code == "" {
		w.Code = code
	}
	a := w.toDomain()
	return &a, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
