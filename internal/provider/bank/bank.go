// Package bank adapts a bank-aggregation REST API to the provider port.
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/provider"
)

const (
	name     = "bank provider"
	maxPages = 50
)

type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
	// HTTPClient replaces the pooled default; the token source uses it too.
	HTTPClient *http.Client
}

type Adapter struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds the adapter. When TokenURL is set, requests carry a bearer
// token obtained with the OAuth2 client-credentials grant.
func New(cfg Config, logger *log.Logger) (*Adapter, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("bank base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("bank base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = provider.NewHTTPClient(cfg.Timeout)
	}
	client := httpClient
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		client = cc.Client(tokenCtx)
		client.Timeout = httpClient.Timeout
	}

	return &Adapter{
		baseURL: base,
		client:  client,
		logger:  log.Or(logger, log.ComponentProvider).With(log.FieldProvider, string(core.AccountBank)),
	}, nil
}

func (a *Adapter) Kind() core.AccountKind { return core.AccountBank }

type accountPayload struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Institution string          `json:"institution"`
	Currency    string          `json:"currency"`
	Balance     provider.Amount `json:"balance"`
}

type transactionPayload struct {
	ID           string          `json:"id"`
	Amount       provider.Amount `json:"amount"`
	Currency     string          `json:"currency"`
	Direction    string          `json:"direction"`
	BookedAt     string          `json:"booked_at"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	Narration    string          `json:"narration"`
	MerchantName string          `json:"merchant_name"`
	Counterparty string          `json:"counterparty"`
	Status       string          `json:"status"`
	Category     string          `json:"category"`
}

type transactionsPage struct {
	Transactions []transactionPayload `json:"transactions"`
	NextCursor   string               `json:"next_cursor"`
}

func (a *Adapter) FetchAccountAndTransactions(ctx context.Context, ref core.ProviderRef, from, to time.Time) (*provider.FetchResult, error) {
	if ref.AccountID == "" {
		return nil, core.NewError(core.KindAccountState, core.CodeInvalidAccount, "bank account id is required")
	}
	start := time.Now()
	accountPath := "/accounts/" + url.PathEscape(ref.AccountID)

	var acct accountPayload
	if err := a.getJSON(ctx, accountPath, nil, &acct); err != nil {
		return nil, err
	}
	if !acct.Balance.Valid {
		return nil, provider.MalformedError(name, "account balance missing", nil)
	}

	result := &provider.FetchResult{
		Account: provider.AccountSnapshot{
			Balance:     acct.Balance.Value,
			Currency:    acct.Currency,
			Institution: acct.Institution,
			Name:        acct.Name,
		},
	}

	query := url.Values{}
	query.Set("from", from.UTC().Format("2006-01-02"))
	query.Set("to", to.UTC().Format("2006-01-02"))
	for page := 0; ; page++ {
		if page == maxPages {
			return nil, provider.MalformedError(name, fmt.Sprintf("more than %d pages of transactions", maxPages), nil)
		}
		var body transactionsPage
		if err := a.getJSON(ctx, accountPath+"/transactions", query, &body); err != nil {
			return nil, err
		}
		for i, p := range body.Transactions {
			tx, err := p.normalize(acct.Currency)
			if err != nil {
				return nil, provider.MalformedError(name, fmt.Sprintf("transaction %d", i), err)
			}
			result.Transactions = append(result.Transactions, tx)
		}
		if body.NextCursor == "" {
			break
		}
		query.Set("cursor", body.NextCursor)
	}

	a.logger.InfoContext(ctx, "Fetched bank transactions",
		log.FieldTransactions, len(result.Transactions),
		log.FieldDuration, time.Since(start).Milliseconds())
	return result, nil
}

func (p transactionPayload) normalize(accountCurrency string) (provider.RawSyncedTransaction, error) {
	if strings.TrimSpace(p.ID) == "" {
		return provider.RawSyncedTransaction{}, fmt.Errorf("missing id")
	}
	if !p.Amount.Valid {
		return provider.RawSyncedTransaction{}, fmt.Errorf("%s: missing amount", p.ID)
	}
	when := p.BookedAt
	if when == "" {
		when = p.Date
	}
	occurred, ok := provider.ParseTime(when)
	if !ok {
		return provider.RawSyncedTransaction{}, fmt.Errorf("%s: missing or invalid date %q", p.ID, when)
	}

	amount, direction := core.SplitSigned(p.Amount.Value)
	if explicit := provider.DirectionFrom(p.Direction); explicit != "" {
		direction = explicit
	}

	currency := p.Currency
	if currency == "" {
		currency = accountCurrency
	}
	meta := map[string]string{}
	if currency != "" {
		meta[core.MetaCurrency] = currency
	}
	if p.Category != "" {
		meta["provider_category"] = p.Category
	}

	var narration []string
	if p.Narration != "" {
		narration = append(narration, p.Narration)
	}
	return provider.RawSyncedTransaction{
		ProviderTxID: p.ID,
		Amount:       amount,
		Direction:    direction,
		OccurredAt:   occurred,
		Description:  strings.TrimSpace(p.Description),
		Narration:    narration,
		Counterparty: p.Counterparty,
		MerchantName: p.MerchantName,
		StatusCode:   p.Status,
		Metadata:     meta,
	}, nil
}

func (a *Adapter) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.TransportError(name, err)
	}
	defer resp.Body.Close()

	if err := provider.CheckStatus(name, resp); err != nil {
		a.logger.WarnContext(ctx, "Bank provider request failed", "path", path, log.FieldStatusCode, resp.StatusCode)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return provider.TransportError(name, ctx.Err())
		}
		return provider.MalformedError(name, "undecodable body", err)
	}
	return nil
}
