// Package momo adapts a collection-style mobile-money API to the provider
// port.
package momo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/provider"
)

const (
	name = "mobile money provider"

	tokenPath        = "/collection/token/"
	balancePath      = "/collection/v1_0/account/balance"
	transactionsPath = "/collection/v1_0/transactions"

	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerTargetEnv       = "X-Target-Environment"
)

type Config struct {
	BaseURL           string
	APIUser           string
	APIKey            string
	SubscriptionKey   string
	TargetEnvironment string
	Timeout           time.Duration
	HTTPClient        *http.Client
}

type Adapter struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds the adapter. The API user and key authenticate the token
// request with HTTP basic auth; every call carries the subscription key and
// target environment headers.
func New(cfg Config, logger *log.Logger) (*Adapter, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("mobile money base url is required")
	}
	env := cfg.TargetEnvironment
	if env == "" {
		env = "sandbox"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = provider.NewHTTPClient(cfg.Timeout)
	}
	transport := httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	withHeaders := &http.Client{
		Transport: &headerTransport{base: transport, subscriptionKey: cfg.SubscriptionKey, targetEnv: env},
		Timeout:   httpClient.Timeout,
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.APIUser,
		ClientSecret: cfg.APIKey,
		TokenURL:     base + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, withHeaders))
	client.Timeout = httpClient.Timeout

	return &Adapter{
		baseURL: base,
		client:  client,
		logger:  log.Or(logger, log.ComponentProvider).With(log.FieldProvider, string(core.AccountMobileMoney)),
	}, nil
}

type headerTransport struct {
	base            http.RoundTripper
	subscriptionKey string
	targetEnv       string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.subscriptionKey != "" {
		r.Header.Set(headerSubscriptionKey, t.subscriptionKey)
	}
	r.Header.Set(headerTargetEnv, t.targetEnv)
	return t.base.RoundTrip(r)
}

func (a *Adapter) Kind() core.AccountKind { return core.AccountMobileMoney }

type balancePayload struct {
	AvailableBalance provider.Amount `json:"availableBalance"`
	Currency         string          `json:"currency"`
}

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

func (p party) String() string {
	if p.PartyID == "" {
		return ""
	}
	if p.PartyIDType == "" {
		return p.PartyID
	}
	return p.PartyIDType + ":" + p.PartyID
}

type transactionPayload struct {
	FinancialTransactionID string          `json:"financialTransactionId"`
	ExternalID             string          `json:"externalId"`
	Amount                 provider.Amount `json:"amount"`
	Currency               string          `json:"currency"`
	Payer                  party           `json:"payer"`
	Payee                  party           `json:"payee"`
	PayerMessage           string          `json:"payerMessage"`
	PayeeNote              string          `json:"payeeNote"`
	Status                 string          `json:"status"`
	Reason                 string          `json:"reason"`
	CreatedAt              string          `json:"createdAt"`
}

func (a *Adapter) FetchAccountAndTransactions(ctx context.Context, ref core.ProviderRef, from, to time.Time) (*provider.FetchResult, error) {
	if ref.Phone == "" {
		return nil, core.NewError(core.KindAccountState, core.CodeInvalidAccount, "mobile money phone number is required")
	}
	start := time.Now()

	var bal balancePayload
	if err := a.getJSON(ctx, balancePath, nil, &bal); err != nil {
		return nil, err
	}
	if !bal.AvailableBalance.Valid {
		return nil, provider.MalformedError(name, "available balance missing", nil)
	}

	query := url.Values{}
	query.Set("msisdn", ref.Phone)
	if ref.ReferenceID != "" {
		query.Set("referenceId", ref.ReferenceID)
	}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))

	var payloads []transactionPayload
	if err := a.getJSON(ctx, transactionsPath, query, &payloads); err != nil {
		return nil, err
	}

	result := &provider.FetchResult{
		Account: provider.AccountSnapshot{
			Balance:     bal.AvailableBalance.Value,
			Currency:    bal.Currency,
			Institution: "Mobile Money",
		},
		Transactions: make([]provider.RawSyncedTransaction, 0, len(payloads)),
	}
	for i, p := range payloads {
		tx, err := p.normalize(ref.Phone)
		if err != nil {
			return nil, provider.MalformedError(name, fmt.Sprintf("transaction %d", i), err)
		}
		result.Transactions = append(result.Transactions, tx)
	}

	a.logger.InfoContext(ctx, "Fetched mobile money transactions",
		log.FieldTransactions, len(result.Transactions),
		log.FieldDuration, time.Since(start).Milliseconds())
	return result, nil
}

func (p transactionPayload) normalize(ownPhone string) (provider.RawSyncedTransaction, error) {
	id := strings.TrimSpace(p.FinancialTransactionID)
	if id == "" {
		id = strings.TrimSpace(p.ExternalID)
	}
	if id == "" {
		return provider.RawSyncedTransaction{}, fmt.Errorf("missing transaction id")
	}
	if !p.Amount.Valid {
		return provider.RawSyncedTransaction{}, fmt.Errorf("%s: missing amount", id)
	}
	occurred, ok := provider.ParseTime(p.CreatedAt)
	if !ok {
		return provider.RawSyncedTransaction{}, fmt.Errorf("%s: missing or invalid createdAt %q", id, p.CreatedAt)
	}

	direction := core.Income
	counterparty := p.Payer
	if SamePhone(p.Payer.PartyID, ownPhone) {
		direction = core.Expense
		counterparty = p.Payee
	}

	var narration []string
	for _, s := range []string{p.PayerMessage, p.PayeeNote} {
		if s = strings.TrimSpace(s); s != "" {
			narration = append(narration, s)
		}
	}
	description := strings.Join(narration, " ")
	if description == "" {
		description = "Mobile money " + string(direction)
	}

	meta := map[string]string{
		core.MetaCounterparty: counterparty.String(),
	}
	if p.Currency != "" {
		meta[core.MetaCurrency] = p.Currency
	}
	if p.ExternalID != "" {
		meta["external_id"] = p.ExternalID
	}
	if p.Reason != "" {
		meta["reason"] = p.Reason
	}

	amount := p.Amount.Value.Abs()
	return provider.RawSyncedTransaction{
		ProviderTxID: id,
		Amount:       amount,
		Direction:    direction,
		OccurredAt:   occurred,
		Description:  description,
		Narration:    narration,
		Counterparty: counterparty.String(),
		StatusCode:   strings.ToUpper(p.Status),
		Metadata:     meta,
	}, nil
}

// SamePhone compares two MSISDNs on their last nine digits so local and
// international forms of a number match.
func SamePhone(a, b string) bool {
	da, db := digits(a), digits(b)
	if da == "" || db == "" {
		return false
	}
	const significant = 9
	if len(da) > significant {
		da = da[len(da)-significant:]
	}
	if len(db) > significant {
		db = db[len(db)-significant:]
	}
	return da == db
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
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
		a.logger.WarnContext(ctx, "Mobile money request failed", "path", path, log.FieldStatusCode, resp.StatusCode)
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
