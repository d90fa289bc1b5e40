// Package provider defines the port every account-data provider implements
// and the canonical transaction shape adapters normalize into.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"finsync/internal/core"
)

type (
	// Adapter fetches the account snapshot and the transactions of a window
	// from one provider kind. Implementations do not retry.
	Adapter interface {
		Kind() core.AccountKind
		FetchAccountAndTransactions(ctx context.Context, ref core.ProviderRef, from, to time.Time) (*FetchResult, error)
	}

	// Registry maps an account kind to its adapter.
	Registry map[core.AccountKind]Adapter

	AccountSnapshot struct {
		Balance     decimal.Decimal
		Currency    string
		Institution string
		Name        string
	}

	// RawSyncedTransaction is a provider transaction before categorization.
	// Amount is an absolute value; Direction is empty when the provider
	// expresses direction only through the sign it already stripped.
	RawSyncedTransaction struct {
		ProviderTxID string
		Amount       decimal.Decimal
		Direction    core.TransactionType
		OccurredAt   time.Time
		Description  string
		Narration    []string
		Counterparty string
		MerchantName string
		StatusCode   string
		Metadata     map[string]string
	}

	FetchResult struct {
		Account      AccountSnapshot
		Transactions []RawSyncedTransaction
	}
)

// NewRegistry indexes adapters by kind. A later adapter replaces an earlier
// one of the same kind.
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		if a != nil {
			r[a.Kind()] = a
		}
	}
	return r
}

// Lookup returns the adapter for kind or an INVALID_ACCOUNT error.
func (r Registry) Lookup(kind core.AccountKind) (Adapter, error) {
	a, ok := r[kind]
	if !ok || a == nil {
		return nil, core.NewError(core.KindAccountState, core.CodeInvalidAccount,
			fmt.Sprintf("no provider adapter registered for %s accounts", kind))
	}
	return a, nil
}

// Type returns the transaction direction, falling back to fallback when the
// provider gave none.
func (t RawSyncedTransaction) Type(fallback core.TransactionType) core.TransactionType {
	if t.Direction.Valid() {
		return t.Direction
	}
	return fallback
}

// Errors shared by the HTTP adapters.

func AuthError(provider string, status int) error {
	return core.NewError(core.KindAuth, core.CodeProviderAuth,
		fmt.Sprintf("%s rejected the credentials (HTTP %d)", provider, status))
}

func StatusError(provider string, status int) error {
	return core.NewError(core.KindProvider, core.CodeProviderNetwork,
		fmt.Sprintf("%s returned HTTP %d", provider, status))
}

func MalformedError(provider, detail string, err error) error {
	return core.WrapError(core.KindProvider, core.CodeProviderMalformed,
		fmt.Sprintf("%s sent a malformed response: %s", provider, detail), err)
}

// TransportError classifies a failed round trip as a timeout or a network
// error. Errors that already carry a code are returned unchanged.
func TransportError(provider string, err error) error {
	var typed *core.Error
	if errors.As(err, &typed) {
		return err
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) && tokenErr.Response != nil {
		status := tokenErr.Response.StatusCode
		if status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest {
			return core.WrapError(core.KindAuth, core.CodeProviderAuth, provider+" token request was rejected", err)
		}
		return core.WrapError(core.KindProvider, core.CodeProviderNetwork, provider+" token endpoint failed", err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return core.WrapError(core.KindProvider, core.CodeProviderTimeout, provider+" did not answer in time", err)
	}
	return core.WrapError(core.KindProvider, core.CodeProviderNetwork, provider+" is unreachable", err)
}

// CheckStatus maps a non-2xx response to a typed error.
func CheckStatus(provider string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return AuthError(provider, resp.StatusCode)
	default:
		return StatusError(provider, resp.StatusCode)
	}
}

// NewHTTPClient returns a pooled client for provider APIs.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
