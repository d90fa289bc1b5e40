// Package memory is an in-process provider used in sandbox mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
	"finsync/internal/provider"
)

// Adapter serves fixed account data keyed by provider reference.
type Adapter struct {
	kind core.AccountKind

	mu       sync.Mutex
	accounts map[string]provider.FetchResult
	errs     map[string]error
	calls    []Call
	demoNow  func() time.Time
}

// Call records one fetch.
type Call struct {
	Ref  core.ProviderRef
	From time.Time
	To   time.Time
}

var _ provider.Adapter = (*Adapter)(nil)

func New(kind core.AccountKind) *Adapter {
	return &Adapter{
		kind:     kind,
		accounts: make(map[string]provider.FetchResult),
		errs:     make(map[string]error),
	}
}

// Key returns the lookup key for a reference: the bank account id or the
// mobile-money phone number.
func Key(ref core.ProviderRef) string {
	if ref.AccountID != "" {
		return ref.AccountID
	}
	return ref.Phone
}

func (a *Adapter) Kind() core.AccountKind { return a.kind }

// SetAccount replaces the data served for key.
func (a *Adapter) SetAccount(key string, snapshot provider.AccountSnapshot, txs ...provider.RawSyncedTransaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[key] = provider.FetchResult{Account: snapshot, Transactions: txs}
}

// FailWith makes every fetch for key return err until cleared with nil.
func (a *Adapter) FailWith(key string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.errs, key)
		return
	}
	a.errs[key] = err
}

func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// FetchAccountAndTransactions returns the transactions for the reference
// whose OccurredAt falls inside [from, to].
func (a *Adapter) FetchAccountAndTransactions(ctx context.Context, ref core.ProviderRef, from, to time.Time) (*provider.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.TransportError("sandbox provider", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := Key(ref)
	a.calls = append(a.calls, Call{Ref: ref, From: from, To: to})
	if err := a.errs[key]; err != nil {
		return nil, err
	}
	data, ok := a.accounts[key]
	if !ok && a.demoNow != nil {
		data, ok = demoData(a.kind, key, a.demoNow()), true
		a.accounts[key] = data
	}
	if !ok {
		return nil, core.NewError(core.KindProvider, core.CodeProviderNetwork,
			fmt.Sprintf("sandbox provider has no account %s", key))
	}

	out := &provider.FetchResult{Account: data.Account}
	for _, tx := range data.Transactions {
		if tx.OccurredAt.Before(from) || tx.OccurredAt.After(to) {
			continue
		}
		meta := make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			meta[k] = v
		}
		tx.Metadata = meta
		tx.Narration = append([]string(nil), tx.Narration...)
		out.Transactions = append(out.Transactions, tx)
	}
	return out, nil
}

// EnableDemo makes unknown references answer with generated demo data so
// sandbox mode has something to sync. Dates are relative to now().
func (a *Adapter) EnableDemo(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.demoNow = now
}

func demoData(kind core.AccountKind, key string, now time.Time) provider.FetchResult {
	switch kind {
	case core.AccountMobileMoney:
		return result(provider.AccountSnapshot{Balance: decimal.RequireFromString("420.50"), Currency: "GHS", Institution: "Mobile Money"},
			provider.RawSyncedTransaction{
				ProviderTxID: key + "-m1", Amount: decimal.RequireFromString("45.00"), Direction: core.Expense,
				OccurredAt: now.AddDate(0, 0, -2), Description: "Payment to KFC Osu", Counterparty: "MSISDN:233200000001",
				StatusCode: "SUCCESSFUL", Metadata: map[string]string{core.MetaCurrency: "GHS"},
			},
			provider.RawSyncedTransaction{
				ProviderTxID: key + "-m2", Amount: decimal.RequireFromString("1200.00"), Direction: core.Income,
				OccurredAt: now.AddDate(0, 0, -5), Description: "Salary for the month", Counterparty: "MSISDN:233200000002",
				StatusCode: "SUCCESSFUL", Metadata: map[string]string{core.MetaCurrency: "GHS"},
			},
		)
	default:
		return result(provider.AccountSnapshot{Balance: decimal.RequireFromString("2500.00"), Currency: "USD", Institution: "Sandbox Bank", Name: "Checking"},
			provider.RawSyncedTransaction{
				ProviderTxID: key + "-b1", Amount: decimal.RequireFromString("18.40"), Direction: core.Expense,
				OccurredAt: now.AddDate(0, 0, -1), Description: "UBER TRIP 4521", MerchantName: "Uber",
				StatusCode: "booked", Metadata: map[string]string{core.MetaCurrency: "USD"},
			},
			provider.RawSyncedTransaction{
				ProviderTxID: key + "-b2", Amount: decimal.RequireFromString("15.99"), Direction: core.Expense,
				OccurredAt: now.AddDate(0, 0, -3), Description: "NETFLIX.COM",
				StatusCode: "booked", Metadata: map[string]string{core.MetaCurrency: "USD"},
			},
			provider.RawSyncedTransaction{
				ProviderTxID: key + "-b3", Amount: decimal.RequireFromString("3200.00"), Direction: core.Income,
				OccurredAt: now.AddDate(0, 0, -10), Description: "Salary payment ACME Ltd",
				StatusCode: "booked", Metadata: map[string]string{core.MetaCurrency: "USD"},
			},
		)
	}
}

func result(snapshot provider.AccountSnapshot, txs ...provider.RawSyncedTransaction) provider.FetchResult {
	return provider.FetchResult{Account: snapshot, Transactions: txs}
}
