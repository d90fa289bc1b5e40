package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLinkedAccount_ProviderRef(t *testing.T) {
	tests := []struct {
		name    string
		account LinkedAccount
		wantErr bool
		want    ProviderRef
	}{
		{
			name:    "bank with id",
			account: LinkedAccount{Kind: AccountBank, BankAccountID: " acc-1 "},
			want:    ProviderRef{Kind: AccountBank, AccountID: "acc-1"},
		},
		{
			name:    "bank without id",
			account: LinkedAccount{Kind: AccountBank},
			wantErr: true,
		},
		{
			name:    "mobile money with phone",
			account: LinkedAccount{Kind: AccountMobileMoney, MoMoPhone: "233241234567", MoMoReferenceID: "ref"},
			want:    ProviderRef{Kind: AccountMobileMoney, Phone: "233241234567", ReferenceID: "ref"},
		},
		{
			name:    "mobile money without phone",
			account: LinkedAccount{Kind: AccountMobileMoney, MoMoReferenceID: "ref"},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			account: LinkedAccount{Kind: "crypto"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.account.ProviderRef()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if CodeOf(err) != CodeInvalidAccount || KindOf(err) != KindAccountState {
					t.Errorf("got %s/%s, want INVALID_ACCOUNT/account_state", KindOf(err), CodeOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ProviderRef() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransaction_IsSynced(t *testing.T) {
	id := "tx-1"
	empty := ""
	if (Transaction{}).IsSynced() {
		t.Error("manual transaction reported as synced")
	}
	if (Transaction{ProviderTxID: &empty}).IsSynced() {
		t.Error("empty provider id reported as synced")
	}
	if !(Transaction{ProviderTxID: &id}).IsSynced() {
		t.Error("synced transaction not reported as synced")
	}
}

func TestDateRange_Validate(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	r := TrailingDays(now, 30)
	if err := r.Validate(); err != nil {
		t.Fatalf("trailing window invalid: %v", err)
	}
	if !r.From.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("From = %v", r.From)
	}
	bad := DateRange{From: now, To: now.Add(-time.Hour)}
	if err := bad.Validate(); CodeOf(err) != CodeInvalidDateRange {
		t.Errorf("reversed range: got %v", err)
	}
}

func TestTitleize(t *testing.T) {
	cases := map[string]string{
		"transport":         "Transport",
		"bank_fees":         "Bank Fees",
		"  food-and_dining": "Food and Dining",
		"UNCATEGORIZED":     "Uncategorized",
		"":                  "",
	}
	for in, want := range cases {
		if got := Titleize(in); got != want {
			t.Errorf("Titleize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := fmt.Errorf("fetch: %w", WrapError(KindProvider, CodeProviderNetwork, "bank unreachable", base))

	if KindOf(err) != KindProvider {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	if CodeOf(err) != CodeProviderNetwork {
		t.Errorf("CodeOf = %s", CodeOf(err))
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error lost its cause")
	}
	if MessageOf(err) != "bank unreachable" {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
	if KindOf(base) != KindInternal || CodeOf(base) != CodeInternal {
		t.Error("plain errors should classify as internal")
	}
}
