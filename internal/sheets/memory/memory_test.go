package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"finsync/internal/core"
)

func run(id string) core.SyncRun {
	done := time.Date(2024, 3, 10, 12, 0, 5, 0, time.UTC)
	return core.SyncRun{
		ID:                 id,
		UserID:             "user-1",
		AccountID:          "acc-1",
		Trigger:            core.TriggerManual,
		Status:             core.SyncSuccess,
		TransactionsSynced: 3,
		NewCount:           2,
		UpdatedCount:       1,
		Errors:             []string{"tx-9: bad amount"},
		StartedAt:          time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		CompletedAt:        &done,
	}
}

func TestStoreExportAndList(t *testing.T) {
	s := New(0)
	account := core.LinkedAccount{ID: "acc-1", Name: "Wallet", Kind: core.AccountMobileMoney}

	if err := s.ExportRun(context.Background(), run("run-1"), account); err != nil {
		t.Fatalf("ExportRun() error = %v", err)
	}

	rows, err := s.ListRuns(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("unexpected list: rows=%v err=%v", rows, err)
	}
	got := rows[0]
	if got.RunID != "run-1" || got.AccountName != "Wallet" || got.Kind != "mobile_money" {
		t.Errorf("unexpected row: %+v", got)
	}
	if got.Total != 3 || got.New != 2 || got.Updated != 1 || got.ErrorCount != 1 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if got.StartedAt != "2024-03-10 12:00:00" || got.CompletedAt != "2024-03-10 12:00:05" {
		t.Errorf("unexpected times: %q %q", got.StartedAt, got.CompletedAt)
	}
}

func TestStoreLimitDropsOldest(t *testing.T) {
	s := New(2)
	for i := 1; i <= 3; i++ {
		if err := s.ExportRun(context.Background(), run(fmt.Sprintf("run-%d", i)), core.LinkedAccount{}); err != nil {
			t.Fatalf("ExportRun() error = %v", err)
		}
	}

	rows, _ := s.ListRuns(context.Background())
	if len(rows) != 2 || rows[0].RunID != "run-2" || rows[1].RunID != "run-3" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
