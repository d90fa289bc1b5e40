package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finsync/internal/core"
	"finsync/internal/log"
)

// fakeSheets emulates the handful of Values endpoints the client calls.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]any
	appends int
	updates int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	var vr struct {
		Values [][]any `json:"values"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &vr)
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		f.appends++
		f.rows = append(f.rows, vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "'Sync Runs'!A2:N2", "updatedRows": 1},
		})
	case r.Method == http.MethodPut:
		f.updates++
		if len(f.rows) == 0 {
			f.rows = append(f.rows, vr.Values...)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": "'Sync Runs'!A1:N1"})
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "A1:N1"):
		values := [][]any{}
		if len(f.rows) > 0 {
			values = f.rows[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.rows})
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithHTTPClient(srv.Client()),
		goption.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return NewWithService(svc, "sheet-1", "", log.Discard())
}

func finishedRun(id string) core.SyncRun {
	done := time.Date(2024, 3, 10, 12, 0, 5, 0, time.UTC)
	return core.SyncRun{
		ID:                 id,
		UserID:             "user-1",
		AccountID:          "acc-1",
		Trigger:            core.TriggerManual,
		Status:             core.SyncSuccess,
		TransactionsSynced: 3,
		NewCount:           3,
		StartedAt:          time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		CompletedAt:        &done,
	}
}

func TestClient_ExportAndListRuns(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()
	account := core.LinkedAccount{ID: "acc-1", Name: "Wallet", Kind: core.AccountMobileMoney}

	if err := c.ExportRun(ctx, finishedRun("run-1"), account); err != nil {
		t.Fatalf("ExportRun() error = %v", err)
	}
	if err := c.ExportRun(ctx, finishedRun("run-2"), account); err != nil {
		t.Fatalf("ExportRun() error = %v", err)
	}

	if fake.updates != 1 {
		t.Errorf("header should be written once, got %d writes", fake.updates)
	}
	if fake.appends != 2 {
		t.Errorf("expected 2 appends, got %d", fake.appends)
	}

	rows, err := c.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].RunID != "run-1" || rows[1].RunID != "run-2" {
		t.Errorf("unexpected order: %+v", rows)
	}
	if rows[0].AccountName != "Wallet" || rows[0].Total != 3 || rows[0].Status != "success" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestClient_ExportRejectsUnfinishedRun(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	run := finishedRun("run-1")
	run.Status = core.SyncInProgress
	if err := c.ExportRun(context.Background(), run, core.LinkedAccount{}); err == nil {
		t.Fatal("expected error for unfinished run")
	}
	if fake.appends != 0 {
		t.Error("nothing should be appended")
	}
}

func TestClient_ExportSurfacesAPIErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))

	err := c.ExportRun(context.Background(), finishedRun("run-1"), core.LinkedAccount{})
	if err == nil || !strings.Contains(err.Error(), "read header") {
		t.Fatalf("expected header read error, got %v", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if err := c.ExportRun(context.Background(), finishedRun("run-1"), core.LinkedAccount{}); err == nil {
		t.Error("expected error with nil service")
	}
	if _, err := c.ListRuns(context.Background()); err == nil {
		t.Error("expected error with nil service")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := New(context.Background(), Config{}, nil); err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("expected missing spreadsheet error, got %v", err)
	}
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("expected missing credentials error, got %v", err)
	}
	_, err = New(context.Background(), Config{SpreadsheetID: "sheet-1", ServiceAccountFile: "/does/not/exist.json"}, nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("expected file error, got %v", err)
	}
}

func TestColumnRange(t *testing.T) {
	c := NewWithService(nil, "id", "Bob's Runs", nil)
	if got := c.columnRange("A:N"); got != "'Bob''s Runs'!A:N" {
		t.Errorf("columnRange() = %q", got)
	}
	if lastColumn() != "N" {
		t.Errorf("lastColumn() = %q, want N", lastColumn())
	}
}
