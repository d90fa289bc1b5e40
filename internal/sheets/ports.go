package sheets

import (
	"context"

	"finsync/internal/core"
)

// Ports for outbound adapters.
type (
	// RunExporter appends a finished sync run to an external audit sheet.
	RunExporter interface {
		ExportRun(ctx context.Context, run core.SyncRun, account core.LinkedAccount) error
	}

	// RunLister reads exported runs back, newest last.
	RunLister interface {
		ListRuns(ctx context.Context) ([]Row, error)
	}
)

// Row is one exported sync run as it appears in the sheet.
type Row struct {
	RunID        string
	UserID       string
	AccountID    string
	AccountName  string
	Kind         string
	Trigger      string
	Status       string
	Total        int
	New          int
	Updated      int
	ErrorCount   int
	StartedAt    string
	CompletedAt  string
	ErrorMessage string
}

// Header is the first row written to a new export sheet.
var Header = []string{
	"Run ID", "User", "Account", "Account Name", "Kind", "Trigger", "Status",
	"Total", "New", "Updated", "Errors", "Started", "Completed", "Error Message",
}

// RowFromRun flattens a run for export.
func RowFromRun(run core.SyncRun, account core.LinkedAccount) Row {
	row := Row{
		RunID:       run.ID,
		UserID:      run.UserID,
		AccountID:   run.AccountID,
		AccountName: account.Name,
		Kind:        string(account.Kind),
		Trigger:     string(run.Trigger),
		Status:      string(run.Status),
		Total:       run.TransactionsSynced,
		New:         run.NewCount,
		Updated:     run.UpdatedCount,
		ErrorCount:  len(run.Errors),
		StartedAt:   run.StartedAt.UTC().Format(timeFormat),
	}
	if run.CompletedAt != nil {
		row.CompletedAt = run.CompletedAt.UTC().Format(timeFormat)
	}
	if run.ErrorMessage != nil {
		row.ErrorMessage = *run.ErrorMessage
	}
	return row
}

const timeFormat = "2006-01-02 15:04:05"

// Values returns the row as sheet cells in Header order.
func (r Row) Values() []any {
	return []any{
		r.RunID, r.UserID, r.AccountID, r.AccountName, r.Kind, r.Trigger, r.Status,
		r.Total, r.New, r.Updated, r.ErrorCount, r.StartedAt, r.CompletedAt, r.ErrorMessage,
	}
}
