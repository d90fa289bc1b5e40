package http

import (
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
)

type syncRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type syncRunResponse struct {
	ID                 string     `json:"id"`
	AccountID          string     `json:"account_id"`
	Trigger            string     `json:"trigger"`
	Status             string     `json:"status"`
	TransactionsSynced int        `json:"transactions_synced"`
	NewCount           int        `json:"new_count"`
	UpdatedCount       int        `json:"updated_count"`
	Errors             []string   `json:"errors"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
}

func toSyncRunResponse(run core.SyncRun) syncRunResponse {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	return syncRunResponse{
		ID:                 run.ID,
		AccountID:          run.AccountID,
		Trigger:            string(run.Trigger),
		Status:             string(run.Status),
		TransactionsSynced: run.TransactionsSynced,
		NewCount:           run.NewCount,
		UpdatedCount:       run.UpdatedCount,
		Errors:             errs,
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
		ErrorMessage:       run.ErrorMessage,
	}
}

type suggestRequest struct {
	Description string           `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Merchant    string           `json:"merchant"`
}

type categoryResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon,omitempty"`
	Global bool   `json:"global"`
}

func toCategoryResponses(cats []core.Category) []categoryResponse {
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name, Icon: c.Icon, Global: c.IsGlobal()})
	}
	return out
}

type feedbackRequest struct {
	CategoryID string `json:"category_id"`
}

type bulkRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
	CategoryID     string   `json:"category_id"`
}

type ruleRequest struct {
	CategoryID string `json:"category_id"`
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	Priority   int    `json:"priority"`
}

type ruleResponse struct {
	ID           string `json:"id"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Kind         string `json:"kind"`
	Value        string `json:"value"`
	Priority     int    `json:"priority"`
	IsActive     bool   `json:"is_active"`
}

type transactionPatch struct {
	Amount      *decimal.Decimal `json:"amount"`
	Type        *string          `json:"type"`
	CategoryID  *string          `json:"category_id"`
	Description *string          `json:"description"`
	Date        *string          `json:"date"`
}

type transactionResponse struct {
	ID              string            `json:"id"`
	AccountID       *string           `json:"account_id,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Type            string            `json:"type"`
	CategoryID      *string           `json:"category_id,omitempty"`
	Description     string            `json:"description"`
	Date            time.Time         `json:"date"`
	IsSynced        bool              `json:"is_synced"`
	Provider        string            `json:"provider,omitempty"`
	ProviderTxID    *string           `json:"provider_tx_id,omitempty"`
	ProviderStatus  string            `json:"provider_status,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	AutoCategorized bool              `json:"auto_categorized"`
	Confidence      *float64          `json:"confidence,omitempty"`
	SyncRunID       *string           `json:"sync_run_id,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		AccountID:       t.AccountID,
		Amount:          t.Amount,
		Type:            string(t.Type),
		CategoryID:      t.CategoryID,
		Description:     t.Description,
		Date:            t.Date,
		IsSynced:        t.IsSynced(),
		Provider:        string(t.Provider),
		ProviderTxID:    t.ProviderTxID,
		ProviderStatus:  t.ProviderStatus,
		Metadata:        t.Metadata,
		AutoCategorized: t.AutoCategorized,
		Confidence:      t.Confidence,
		SyncRunID:       t.SyncRunID,
		UpdatedAt:       t.UpdatedAt,
	}
}
