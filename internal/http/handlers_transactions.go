package http

import (
	"net/http"
	"strings"

	"finsync/internal/core"
	"finsync/internal/services"
)

// handleUpdateTransaction applies a partial edit. Provider-owned fields of
// synced transactions are rejected by the service.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch transactionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	u := services.TransactionUpdate{Amount: patch.Amount, CategoryID: patch.CategoryID}
	if patch.Type != nil {
		t := core.TransactionType(strings.ToLower(strings.TrimSpace(*patch.Type)))
		u.Type = &t
	}
	if patch.Description != nil {
		d := sanitizeInput(*patch.Description)
		u.Description = &d
	}
	if patch.Date != nil {
		date, err := parseDate("date", *patch.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u.Date = &date
	}

	tx, err := s.deps.Transactions.UpdateTransaction(r.Context(), UserID(r.Context()), id, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toTransactionResponse(*tx)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Transactions.DeleteTransaction(r.Context(), UserID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
