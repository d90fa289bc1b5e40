package http

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"finsync/internal/categorize"
	"finsync/internal/core"
)

const maxBulkIDs = 500

func (s *Server) handleSuggestCategories(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := categorize.SuggestionRequest{
		Description: sanitizeInput(req.Description),
		Merchant:    sanitizeInput(req.Merchant),
		Amount:      decimal.Zero,
	}
	if req.Amount != nil {
		in.Amount = req.Amount.Abs()
	}

	cats, err := s.deps.Categories.SuggestCategories(r.Context(), UserID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"suggestions": toCategoryResponses(cats)}).Write(w)
}

// handleCategoryFeedback records the user's category choice for a transaction.
func (s *Server) handleCategoryFeedback(w http.ResponseWriter, r *http.Request) {
	txID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	categoryID := strings.TrimSpace(req.CategoryID)
	if categoryID == "" {
		writeError(w, r, badRequest("category_id is required"))
		return
	}
	if err := s.deps.Categories.ProvideCategoryFeedback(r.Context(), UserID(r.Context()), txID, categoryID); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleBulkRecategorize(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	categoryID := strings.TrimSpace(req.CategoryID)
	switch {
	case categoryID == "":
		writeError(w, r, badRequest("category_id is required"))
		return
	case len(req.TransactionIDs) == 0:
		writeError(w, r, badRequest("transaction_ids must not be empty"))
		return
	case len(req.TransactionIDs) > maxBulkIDs:
		writeError(w, r, badRequest("too many transaction_ids"))
		return
	}

	result, err := s.deps.Categories.BulkRecategorize(r.Context(), UserID(r.Context()), req.TransactionIDs, categoryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(result).Write(w)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule := &core.CategorizationRule{
		UserID:     UserID(r.Context()),
		CategoryID: strings.TrimSpace(req.CategoryID),
		Kind:       core.RuleKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Value:      sanitizeInput(req.Value),
		Priority:   req.Priority,
	}
	if err := s.deps.Categories.CreateRule(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(ruleResponse{
		ID:           rule.ID,
		CategoryID:   rule.CategoryID,
		CategoryName: rule.CategoryName,
		Kind:         string(rule.Kind),
		Value:        rule.Value,
		Priority:     rule.Priority,
		IsActive:     rule.IsActive,
	}).Write(w)
}
