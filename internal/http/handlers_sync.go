package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"finsync/internal/amqp"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/services"
)

// handleSync runs a manual sync inline and returns its outcome.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req syncRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	window, err := parseDateRange(req.From, req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := s.deps.Sync.SyncAccount(r.Context(), UserID(r.Context()), accountID,
		services.SyncOptions{Range: window, Trigger: core.TriggerManual})
	if err != nil {
		writeRunError(w, r, err, outcome.RunID)
		return
	}
	if outcome.Errors == nil {
		outcome.Errors = []string{}
	}
	NewJSONResponse().Body(outcome).Write(w)
}

// handleSyncStream runs a sync and streams its progress as server-sent
// events, finishing with a done event that carries the outcome.
func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	window, err := parseDateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// A sync can outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Streaming unsupported", log.FieldError, err)
		return
	}

	send := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return
		}
		_ = rc.Flush()
	}

	outcome, err := s.deps.Sync.SyncAccountWithProgress(r.Context(), UserID(r.Context()), accountID,
		services.SyncOptions{Range: window, Trigger: core.TriggerManual},
		func(ev services.ProgressEvent) { send("progress", ev) })
	if err != nil {
		body := errorBody{Code: core.CodeOf(err), Message: core.MessageOf(err), RunID: outcome.RunID}
		if body.Code == core.CodeInternal {
			body.Message = "internal error"
		}
		send("error", body)
		return
	}
	if outcome.Errors == nil {
		outcome.Errors = []string{}
	}
	send("done", outcome)
}

// handleEnqueueSync hands the sync to the worker queue.
func (s *Server) handleEnqueueSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		NewJSONResponse().Status(http.StatusServiceUnavailable).
			Body(errorBody{Code: "QUEUE_UNAVAILABLE", Message: "background sync is not configured"}).Write(w)
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req syncRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	window, err := parseDateRange(req.From, req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID := UserID(r.Context())
	if _, err := s.deps.Accounts.GetActiveAccount(r.Context(), userID, accountID); err != nil {
		writeError(w, r, err)
		return
	}

	msg := amqp.NewSyncRequestMessage(userID, accountID, window)
	if err := s.deps.Queue.PublishSyncRequest(r.Context(), msg); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to enqueue sync",
			log.FieldAccountID, accountID, log.FieldError, err)
		NewJSONResponse().Status(http.StatusServiceUnavailable).
			Body(errorBody{Code: "QUEUE_UNAVAILABLE", Message: "could not enqueue sync"}).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusAccepted).
		Body(map[string]string{"status": "queued", "account_id": accountID}).Write(w)
}

func (s *Server) handleSyncRuns(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := s.deps.Sync.ListSyncRuns(r.Context(), UserID(r.Context()), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]syncRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toSyncRunResponse(run))
	}
	NewJSONResponse().Body(map[string]any{"runs": out}).Write(w)
}
