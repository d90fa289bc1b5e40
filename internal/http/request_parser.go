package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finsync/internal/core"
)

const (
	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"
)

// decodeJSON reads a single JSON object into v, rejecting unknown fields and
// oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body is too large")
		default:
			return badRequest("invalid JSON body: " + err.Error())
		}
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.ContentLength == 0 && r.Header.Get("Transfer-Encoding") == "" {
		return nil
	}
	err := decodeJSON(w, r, v)
	if err != nil && core.MessageOf(err) == "request body is empty" {
		return nil
	}
	return err
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, badRequest(fmt.Sprintf("%s must be a date (YYYY-MM-DD)", field))
}

// parseDateRange builds a range from optional bounds. Both empty means no
// range; a date-only "to" covers that whole day.
func parseDateRange(from, to string) (*core.DateRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, core.NewError(core.KindValidation, core.CodeInvalidDateRange, "from and to must be given together")
	}
	start, err := parseDate("from", from)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("to", to)
	if err != nil {
		return nil, err
	}
	if len(to) == len(dateLayout) {
		end = end.Add(24*time.Hour - time.Microsecond)
	}
	window := core.DateRange{From: start, To: end}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	return &window, nil
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// pathID returns a non-blank path value.
func pathID(r *http.Request, name string) (string, error) {
	id := strings.TrimSpace(r.PathValue(name))
	if id == "" {
		return "", badRequest(name + " is required")
	}
	return id, nil
}
