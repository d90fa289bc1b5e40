package provider

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
)

// Amount decodes a provider amount sent as a JSON number or a numeric
// string. Valid is false when the field was absent or null.
type Amount struct {
	Value decimal.Decimal
	Valid bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	*a = Amount{Value: d, Valid: true}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp layouts providers send. Zone-less values
// are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// DirectionFrom maps the direction words providers use.
func DirectionFrom(s string) core.TransactionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "cr", "in", "inflow", "income", "deposit":
		return core.Income
	case "debit", "dr", "out", "outflow", "expense", "withdrawal":
		return core.Expense
	}
	return ""
}
