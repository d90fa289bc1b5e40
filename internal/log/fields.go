package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldErrorCode    = "error_code"
	FieldOperation    = "operation"
	FieldUserID       = "user_id"
	FieldAccountID    = "account_id"
	FieldRunID        = "run_id"
	FieldProvider     = "provider"
	FieldProviderTxID = "provider_tx_id"
	FieldTrigger      = "trigger"
	FieldTransactions = "transactions"
	FieldCategory     = "category"
	FieldRuleID       = "rule_id"
	FieldAttempt      = "attempt"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentSync       = "sync"
	ComponentCategorize = "categorize"
	ComponentProvider   = "provider"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentScheduler  = "scheduler"
	ComponentExport     = "export"
	ComponentAuth       = "auth"
	ComponentRateLimit  = "rate_limit"
	ComponentTrace      = "trace"
)

// Operations defines standard operation names
const (
	OpSync       = "sync"
	OpBulkUpdate = "bulk_update"
)

// Fields is a small builder for attribute lists.
type Fields map[string]any

func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithOperation(op string) Fields {
	f[FieldOperation] = op
	return f
}

// WithAccount adds the owner and account of a sync.
func (f Fields) WithAccount(userID, accountID string) Fields {
	f[FieldUserID] = userID
	f[FieldAccountID] = accountID
	return f
}

func (f Fields) WithRun(runID string) Fields {
	f[FieldRunID] = runID
	return f
}

func (f Fields) With(key string, value any) Fields {
	f[key] = value
	return f
}

// ToSlice converts Fields to a slice for slog
func (f Fields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
