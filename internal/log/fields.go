package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldCompany       = "company"
	FieldYear          = "year"
	FieldMonth         = "month"
	FieldCategoryID    = "category_id"
	FieldSubcategoryID = "subcategory_id"
	FieldEntryID       = "entry_id"
	FieldPlane         = "plane"
	FieldView          = "view"
	FieldValue         = "value"
	FieldGeneration    = "generation"
	FieldScope         = "scope"
	FieldMovedID       = "moved_id"
	FieldTargetIndex   = "target_index"
	FieldDifference    = "difference"
	FieldCount         = "count"
	FieldRowID         = "row_id"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentSession  = "session"
	ComponentOrder    = "order"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentWatcher  = "watcher"
	ComponentSeed     = "seed"
	ComponentCache    = "cache"
	ComponentSecurity = "security"
	ComponentTrace    = "trace"
	ComponentBackend  = "backend"
)

// Operations defines standard operation names
const (
	OpUpsert = "upsert"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithCell adds the coordinates of a grid cell; id is a category or subcategory
func (f LogFields) WithCell(id string, month int) LogFields {
	f[FieldRowID] = id
	f[FieldMonth] = month
	return f
}

// WithReorder adds the fields of a reorder command
func (f LogFields) WithReorder(scope, movedID string, target int) LogFields {
	f[FieldScope] = scope
	f[FieldMovedID] = movedID
	f[FieldTargetIndex] = target
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
