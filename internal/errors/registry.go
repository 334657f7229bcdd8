package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// Registered error codes.
const (
	CodeProducerFailure   = "E001"
	CodeUnknownTempID     = "E002"
	CodeFetchSuppressed   = "E003"
	CodeResultDiscarded   = "E004"
	CodeMutationFailure   = "E005"
	CodeNoProducer        = "E006"
	CodeConfigParse       = "E100"
	CodeConfigNotFound    = "E101"
	CodeConfigInvalid     = "E102"
	CodeConfigFormat      = "E103"
	CodeTodoNotFound      = "E200"
	CodeStoreUnavailable  = "E201"
	CodeStoreCorrupt      = "E202"
	CodeUnknownBackend    = "E203"
	CodeBadRequest        = "E300"
	CodeServerStart       = "E301"
	CodeWebSocketUpgrade  = "E302"
	CodeInvalidIdentifier = "E303"
	CodeRequestAborted    = "E304"
)

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Runtime (E001-E099)
	// ============================================

	CodeProducerFailure: {
		Category: CategoryRuntime,
		Message:  "Producer failed",
		Detail:   "The producer returned an error. The failure is stored in the request state; call Refetch to try again.",
	},
	CodeUnknownTempID: {
		Category: CategoryRuntime,
		Message:  "Unknown temporary id",
		Detail:   "Resolve or Reject was called with a temporary id that is not pending. The call was ignored.",
	},
	CodeFetchSuppressed: {
		Category: CategoryRuntime,
		Message:  "Fetch already in flight",
		Detail:   "A fetch for this key is already running; the existing in-flight state was returned.",
	},
	CodeResultDiscarded: {
		Category: CategoryRuntime,
		Message:  "Result discarded",
		Detail:   "A fetch completed after its key was reset or abandoned by every observer.",
	},
	CodeMutationFailure: {
		Category: CategoryRuntime,
		Message:  "Mutation failed",
		Detail:   "The operation behind an optimistic entry failed; the entry was rolled back.",
	},
	CodeNoProducer: {
		Category: CategoryRuntime,
		Message:  "No producer for key",
		Detail:   "Refetch needs a producer registered by an earlier Fetch for the same key.",
	},

	// ============================================
	// Config (E100-E199)
	// ============================================

	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Config parse error",
		Detail:   "The configuration file could not be parsed.",
	},
	CodeConfigNotFound: {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "The configuration file does not exist.",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A configuration value is out of range or malformed.",
	},
	CodeConfigFormat: {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Configuration files must end in .json, .toml, .yaml or .yml.",
	},

	// ============================================
	// Store (E200-E299)
	// ============================================

	CodeTodoNotFound: {
		Category: CategoryStore,
		Message:  "Todo not found",
	},
	CodeStoreUnavailable: {
		Category: CategoryStore,
		Message:  "Store unavailable",
		Detail:   "The todo backend could not be reached.",
	},
	CodeStoreCorrupt: {
		Category: CategoryStore,
		Message:  "Stored record is corrupt",
	},
	CodeUnknownBackend: {
		Category: CategoryStore,
		Message:  "Unknown store backend",
		Detail:   "Supported backends are memory, bolt and s3.",
	},

	// ============================================
	// Server (E300-E399)
	// ============================================

	CodeBadRequest: {
		Category: CategoryServer,
		Message:  "Bad request",
	},
	CodeServerStart: {
		Category: CategoryServer,
		Message:  "Server failed to start",
	},
	CodeWebSocketUpgrade: {
		Category: CategoryServer,
		Message:  "WebSocket upgrade failed",
	},
	CodeInvalidIdentifier: {
		Category: CategoryServer,
		Message:  "Invalid identifier",
		Detail:   "Todo identifiers are positive integers.",
	},
	CodeRequestAborted: {
		Category: CategoryServer,
		Message:  "Request aborted",
		Detail:   "The request was cancelled or timed out before the result was ready.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
