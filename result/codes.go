package result

// Success codes hosts attach to SuccessEnvelope.Code.
const (
	CodeOperationSuccessful = "OPERATION_SUCCESSFUL"
	CodeDataRetrieved       = "DATA_RETRIEVED"
	CodeCreated             = "CREATED"
	CodeUpdated             = "UPDATED"
	CodeDeleted             = "DELETED"
	CodeFileUploaded        = "FILE_UPLOADED"
	CodeFileDownloaded      = "FILE_DOWNLOADED"
)

// Error codes carried in ErrorEnvelope.Code.
const (
	CodeInternalError     = "INTERNAL_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeFileNotFound      = "FILE_NOT_FOUND"
	CodeFileAccessDenied  = "FILE_ACCESS_DENIED"
	CodeFileCorrupted     = "FILE_CORRUPTED"
	CodeNetworkError      = "NETWORK_ERROR"
	CodeTimeout           = "TIMEOUT"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeOperationFailed   = "OPERATION_FAILED"
	CodeCancelled         = "CANCELLED"
	CodeUnknownCommand    = "UNKNOWN_COMMAND"
	CodeMalformedReply    = "MALFORMED_REPLY"
	CodeCircuitOpen       = "CIRCUIT_OPEN"
	CodeCallSiteClosed    = "CALL_SITE_CLOSED"
	CodeRetryBudgetDenied = "RETRY_BUDGET_DENIED"
)
