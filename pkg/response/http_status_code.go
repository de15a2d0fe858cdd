package response

const (
	ErrCodeSuccess          = 4001 // Success
	ErrCodeParamInvalid     = 4003 // Path or body parameter invalid
	ErrCodeNotFound         = 4004 // Record not found
	ErrCodeUnauthorized     = 4010 // Missing or invalid bearer token
	ErrCodeRateLimited      = 4029 // Too many requests
	ErrCodeStoreFailure     = 5001 // Durable store failed or breaker open
	ErrCodeReportsDisabled  = 5031 // No object store configured
	ErrCodeReportExportFail = 5032 // Report upload failed
)

// message
var msg = map[int]string{
	ErrCodeSuccess:          "success",
	ErrCodeParamInvalid:     "invalid parameter",
	ErrCodeNotFound:         "not found",
	ErrCodeUnauthorized:     "unauthorized",
	ErrCodeRateLimited:      "rate limit exceeded",
	ErrCodeStoreFailure:     "store unavailable",
	ErrCodeReportsDisabled:  "report export is not configured",
	ErrCodeReportExportFail: "report export failed",
}

// Message returns the text for code, or an empty string when unknown.
func Message(code int) string {
	return msg[code]
}
