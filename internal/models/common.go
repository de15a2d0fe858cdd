package models

// ErrorResponse is the body of every failed API call. Code is one of the
// pkg/response codes, not the HTTP status.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
