package common

import "fmt"

// APIError is the error envelope rendered by middleware.ErrorHandler. Code is a
// stable, machine readable identifier; Message is for humans and may change.
type APIError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Coded creates an APIError carrying a stable error code.
func Coded(status int, code, message string) APIError {
	return APIError{Status: status, Code: code, Message: message}
}
