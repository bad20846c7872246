package httpapi

import "fmt"

const (
	CodeInvalidDate  = "invalid_date"
	CodeInvalidMonth = "invalid_month"
	CodeInvalidPage  = "invalid_page"
)

// JSONError is the body of every non-2xx response.
type JSONError struct {
	Details ErrorDetails `json:"error"`
}

type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e JSONError) Error() string {
	return fmt.Sprintf("%s: %s", e.Details.Code, e.Details.Message)
}

func newError(code, message string) JSONError {
	return JSONError{Details: ErrorDetails{Code: code, Message: message}}
}
