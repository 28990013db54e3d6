package error

import "net/http"

// NotConfiguredError marks a feature whose credentials are missing. It is never
// retried and maps to 503 so operators can tell it apart from upstream failures.
type NotConfiguredError string

func (err NotConfiguredError) Error() string {
	return string(err)
}

func (err NotConfiguredError) ErrCode() string {
	return "NOT_CONFIGURED"
}

func (err NotConfiguredError) StatusCode() int {
	return http.StatusServiceUnavailable
}
