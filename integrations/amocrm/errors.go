package amocrm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoToken is returned when neither an access nor a refresh token is available.
var ErrNoToken = errors.New("amocrm: no access token, authorize via /api/amo/auth")

// APIError is a non-2xx answer from the CRM or its OAuth endpoint.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
	Hint       string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Hint
	if msg == "" {
		msg = e.Detail
	}
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("amocrm: status %d: %s", e.StatusCode, msg)
}

// IsUnauthorized reports whether err is a 401 from the CRM.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if len(body) > 512 {
		apiErr.Body = string(body[:512])
	} else {
		apiErr.Body = string(body)
	}

	var parsed struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Hint   string `json:"hint"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Title = parsed.Title
		apiErr.Detail = parsed.Detail
		apiErr.Hint = parsed.Hint
	}
	return apiErr
}
