package hub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const maxErrorBodyLength = 2000

// HTTPError is returned for any non-2xx hub response.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (httpError *HTTPError) Error() string {
	if httpError == nil {
		return "hub request failed"
	}
	body := strings.TrimSpace(httpError.Body)
	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength] + "...<truncated>"
	}
	if body == "" {
		return fmt.Sprintf("%s %s: hub status %d", httpError.Method, httpError.URL, httpError.Status)
	}
	return fmt.Sprintf("%s %s: hub status %d: %s", httpError.Method, httpError.URL, httpError.Status, body)
}

func IsStatus(err error, status int) bool {
	var httpError *HTTPError
	if !errors.As(err, &httpError) {
		return false
	}
	return httpError.Status == status
}

func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden)
}
