package piwebapi

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from PI Web API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Errors     []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

func newAPIError(method, u string, resp *http.Response, body []byte) *APIError {
	e := &APIError{
		Method:     method,
		URL:        u,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}

	var payload struct {
		Errors  []string `json:"Errors"`
		Message string   `json:"Message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Errors = payload.Errors
		if payload.Message != "" {
			e.Errors = append(e.Errors, payload.Message)
		}
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from PI Web API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 from PI Web API.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsCertificateError reports whether err is a TLS trust failure, which
// usually means the PI Web API certificate is self-signed.
func IsCertificateError(err error) bool {
	var unknown x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	var hostname x509.HostnameError
	var verify *tls.CertificateVerificationError
	return errors.As(err, &unknown) || errors.As(err, &invalid) ||
		errors.As(err, &hostname) || errors.As(err, &verify)
}
