package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/felipepmaragno/chatgw/internal/domain"
)

const maxErrorMessage = 512

// KindForStatus is the default status-code table.
func KindForStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.KindAuthenticationFailed
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimitExceeded
	case status == http.StatusBadRequest:
		return domain.KindInvalidRequest
	case status >= 500 && status <= 599:
		return domain.KindServerError
	default:
		return domain.KindHTTPError
	}
}

// MapHTTPError builds the error for a non-2xx response. override may replace
// the message for specific codes but never the category.
func MapHTTPError(providerID string, status int, body []byte, override StatusOverride) *domain.ProviderError {
	msg := ExtractErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	if override != nil {
		if enriched, ok := override(status, msg); ok {
			msg = enriched
		}
	}

	return &domain.ProviderError{
		Kind:       KindForStatus(status),
		Provider:   providerID,
		StatusCode: status,
		Message:    msg,
	}
}

// ExtractErrorMessage pulls the human-readable message out of the error
// bodies vendors return: {"error":"..."}, {"error":{"message":"..."}},
// {"message":"..."} and a one-element array of any of those. Anything else
// is returned as trimmed text.
func ExtractErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return truncate(trimmed)
	}
	if msg := messageFrom(v); msg != "" {
		return truncate(msg)
	}
	return truncate(trimmed)
}

func messageFrom(v any) string {
	switch t := v.(type) {
	case []any:
		if len(t) > 0 {
			return messageFrom(t[0])
		}
	case map[string]any:
		switch e := t["error"].(type) {
		case string:
			return e
		case map[string]any:
			if m, ok := e["message"].(string); ok {
				return m
			}
		}
		if m, ok := t["message"].(string); ok {
			return m
		}
		if m, ok := t["detail"].(string); ok {
			return m
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) <= maxErrorMessage {
		return s
	}
	return s[:maxErrorMessage] + "..."
}

// MapTransportError classifies a failure that happened before any HTTP
// status was available.
func MapTransportError(providerID string, err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ContextError(providerID, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.ProviderError{Kind: domain.KindTimeout, Provider: providerID, Message: netErr.Error(), Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") {
		return &domain.ProviderError{Kind: domain.KindInvalidURL, Provider: providerID, Message: urlErr.URL, Err: err}
	}

	return &domain.ProviderError{
		Kind:     domain.KindNetworkError,
		Provider: providerID,
		Message:  err.Error(),
		Err:      err,
	}
}

// DecodingError wraps a response body that could not be parsed.
func DecodingError(providerID string, err error) error {
	return &domain.ProviderError{
		Kind:     domain.KindDecodingError,
		Provider: providerID,
		Message:  fmt.Sprintf("decode response: %v", err),
		Err:      err,
	}
}

func EncodingError(providerID string, err error) error {
	return &domain.ProviderError{
		Kind:     domain.KindEncodingError,
		Provider: providerID,
		Message:  fmt.Sprintf("encode request: %v", err),
		Err:      err,
	}
}
