package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey         = errors.New("missing API key")
	ErrInvalidAPIKey         = errors.New("invalid API key")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrInvalidURL            = errors.New("invalid URL")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUnsupportedModel      = errors.New("unsupported model")
	ErrUnsupportedFeature    = errors.New("unsupported feature")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrServerError           = errors.New("server error")
	ErrHTTPError             = errors.New("http error")
	ErrNetworkError          = errors.New("network error")
	ErrDecodingError         = errors.New("decoding error")
	ErrEncodingError         = errors.New("encoding error")
	ErrTimeout               = errors.New("timeout")
	ErrUnknown               = errors.New("unknown error")
	ErrProviderNotRegistered = errors.New("provider not registered")
)

// ErrorKind is the closed taxonomy every provider failure is mapped onto.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindMissingAPIKey
	KindInvalidAPIKey
	KindInvalidConfiguration
	KindInvalidURL
	KindInvalidRequest
	KindUnsupportedModel
	KindUnsupportedFeature
	KindAuthenticationFailed
	KindRateLimitExceeded
	KindServerError
	KindHTTPError
	KindNetworkError
	KindDecodingError
	KindEncodingError
	KindTimeout
)

var kindSentinels = map[ErrorKind]error{
	KindUnknown:              ErrUnknown,
	KindMissingAPIKey:        ErrMissingAPIKey,
	KindInvalidAPIKey:        ErrInvalidAPIKey,
	KindInvalidConfiguration: ErrInvalidConfiguration,
	KindInvalidURL:           ErrInvalidURL,
	KindInvalidRequest:       ErrInvalidRequest,
	KindUnsupportedModel:     ErrUnsupportedModel,
	KindUnsupportedFeature:   ErrUnsupportedFeature,
	KindAuthenticationFailed: ErrAuthenticationFailed,
	KindRateLimitExceeded:    ErrRateLimitExceeded,
	KindServerError:          ErrServerError,
	KindHTTPError:            ErrHTTPError,
	KindNetworkError:         ErrNetworkError,
	KindDecodingError:        ErrDecodingError,
	KindEncodingError:        ErrEncodingError,
	KindTimeout:              ErrTimeout,
}

func (k ErrorKind) Sentinel() error {
	if err, ok := kindSentinels[k]; ok {
		return err
	}
	return ErrUnknown
}

func (k ErrorKind) String() string {
	switch k {
	case KindMissingAPIKey:
		return "missing_api_key"
	case KindInvalidAPIKey:
		return "invalid_api_key"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindInvalidURL:
		return "invalid_url"
	case KindInvalidRequest:
		return "invalid_request"
	case KindUnsupportedModel:
		return "unsupported_model"
	case KindUnsupportedFeature:
		return "unsupported_feature"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindServerError:
		return "server_error"
	case KindHTTPError:
		return "http_error"
	case KindNetworkError:
		return "network_error"
	case KindDecodingError:
		return "decoding_error"
	case KindEncodingError:
		return "encoding_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ProviderError carries enough context to render an actionable message
// without vendor-specific knowledge. StatusCode is zero when no HTTP
// exchange took place.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Kind.Sentinel().Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so errors.Is(err,
// ErrRateLimitExceeded) works on wrapped provider errors.
func (e *ProviderError) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

func NewProviderError(kind ErrorKind, provider, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message}
}

// ContextError maps a cancelled or expired context onto the taxonomy.
func ContextError(provider string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Provider: provider, Message: "request timed out", Err: err}
	}
	return &ProviderError{Kind: KindNetworkError, Provider: provider, Message: "request cancelled", Err: err}
}

// KindOf extracts the taxonomy kind from any error, defaulting to KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind, sentinel := range kindSentinels {
		if kind != KindUnknown && errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// StatusCodeOf returns the HTTP status carried by err, or zero.
func StatusCodeOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

var _ error = (*ProviderError)(nil)
