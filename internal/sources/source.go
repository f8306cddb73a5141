// Package sources gathers candidate hostnames from passive and active
// signal sources behind one contract.
package sources

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Capability says what a source needs to run.
type Capability string

const (
	CapabilityHTTP    Capability = "http"
	CapabilityBrowser Capability = "browser"
	CapabilityLocal   Capability = "local"
)

// Source returns raw hostnames for domain. Results need not be
// normalised or deduplicated; the aggregator does that.
type Source interface {
	Name() string
	Capability() Capability
	Search(ctx context.Context, domain string) ([]string, error)
}

type ErrorType string

const (
	ErrTypeTimeout   ErrorType = "timeout"
	ErrTypeHTTP      ErrorType = "http_error"
	ErrTypeParse     ErrorType = "parse_error"
	ErrTypeRateLimit ErrorType = "rate_limit"
	ErrTypeNetwork   ErrorType = "network_error"
	ErrTypeUnknown   ErrorType = "unknown"
)

// SourceError is a failure of one source. It never stops the others.
type SourceError struct {
	Source     string
	Type       ErrorType
	Message    string
	StatusCode int
	Duration   time.Duration
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] %s: %s (status: %d, took: %v)",
			e.Type, e.Source, e.Message, e.StatusCode, e.Duration)
	}
	return fmt.Sprintf("[%s] %s: %s (took: %v)",
		e.Type, e.Source, e.Message, e.Duration)
}

func (e *SourceError) Unwrap() error { return e.Err }

func newHTTPError(source string, status int) *SourceError {
	typ := ErrTypeHTTP
	if status == 429 {
		typ = ErrTypeRateLimit
	}
	return &SourceError{
		Source:     source,
		Type:       typ,
		Message:    fmt.Sprintf("HTTP %d", status),
		StatusCode: status,
	}
}

func newParseError(source string, err error) *SourceError {
	return &SourceError{
		Source:  source,
		Type:    ErrTypeParse,
		Message: err.Error(),
		Err:     err,
	}
}

// Normalize lowercases name, strips a leading wildcard label and the
// trailing dot, and reports whether the result lies under domain.
func Normalize(name, domain string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimSuffix(name, ".")
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")

	if name == "" || strings.ContainsAny(name, " /:@*") {
		return "", false
	}
	if !strings.HasSuffix(name, "."+domain) {
		return "", false
	}
	return name, true
}
