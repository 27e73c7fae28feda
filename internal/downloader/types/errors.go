package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindAuth    ErrorKind = "auth"
	KindParse   ErrorKind = "parse"
	KindTimeout ErrorKind = "timeout"
	KindUnknown ErrorKind = "unknown"
)

// ProviderError is the single error family raised across the driver boundary.
type ProviderError struct {
	Kind   ErrorKind
	Client ClientType
	Op     string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Client == "" {
		return fmt.Sprintf("%s %s error: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s %s error: %v", e.Client, e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError of the given kind.
func NewProviderError(kind ErrorKind, client ClientType, op string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Client: client, Op: op, Err: err}
}

// Classify wraps err into a ProviderError, inferring the kind. Errors that are
// already ProviderErrors are returned unchanged.
func Classify(client ClientType, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Kind: kindOf(err), Client: client, Op: op, Err: err}
}

// IsKind reports whether err is a ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return KindAuth
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindParse
	}

	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr), errors.Is(err, syscall.ECONNREFUSED):
		return KindNetwork
	case errors.As(err, &urlErr):
		return KindNetwork
	}

	return KindUnknown
}
