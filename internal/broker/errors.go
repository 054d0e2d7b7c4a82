// Package broker wraps the Alpaca equities API behind BrokerGateway (spec
// §4.1): typed operations, a taxonomy that separates transient from fatal
// failures, and resilience (retry, rate limiting) around the raw
// alpacahq/alpaca-trade-api-go/v3 client. The gateway uses one set of Alpaca
// credentials; it does no market-data vendor key rotation.
package broker

import (
	"errors"
	"strings"
)

// ErrorClass buckets a broker failure so callers know whether to retry,
// back off, or halt. Generalizes execution_service.go's checkCriticalError,
// which scanned err.Error() for "-2014"/connection phrases and halted
// trading; here the classification is a first-class return value instead
// of a side-effecting string scan.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTransient
	ClassRateLimited
	ClassPermanent
	ClassAlreadyTerminal
)

// ClassifiedError wraps a broker-call failure with its class.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify inspects a raw error from the alpaca client and buckets it.
// Alpaca's REST client does not export a structured error type for every
// status, so — same as checkCriticalError — this falls back to matching on
// the error text for the phrases Alpaca actually returns.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return ClassRateLimited
	case strings.Contains(msg, "already in pending") ||
		strings.Contains(msg, "already canceled") ||
		strings.Contains(msg, "order already filled") ||
		strings.Contains(msg, "already filled") ||
		strings.Contains(msg, "already in filled state") ||
		strings.Contains(msg, "cannot cancel filled order") ||
		strings.Contains(msg, "42210000") ||
		strings.Contains(msg, "position does not exist"):
		return ClassAlreadyTerminal
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504"):
		return ClassTransient
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "insufficient") ||
		strings.Contains(msg, "forbidden"):
		return ClassPermanent
	default:
		return ClassUnknown
	}
}

func IsRetryable(err error) bool {
	class := Classify(err)
	return class == ClassTransient || class == ClassRateLimited
}

var ErrMarketClosed = errors.New("broker: market is closed")
