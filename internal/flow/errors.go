// internal/flow/errors.go
package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrClassifier marks a classifier failure. It aborts the run.
	ErrClassifier = errors.New("classifier failure")
	// ErrDiscovery marks a failure to find a starting URL.
	ErrDiscovery = errors.New("homepage discovery failed")
)

// ErrorKind classifies recorded failures. It prefixes LastError and labels metrics.
type ErrorKind string

const (
	KindRecoverableNavigation ErrorKind = "RecoverableNavigationFailure"
	KindVerificationNegative  ErrorKind = "VerificationNegative"
	KindRetryExhausted        ErrorKind = "RetryExhausted"
	KindMissingCredentials    ErrorKind = "MissingCredentials"
	KindClassifierFailure     ErrorKind = "ClassifierFailure"
)

// Describe renders a LastError value.
func (k ErrorKind) Describe(format string, args ...interface{}) string {
	return fmt.Sprintf("%s: %s", k, fmt.Sprintf(format, args...))
}

// KindOf extracts the kind prefix from a LastError value, or "" if none.
func KindOf(lastError string) ErrorKind {
	for _, k := range []ErrorKind{KindRecoverableNavigation, KindVerificationNegative, KindRetryExhausted, KindMissingCredentials, KindClassifierFailure} {
		if len(lastError) > len(k) && lastError[:len(k)] == string(k) && lastError[len(k)] == ':' {
			return k
		}
	}
	return ""
}
