// Package cacheerr defines the error kinds surfaced by the cache-aside repository
// and its backends.
//
// Every error is a platform error from github.com/jmgilman/go/errors, so callers
// can branch on the code (or on the Is* helpers below) regardless of how many
// times the error was wrapped with fmt.Errorf and %w on its way up.
//
//   - Configuration: a backend region or metadata region is missing. Fatal.
//   - NotFound: a lookup key is outside the store's domain.
//   - InvalidArgument: a mutation key is outside the store's domain.
//   - Network: a remote backend call failed. Retryable by classification, but
//     never retried by the repository itself.
package cacheerr

import (
	perrors "github.com/jmgilman/go/errors"
)

// Configuration builds a ConfigurationError.
func Configuration(format string, args ...interface{}) error {
	return perrors.Newf(perrors.CodeInvalidConfig, format, args...)
}

// WrapConfiguration marks cause as a ConfigurationError.
func WrapConfiguration(cause error, format string, args ...interface{}) error {
	return perrors.Wrapf(cause, perrors.CodeInvalidConfig, format, args...)
}

// NotFound builds a NotFoundError.
func NotFound(format string, args ...interface{}) error {
	return perrors.Newf(perrors.CodeNotFound, format, args...)
}

// InvalidArgument builds an InvalidArgumentError.
func InvalidArgument(format string, args ...interface{}) error {
	return perrors.Newf(perrors.CodeInvalidInput, format, args...)
}

// Network wraps a transport failure as a NetworkError. A nil cause yields nil.
func Network(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return perrors.Wrapf(cause, perrors.CodeNetwork, format, args...)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	return perrors.GetCode(err) == perrors.CodeInvalidConfig
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	return perrors.GetCode(err) == perrors.CodeNotFound
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	return perrors.GetCode(err) == perrors.CodeInvalidInput
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	return perrors.GetCode(err) == perrors.CodeNetwork
}

// Kind returns a short label for logs and metrics.
func Kind(err error) string {
	switch perrors.GetCode(err) {
	case perrors.CodeInvalidConfig:
		return "configuration"
	case perrors.CodeNotFound:
		return "not_found"
	case perrors.CodeInvalidInput:
		return "invalid_argument"
	case perrors.CodeNetwork:
		return "network"
	default:
		return "unknown"
	}
}
