package services

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrUnavailable marks a service that is structurally unreachable (outage,
	// revoked credentials, schema-invalid responses). Never retried.
	ErrUnavailable = errors.New("service unavailable")
	// ErrInvalidRequest marks a request the remote side rejected as unprocessable.
	ErrInvalidRequest = errors.New("invalid request")
	ErrTransient      = errors.New("transient failure")
	ErrTimeout        = errors.New("timeout")
	ErrRateLimited    = errors.New("rate limited")
	// ErrContractViolation marks malformed input handed to a pure component.
	ErrContractViolation = errors.New("contract violation")
	ErrConfiguration     = errors.New("configuration error")
	ErrExternalTool      = errors.New("external tool error")
	ErrValidation        = errors.New("validation error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsContractViolation reports whether err signals a caller bug rather than a
// service fault.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// HTTPStatusMarker maps a non-success HTTP status onto a marker.
// 503 and authentication failures mean the service is unreachable for this
// run; other 4xx reject the request itself.
func HTTPStatusMarker(status int) error {
	switch {
	case status == http.StatusServiceUnavailable,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden:
		return ErrUnavailable
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= http.StatusInternalServerError:
		return ErrTransient
	case status >= http.StatusBadRequest:
		return ErrInvalidRequest
	default:
		return ErrTransient
	}
}

// TransportMarker maps an error from http.Client.Do onto a marker.
func TransportMarker(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrTransient
}
