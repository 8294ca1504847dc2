package courier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/naturemedica/commerce/internal/domain"

	"github.com/sony/gobreaker"
)

// Adapter construction errors.
var (
	ErrMissingCredentials = &domain.Error{Code: domain.EINTERNAL, Message: "Courier provider credentials are required"}
	ErrMissingBaseURL     = &domain.Error{Code: domain.EINTERNAL, Message: "Courier provider base URL is required"}
)

// billingMarkers are substrings of provider error messages that indicate an
// exhausted prepaid courier wallet. Matched case-insensitively.
var billingMarkers = []string{
	"enough balance",
	"insufficient balance",
	"insufficient funds",
	"low wallet",
	"wallet balance",
	"recharge",
}

// isBillingMessage reports whether a provider error message indicates an
// insufficient wallet balance.
func isBillingMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range billingMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classifyStatus maps a provider HTTP response into the error taxonomy.
// The provider's own message is kept verbatim so admin staff can act on it.
func classifyStatus(op string, status int, message string) error {
	if message == "" {
		message = fmt.Sprintf("courier request failed with status %d", status)
	}

	switch {
	case status == 402 || isBillingMessage(message):
		return &domain.Error{
			Code:    domain.EPAYMENT,
			Op:      op,
			Message: fmt.Sprintf("Courier wallet balance exhausted, recharge required: %s", message),
		}
	case status == 401 || status == 403:
		return &domain.Error{Code: domain.EAUTH, Op: op, Message: message}
	case status == 404:
		return &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: message}
	case status >= 400 && status < 500:
		return &domain.Error{Code: domain.EINVALID, Op: op, Message: message}
	default:
		return &domain.Error{Code: domain.ETRANSIENT, Op: op, Message: message}
	}
}

// classifyTransport maps transport-level failures (timeouts, DNS, refused
// connections, open circuit breaker) into the retryable error kind. A timeout
// is never treated as success.
func classifyTransport(op string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.As(err, &netErr):
		return &domain.Error{
			Code:    domain.ETRANSIENT,
			Op:      op,
			Message: "Courier service unreachable, try again shortly",
			Err:     err,
		}
	default:
		return &domain.Error{
			Code:    domain.ETRANSIENT,
			Op:      op,
			Message: "Courier request failed",
			Err:     err,
		}
	}
}
