package courier

import (
	"context"
	"testing"

	"github.com/naturemedica/commerce/internal/domain"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		wantCode string
	}{
		{"payment required status", 402, "payment required", domain.EPAYMENT},
		{"wallet message on 400", 400, "You don't have enough balance in your wallet", domain.EPAYMENT},
		{"recharge message on 403", 403, "Please recharge your account", domain.EPAYMENT},
		{"unauthorized", 401, "invalid token", domain.EAUTH},
		{"forbidden", 403, "access denied", domain.EAUTH},
		{"not found", 404, "no shipment", domain.ENOTFOUND},
		{"validation failure", 422, "pincode is invalid", domain.EINVALID},
		{"server error", 502, "bad gateway", domain.ETRANSIENT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus("test.op", tt.status, tt.message)
			assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
		})
	}
}

func TestClassifyStatus_KeepsProviderMessageVerbatim(t *testing.T) {
	err := classifyStatus("test.op", 400, "Invalid pickup location name")
	assert.Equal(t, "Invalid pickup location name", domain.ErrorMessage(err))
}

func TestClassifyStatus_BillingMessageMentionsRecharge(t *testing.T) {
	err := classifyStatus("test.op", 400, "not enough balance in wallet")
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "recharge required")
	assert.Contains(t, domain.ErrorMessage(err), "not enough balance in wallet")
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", context.DeadlineExceeded},
		{"canceled", context.Canceled},
		{"breaker open", gobreaker.ErrOpenState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyTransport("test.op", tt.err)
			assert.Equal(t, domain.ETRANSIENT, domain.ErrorCode(err))
		})
	}
}
