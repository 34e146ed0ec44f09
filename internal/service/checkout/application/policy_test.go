package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/service/checkout/domain"
)

func policySnapshot(total int64, itemCount int) *domain.CartSnapshot {
	snap := &domain.CartSnapshot{UserID: "u123", Subtotal: total - 750, ShippingFee: 750, Total: total}
	for i := 0; i < itemCount; i++ {
		snap.Items = append(snap.Items, domain.SnapshotItem{ProductID: "p", Quantity: 1})
	}
	return snap
}

func TestCheckoutPolicy_EmptyRulesAlwaysPass(t *testing.T) {
	policy, err := NewCheckoutPolicy(nil)
	require.NoError(t, err)
	assert.NoError(t, policy.Evaluate(policySnapshot(10750, 2)))
}

func TestCheckoutPolicy_RejectsViolatingSnapshot(t *testing.T) {
	policy, err := NewCheckoutPolicy([]string{
		"total <= 50000",
		"item_count <= 10",
	})
	require.NoError(t, err)

	assert.NoError(t, policy.Evaluate(policySnapshot(10750, 2)))

	err = policy.Evaluate(policySnapshot(60000, 2))
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = policy.Evaluate(policySnapshot(10750, 11))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckoutPolicy_UserScopedRule(t *testing.T) {
	policy, err := NewCheckoutPolicy([]string{`user_id != "banned-user"`})
	require.NoError(t, err)

	assert.NoError(t, policy.Evaluate(policySnapshot(10750, 1)))

	snap := policySnapshot(10750, 1)
	snap.UserID = "banned-user"
	assert.ErrorIs(t, policy.Evaluate(snap), domain.ErrValidation)
}

func TestNewCheckoutPolicy_RejectsUncompilableRule(t *testing.T) {
	_, err := NewCheckoutPolicy([]string{"total <=< 100"})
	assert.Error(t, err)
}
