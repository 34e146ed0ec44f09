package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaymentReference_RoundTripsUserID(t *testing.T) {
	ref := NewPaymentReference("u123")
	assert.True(t, strings.HasPrefix(ref, "TXN-"))

	userID, err := UserIDFromReference(ref)
	require.NoError(t, err)
	assert.Equal(t, "u123", userID)
}

func TestUserIDFromReference_HandlesHyphenatedUserIDs(t *testing.T) {
	ref := NewPaymentReference("user-with-dashes")
	userID, err := UserIDFromReference(ref)
	require.NoError(t, err)
	assert.Equal(t, "user-with-dashes", userID)
}

func TestUserIDFromReference_RejectsMalformedReferences(t *testing.T) {
	cases := []string{
		"",
		"TXN",
		"TXN-1700000000",
		"TXN-1700000000-ab12de",        // 只有时间戳和后缀，没有用户
		"ORD-1700000000-u123-ab12de",   // 错误前缀
		"TXN-notatimestamp-u123-ab12de",
	}
	for _, ref := range cases {
		_, err := UserIDFromReference(ref)
		assert.ErrorIsf(t, err, ErrNotFound, "reference %q", ref)
	}
}

func TestUserIDFromReference_ParsesHandwrittenReference(t *testing.T) {
	userID, err := UserIDFromReference("TXN-1700000000-u123-ab12de")
	require.NoError(t, err)
	assert.Equal(t, "u123", userID)
}

func TestNewOrderReference_DistinctFromPaymentReference(t *testing.T) {
	orderRef := NewOrderReference("u123")
	assert.True(t, strings.HasPrefix(orderRef, "ORD-"))

	// 订单引用不满足支付引用契约，恢复路径不会误解析它
	_, err := UserIDFromReference(orderRef)
	assert.Error(t, err)
}
