package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEvent_ChargeSuccess(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"TXN-1-u123-abc","amount":10750,"status":"success"}}`)
	ev, err := ParseWebhookEvent(body)
	require.NoError(t, err)
	assert.Equal(t, WebhookChargeSuccess, ev.Kind)
	assert.Equal(t, "TXN-1-u123-abc", ev.Reference)
	assert.Equal(t, int64(10750), ev.Amount)
}

func TestParseWebhookEvent_ChargeFailed(t *testing.T) {
	body := []byte(`{"event":"charge.failed","data":{"reference":"TXN-1-u123-abc","status":"failed"}}`)
	ev, err := ParseWebhookEvent(body)
	require.NoError(t, err)
	assert.Equal(t, WebhookChargeFailed, ev.Kind)
}

func TestParseWebhookEvent_UnknownKindIsTagged(t *testing.T) {
	body := []byte(`{"event":"subscription.create","data":{"reference":"SUB-1"}}`)
	ev, err := ParseWebhookEvent(body)
	require.NoError(t, err)
	assert.Equal(t, WebhookUnknown, ev.Kind)
}

func TestParseWebhookEvent_RejectsMalformedBodies(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{}`),
		[]byte(`{"data":{"reference":"TXN-1"}}`),
		[]byte(`{"event":"charge.success","data":{}}`), // 成功事件必须带引用
	}
	for _, body := range cases {
		_, err := ParseWebhookEvent(body)
		assert.ErrorIsf(t, err, ErrValidation, "body %s", body)
	}
}

func TestNotificationKindForStatus(t *testing.T) {
	kind, ok := NotificationKindForStatus(StatusPaid)
	require.True(t, ok)
	assert.Equal(t, NotifyPaymentConfirmed, kind)

	kind, ok = NotificationKindForStatus(StatusCancelled)
	require.True(t, ok)
	assert.Equal(t, NotifyOrderCancelled, kind)

	kind, ok = NotificationKindForStatus(StatusDelivered)
	require.True(t, ok)
	assert.Equal(t, NotifyOrderDelivered, kind)

	kind, ok = NotificationKindForStatus(StatusFailed)
	require.True(t, ok)
	assert.Equal(t, NotifyPaymentFailed, kind)

	// 创建本身不触发通知
	_, ok = NotificationKindForStatus(StatusPending)
	assert.False(t, ok)
}
