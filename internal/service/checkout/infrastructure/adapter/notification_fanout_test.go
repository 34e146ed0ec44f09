// internal/service/checkout/infrastructure/adapter/notification_fanout_test.go
package adapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"bazaar/internal/service/checkout/domain"
)

type fakeProducer struct {
	err   error
	calls int
}

func (p *fakeProducer) SendOrderNotification(_ context.Context, _ *domain.NotificationEvent) error {
	p.calls++
	return p.err
}

func notificationEvent() *domain.NotificationEvent {
	return &domain.NotificationEvent{UserID: "u123", Kind: domain.NotifyPaymentConfirmed}
}

func TestFanoutNotifier_PrimaryFailureSurfacesDespiteBestEffortSuccess(t *testing.T) {
	primary := &fakeProducer{err: fmt.Errorf("broker unreachable")}
	realtime := &fakeProducer{} // 在线推送成功不能遮蔽可靠主路的故障
	notifier := NewFanoutNotifier(primary, realtime)

	err := notifier.SendOrderNotification(context.Background(), notificationEvent())
	assert.ErrorIs(t, err, primary.err)
	assert.Equal(t, 1, realtime.calls)
}

func TestFanoutNotifier_BestEffortFailureDoesNotAffectResult(t *testing.T) {
	primary := &fakeProducer{}
	realtime := &fakeProducer{err: fmt.Errorf("buffer full")}
	notifier := NewFanoutNotifier(primary, realtime)

	err := notifier.SendOrderNotification(context.Background(), notificationEvent())
	assert.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, realtime.calls)
}

func TestFanoutNotifier_AllTargetsCalledOnSuccess(t *testing.T) {
	primary := &fakeProducer{}
	realtime := &fakeProducer{}
	notifier := NewFanoutNotifier(primary, realtime)

	assert.NoError(t, notifier.SendOrderNotification(context.Background(), notificationEvent()))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, realtime.calls)
}
