// internal/service/checkout/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/metrics"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
)

// KafkaNotificationAdapter 把通知事件发布到 Kafka，
// 下游通知服务（邮件、短信）自行消费。以用户 ID 为 Key，
// 同一用户的通知落在同一分区，保持顺序。
type KafkaNotificationAdapter struct {
	writer *kafka.Writer
}

func NewKafkaNotificationAdapter(writer *kafka.Writer) *KafkaNotificationAdapter {
	return &KafkaNotificationAdapter{writer: writer}
}

func (a *KafkaNotificationAdapter) SendOrderNotification(ctx context.Context, event *domain.NotificationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal notification event")
	}
	err = mq.ProduceMessage(ctx, a.writer, []byte(event.UserID), value)
	return pkgerrors.Wrap(err, "failed to publish notification event")
}

// FanoutNotifier 把同一通知投给可靠主路和若干尽力而为的旁路
// （Kafka 是主路，WebSocket 推送是旁路）。主路的错误原样上抛，
// 由调用方记录并吞掉；旁路失败只在这里记日志、计数，不遮蔽主路结果。
type FanoutNotifier struct {
	primary    port.NotificationProducer
	bestEffort []port.NotificationProducer
}

func NewFanoutNotifier(primary port.NotificationProducer, bestEffort ...port.NotificationProducer) *FanoutNotifier {
	return &FanoutNotifier{primary: primary, bestEffort: bestEffort}
}

func (f *FanoutNotifier) SendOrderNotification(ctx context.Context, event *domain.NotificationEvent) error {
	for _, t := range f.bestEffort {
		if err := t.SendOrderNotification(ctx, event); err != nil {
			metrics.NotificationFailuresTotal.Inc()
			logger.Ctx(ctx).Error().Err(err).
				Str("user_id", event.UserID).
				Str("kind", string(event.Kind)).
				Msg("best-effort notification target failed")
		}
	}
	return f.primary.SendOrderNotification(ctx, event)
}
