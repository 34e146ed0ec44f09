// internal/service/checkout/interfaces/payment_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/service/checkout/domain"
)

type paymentReconciler interface {
	HandlePaymentEvent(ctx context.Context, event *domain.WebhookEvent) error
}

type failureSink interface {
	Handle(ctx context.Context, msg kafka.Message, cause error) error
}

// PaymentEventConsumer 消费 webhook 入队的支付事件并驱动对账。
// 处理失败的消息移交死信 topic 后才提交位点：位点是整个分区
// 一起推进的，跳过的消息不会再被重投，webhook 又早已回了 200，
// 丢在这里的确认就彻底丢了。
type PaymentEventConsumer struct {
	reader   *kafka.Reader
	checkout paymentReconciler
	failures failureSink
}

func NewPaymentEventConsumer(reader *kafka.Reader, checkout paymentReconciler, failures failureSink) *PaymentEventConsumer {
	return &PaymentEventConsumer{reader: reader, checkout: checkout, failures: failures}
}

// Run 阻塞消费直到 ctx 取消。
func (c *PaymentEventConsumer) Run(ctx context.Context) error {
	logger.L().Info().Str("topic", c.reader.Config().Topic).Msg("payment event consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		msgCtx := c.extractTrace(ctx, &msg)
		if !c.process(msgCtx, &msg) {
			// 死信移交也失败了：不提交，整条消息等待重投。
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Msg("failed to commit offset")
		}
	}
}

// process 返回该消息的位点是否可以提交。
func (c *PaymentEventConsumer) process(ctx context.Context, msg *kafka.Message) bool {
	err := c.handle(ctx, msg)
	if err == nil {
		return true
	}

	logger.Ctx(ctx).Error().Err(err).
		Str("key", string(msg.Key)).
		Msg("payment event processing failed, handing over to dead letter topic")

	if dltErr := c.failures.Handle(ctx, *msg, err); dltErr != nil {
		logger.Ctx(ctx).Error().Err(dltErr).
			Str("key", string(msg.Key)).
			Msg("dead letter hand-off failed, offset not committed")
		return false
	}
	return true
}

func (c *PaymentEventConsumer) handle(ctx context.Context, msg *kafka.Message) error {
	var event domain.WebhookEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 队列里出现解析不了的消息说明生产端有 bug；记录后吞掉，不堵死分区。
		logger.Ctx(ctx).Error().Err(err).Str("key", string(msg.Key)).Msg("dropping malformed payment event")
		return nil
	}
	return c.checkout.HandlePaymentEvent(ctx, &event)
}

func (c *PaymentEventConsumer) extractTrace(ctx context.Context, msg *kafka.Message) context.Context {
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

// Close 关闭底层 reader，释放消费组成员身份。
func (c *PaymentEventConsumer) Close() error {
	return c.reader.Close()
}
