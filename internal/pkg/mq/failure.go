// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// 死信消息头：保留消息的原始位置与失败原因，便于排查和人工回放。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
)

// FailureHandler 把处理失败的消息转投到死信 topic。
// 消费组的位点是整个分区一起推进的：跳过一条消息再提交后面的位点，
// 这条消息就永远回不来了。所以失败的消息必须先安置到死信队列，
// 移交成功后原 topic 的位点才能提交。
type FailureHandler struct {
	writer *kafka.Writer
}

func NewFailureHandler(writer *kafka.Writer) *FailureHandler {
	return &FailureHandler{writer: writer}
}

func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) error {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
		),
	}
	return pkgerrors.Wrap(h.writer.WriteMessages(ctx, dead), "failed to hand message over to dead letter topic")
}
