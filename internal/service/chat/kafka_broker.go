// kafka_broker.go
// EventBroker 的 Kafka 实现
// 多实例部署时所有网关把入站事件写入同一 topic，由消费组内的实例分发
// 注意：经过 Kafka 的事件丢失了原始连接指针，错误回执退化为推送给该用户的全部在线端
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"private_chat_server/internal/config"
)

// KafkaBroker 基于 Kafka 的事件通道
type KafkaBroker struct {
	producer   *kafka.Writer
	consumer   *kafka.Reader
	dispatcher *Dispatcher
	done       chan struct{}
}

// NewKafkaBroker 创建 Kafka 事件通道
func NewKafkaBroker(dispatcher *Dispatcher) *KafkaBroker {
	kafkaConfig := config.GetConfig().KafkaConfig
	producer := &kafka.Writer{
		Addr:                   kafka.TCP(kafkaConfig.HostPort),
		Topic:                  kafkaConfig.ChatTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           kafkaConfig.Timeout * time.Second,
		RequiredAcks:           kafka.RequireNone,
		AllowAutoTopicCreation: false,
	}
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{kafkaConfig.HostPort},
		Topic:          kafkaConfig.ChatTopic,
		CommitInterval: kafkaConfig.Timeout * time.Second,
		GroupID:        "private_chat",
		StartOffset:    kafka.LastOffset,
	})
	return &KafkaBroker{
		producer:   producer,
		consumer:   consumer,
		dispatcher: dispatcher,
		done:       make(chan struct{}),
	}
}

// Publish 序列化事件写入 Kafka
// 以用户 id 作为 key，保证同一用户的事件落到同一分区内有序
func (b *KafkaBroker) Publish(evt *inboundEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.producer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(evt.UserId),
		Value: value,
	})
}

// Start 启动消费循环
func (b *KafkaBroker) Start() {
	go func() {
		for {
			select {
			case <-b.done:
				return
			default:
			}
			message, err := b.consumer.ReadMessage(context.Background())
			if err != nil {
				zap.L().Error("kafka 读取消息失败", zap.Error(err))
				continue
			}
			var evt inboundEvent
			if err := json.Unmarshal(message.Value, &evt); err != nil {
				zap.L().Error("kafka 消息反序列化失败", zap.Error(err))
				continue
			}
			b.dispatcher.Dispatch(&evt)
		}
	}()
}

// Close 关闭生产者和消费者
func (b *KafkaBroker) Close() {
	close(b.done)
	if err := b.producer.Close(); err != nil {
		zap.L().Error(err.Error())
	}
	if err := b.consumer.Close(); err != nil {
		zap.L().Error(err.Error())
	}
}
