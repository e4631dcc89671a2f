// broker.go
// 事件通道抽象
// channel 模式适合单机部署，kafka 模式用于多实例水平扩展
package chat

import (
	"private_chat_server/pkg/constants"
	"private_chat_server/pkg/errorx"
)

// EventBroker 入站事件的传输通道
// Publish 由读泵调用，Start 启动消费循环并把事件交给分发器
type EventBroker interface {
	Publish(evt *inboundEvent) error
	Start()
	Close()
}

// ChannelBroker 进程内 channel 实现，默认模式
type ChannelBroker struct {
	transmit   chan *inboundEvent
	dispatcher *Dispatcher
	done       chan struct{}
}

// NewChannelBroker 创建进程内事件通道
func NewChannelBroker(dispatcher *Dispatcher) *ChannelBroker {
	return &ChannelBroker{
		transmit:   make(chan *inboundEvent, constants.CHANNEL_SIZE),
		dispatcher: dispatcher,
		done:       make(chan struct{}),
	}
}

// Publish 非阻塞投递，已关闭或通道满时返回繁忙错误
func (b *ChannelBroker) Publish(evt *inboundEvent) error {
	select {
	case <-b.done:
		return errorx.ErrServerBusy
	default:
	}
	select {
	case b.transmit <- evt:
		return nil
	default:
		return errorx.ErrServerBusy
	}
}

// Start 启动消费循环
func (b *ChannelBroker) Start() {
	go func() {
		for {
			select {
			case evt := <-b.transmit:
				b.dispatcher.Dispatch(evt)
			case <-b.done:
				return
			}
		}
	}()
}

// Close 停止消费
func (b *ChannelBroker) Close() {
	close(b.done)
}
