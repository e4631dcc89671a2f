// server.go
// 聊天服务器聚合结构和依赖注入
// 封装登记表、事件通道、分发器和各业务服务，提供统一的生命周期管理
package chat

import (
	"time"

	"go.uber.org/zap"

	"private_chat_server/internal/dao/mysql"
	"private_chat_server/internal/dao/redis"
	"private_chat_server/pkg/constants"
)

// ChatServer 聊天服务器聚合结构
type ChatServer struct {
	// Registry 在线会话登记表
	Registry *SessionRegistry

	// Broker 事件通道，根据配置为 ChannelBroker 或 KafkaBroker
	Broker EventBroker

	// Dispatcher 事件分发器
	Dispatcher *Dispatcher

	// Messages / Calls / RTC / Conversations 各业务服务
	Messages      *MessageService
	Calls         *CallService
	RTC           *RTCService
	Conversations *ConversationService

	repos *mysql.Repositories
	mode  string
}

// ChatServerConfig 聊天服务器配置
type ChatServerConfig struct {
	Mode         string // "channel" 或 "kafka"
	Repos        *mysql.Repositories
	CacheService redis.AsyncCacheService
}

// NewChatServer 创建聊天服务器实例
// 根据配置选择进程内通道或 Kafka 作为事件通道
func NewChatServer(cfg ChatServerConfig) *ChatServer {
	registry := NewSessionRegistry()
	conversations := NewConversationService(cfg.Repos, cfg.CacheService)
	messages := NewMessageService(cfg.Repos, registry, conversations)
	calls := NewCallService(cfg.Repos, registry).
		WithRingTimeout(constants.CALL_RING_TIMEOUT * time.Second)
	rtc := NewRTCService(cfg.Repos, registry)
	dispatcher := NewDispatcher(registry, messages, calls, rtc, conversations)

	cs := &ChatServer{
		Registry:      registry,
		Dispatcher:    dispatcher,
		Messages:      messages,
		Calls:         calls,
		RTC:           rtc,
		Conversations: conversations,
		repos:         cfg.Repos,
		mode:          cfg.Mode,
	}
	if cfg.Mode == "kafka" {
		cs.Broker = NewKafkaBroker(dispatcher)
	} else {
		cs.Broker = NewChannelBroker(dispatcher)
	}
	return cs
}

// Start 启动事件消费循环
func (cs *ChatServer) Start() {
	cs.Broker.Start()
	zap.L().Info("聊天服务器已启动", zap.String("mode", cs.mode))
}

// Close 关闭事件通道
func (cs *ChatServer) Close() {
	cs.Broker.Close()
	zap.L().Info("聊天服务器已关闭")
}

// defaultServer 全局实例，由 Init 装配，路由层通过 GetServer 访问
var defaultServer *ChatServer

// Init 装配全局聊天服务器并启动
func Init(cfg ChatServerConfig) *ChatServer {
	defaultServer = NewChatServer(cfg)
	defaultServer.Start()
	return defaultServer
}

// GetServer 获取全局聊天服务器实例
func GetServer() *ChatServer {
	return defaultServer
}
