// conn.go
// 单个 websocket 连接的读写泵
// 同一用户允许多端在线，每端对应一个 UserConn
package chat

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"private_chat_server/internal/model"
	"private_chat_server/pkg/constants"
	"private_chat_server/pkg/errorx"
)

// UserConn 在线会话
type UserConn struct {
	UserId    string
	Role      model.UserRole
	SessionId string

	conn      *websocket.Conn
	sendBack  chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newUserConn(conn *websocket.Conn, userId string, role model.UserRole, sessionId string) *UserConn {
	return &UserConn{
		UserId:    userId,
		Role:      role,
		SessionId: sessionId,
		conn:      conn,
		sendBack:  make(chan []byte, constants.SEND_QUEUE_SIZE),
		done:      make(chan struct{}),
	}
}

// enqueue 非阻塞投递
// 队列满说明前端消费过慢，丢弃该帧避免拖垮其他会话
func (c *UserConn) enqueue(data []byte) {
	select {
	case c.sendBack <- data:
	case <-c.done:
	default:
		zap.L().Warn("发送队列已满，丢弃消息", zap.String("userId", c.UserId), zap.String("sessionId", c.SessionId))
	}
}

// marshalOutFrame 序列化一个出站帧
func marshalOutFrame(event string, env Envelope) ([]byte, error) {
	return json.Marshal(OutFrame{Event: event, Payload: env})
}

// sendEnvelope 直接向该会话推送一帧
func (c *UserConn) sendEnvelope(event string, env Envelope) {
	data, err := marshalOutFrame(event, env)
	if err != nil {
		zap.L().Error("序列化出站帧失败", zap.Error(err))
		return
	}
	c.enqueue(data)
}

// readLoop 读泵
// 解析入站帧后交给事件代理，解析或投递失败直接回错误信封
func (c *UserConn) readLoop(broker EventBroker) {
	defer c.Close()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Warn("连接异常断开", zap.String("userId", c.UserId), zap.Error(err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			c.sendEnvelope(EventError, ErrorEnvelope(errorx.ErrInvalidParam.Msg))
			continue
		}
		evt := &inboundEvent{
			UserId: c.UserId,
			Role:   c.Role,
			Event:  frame.Event,
			Data:   frame.Data,
			conn:   c,
		}
		if err := broker.Publish(evt); err != nil {
			zap.L().Error("事件投递失败", zap.String("event", frame.Event), zap.Error(err))
			c.sendEnvelope(EventError, ErrorEnvelope(errorx.ErrServerBusy.Msg))
		}
	}
}

// writeLoop 写泵
func (c *UserConn) writeLoop() {
	for {
		select {
		case data, ok := <-c.sendBack:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				zap.L().Error("写入消息失败", zap.String("userId", c.UserId), zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close 关闭连接，幂等
func (c *UserConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
