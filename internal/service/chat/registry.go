// registry.go
// 在线会话登记表
// 维护 用户 -> 在线连接集合 的映射，支持同一用户多端在线
package chat

import (
	"sync"

	"go.uber.org/zap"
)

// SessionRegistry 在线会话登记表，并发安全
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*UserConn]struct{}
}

// NewSessionRegistry 创建空登记表
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]map[*UserConn]struct{}),
	}
}

// Register 登记一个在线连接
func (r *SessionRegistry) Register(c *UserConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[c.UserId]
	if !ok {
		set = make(map[*UserConn]struct{})
		r.sessions[c.UserId] = set
	}
	set[c] = struct{}{}
	zap.L().Info("会话上线", zap.String("userId", c.UserId),
		zap.String("sessionId", c.SessionId), zap.Int("sessions", len(set)))
}

// Unregister 注销连接
// 该用户最后一个连接下线时移除用户键，保证 Online 判定准确
func (r *SessionRegistry) Unregister(c *UserConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[c.UserId]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.sessions, c.UserId)
	}
	zap.L().Info("会话下线", zap.String("userId", c.UserId),
		zap.String("sessionId", c.SessionId), zap.Int("sessions", len(set)))
}

// Online 该用户是否至少有一个在线连接
func (r *SessionRegistry) Online(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userId]) > 0
}

// SessionsFor 返回该用户所有在线连接的快照
func (r *SessionRegistry) SessionsFor(userId string) []*UserConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sessions[userId]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*UserConn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast 向一组用户的所有在线连接推送同一事件
// 只序列化一次，离线用户静默跳过
func (r *SessionRegistry) Broadcast(userIds []string, event string, env Envelope) {
	data, err := marshalOutFrame(event, env)
	if err != nil {
		zap.L().Error("序列化广播帧失败", zap.String("event", event), zap.Error(err))
		return
	}

	r.mu.RLock()
	conns := make([]*UserConn, 0, len(userIds))
	for _, uid := range userIds {
		for c := range r.sessions[uid] {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(data)
	}
}

// NotifyUser 向单个用户的所有在线连接推送事件
func (r *SessionRegistry) NotifyUser(userId string, event string, env Envelope) {
	r.Broadcast([]string{userId}, event, env)
}
