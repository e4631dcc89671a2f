// gateway.go
// WebSocket 接入网关
// 升级连接后校验 JWT，身份无效时回错误信封并关连接
// 上下线同时维护登记表和用户表的在线时间戳
package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"private_chat_server/pkg/constants"
	myjwt "private_chat_server/pkg/util/jwt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  constants.WS_READ_BUFFER,
	WriteBufferSize: constants.WS_WRITE_BUFFER,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// extractToken 从 query 或 Authorization 头取 token
func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// HandleConnection 接入一个 WebSocket 连接
func (cs *ChatServer) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("websocket 升级失败", zap.Error(err))
		return
	}

	uc := newUserConn(conn, "", "", uuid.NewString())

	token := extractToken(c)
	if token == "" {
		cs.rejectConn(uc, "缺少身份令牌")
		return
	}
	claims, err := myjwt.ParseToken(token)
	if err != nil {
		cs.rejectConn(uc, "身份令牌无效")
		return
	}
	user, err := cs.repos.User.FindByUuid(claims.UserID)
	if err != nil {
		cs.rejectConn(uc, "用户不存在")
		return
	}

	uc.UserId = user.Uuid
	uc.Role = user.Role

	cs.Registry.Register(uc)
	if err := cs.repos.User.UpdateOnlineAt(user.Uuid); err != nil {
		zap.L().Error("记录上线时间失败", zap.String("userId", user.Uuid), zap.Error(err))
	}

	go uc.writeLoop()
	uc.sendEnvelope(EventSuccess, SuccessEnvelope(userToBrief(user), "连接成功"))

	go func() {
		uc.readLoop(cs.Broker)
		cs.Registry.Unregister(uc)
		if err := cs.repos.User.UpdateOfflineAt(user.Uuid); err != nil {
			zap.L().Error("记录离线时间失败", zap.String("userId", user.Uuid), zap.Error(err))
		}
	}()
}

// rejectConn 鉴权失败时回错误信封并关闭连接
func (cs *ChatServer) rejectConn(uc *UserConn, reason string) {
	frame, err := marshalOutFrame(EventError, ErrorEnvelope(reason))
	if err == nil {
		_ = uc.conn.WriteMessage(websocket.TextMessage, frame)
	}
	uc.Close()
	zap.L().Warn("连接鉴权失败", zap.String("reason", reason))
}
