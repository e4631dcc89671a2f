// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 接入与用户资料相关的请求
package handler

import (
	"github.com/gin-gonic/gin"

	"private_chat_server/internal/dao/mysql"
	"private_chat_server/internal/service/chat"
	"private_chat_server/pkg/errorx"
)

// WsConnectHandler WebSocket 连接入口
// GET /ws/chat?token=xxx
// 升级 HTTP 连接后在 WebSocket 内完成 JWT 鉴权，
// 鉴权失败通过错误信封告知前端并关闭连接
func WsConnectHandler(c *gin.Context) {
	chat.GetServer().HandleConnection(c)
}

// ProfileHandler 查询当前登录用户资料
// GET /api/profile
// 需要 JWT 认证中间件，user_id 由中间件写入上下文
func ProfileHandler(c *gin.Context) {
	userId := c.GetString("user_id")
	if userId == "" {
		HandleError(c, errorx.ErrUnauthorized)
		return
	}
	user, err := mysql.Repos.User.FindByUuid(userId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{
		"user_id":    user.Uuid,
		"name":       user.Name,
		"email":      user.Email,
		"avatar_url": user.AvatarUrl,
		"role":       user.Role,
	})
}
