// Package router 提供 HTTP 路由注册
// 本文件定义 WebSocket 相关的路由
package router

import (
	"github.com/gin-gonic/gin"

	"private_chat_server/internal/handler"
)

// RegisterWebSocketRoutes 注册 WebSocket 相关路由
// 鉴权在升级后的 WebSocket 信道内完成（浏览器无法为握手请求设置自定义头）
func RegisterWebSocketRoutes(r *gin.Engine) {
	// WebSocket 连接入口
	// 请求示例: ws://host:port/ws/chat?token=xxx
	r.GET("/ws/chat", handler.WsConnectHandler)
}
