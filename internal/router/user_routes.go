// Package router 提供 HTTP 路由注册
// 本文件定义用户相关的路由
package router

import (
	"github.com/gin-gonic/gin"

	"private_chat_server/internal/handler"
	"private_chat_server/internal/infrastructure/middleware"
)

// RegisterUserRoutes 注册用户相关路由（需要认证）
func RegisterUserRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.Use(middleware.JWTAuth())
	{
		api.GET("/profile", handler.ProfileHandler)
	}
}
