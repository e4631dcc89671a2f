package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"private_chat_server/internal/config"
	dao "private_chat_server/internal/dao/mysql"
	myredis "private_chat_server/internal/dao/redis"
	"private_chat_server/internal/handler"
	"private_chat_server/internal/https_server"
	"private_chat_server/internal/infrastructure/logger"
	"private_chat_server/internal/service/chat"
	"private_chat_server/pkg/util/jwt"
	"private_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, "dev"); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功")

	// 3. 初始化参数校验翻译器
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("翻译器初始化失败", zap.Error(err))
	}

	// 4. 初始化数据库
	repos := dao.Init()
	zap.L().Info("数据库初始化成功")

	// 5. 初始化 Redis
	myredis.Init()
	zap.L().Info("Redis 初始化成功")

	// 6. 初始化 JWT
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry, conf.JWTConfig.RefreshTokenExpiry)
	zap.L().Info("JWT 初始化成功")

	// 7. 初始化雪花算法
	snowflake.Init(conf.SnowflakeConfig.MachineID)
	zap.L().Info("雪花算法初始化成功")

	// 8. 初始化 ChatServer（根据配置选择 channel 或 kafka 事件通道）
	chatServer := chat.Init(chat.ChatServerConfig{
		Mode:         conf.KafkaConfig.MessageMode,
		Repos:        repos,
		CacheService: myredis.GetCacheService(),
	})
	zap.L().Info("ChatServer 初始化成功", zap.String("mode", conf.KafkaConfig.MessageMode))

	// 9. 初始化 HTTP 服务器
	engine := https_server.Init()
	zap.L().Info("HTTP 服务器初始化成功")

	// 10. 启动服务
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port
	go func() {
		if err := engine.Run(fmt.Sprintf("%s:%d", host, port)); err != nil {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	// 设置信号监听，等待退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("关闭服务器...")
	chatServer.Close()
	zap.L().Info("服务器已关闭")
}
