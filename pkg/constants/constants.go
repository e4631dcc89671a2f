package constants

const (
	CHANNEL_SIZE      = 100 // 通道大小
	SEND_QUEUE_SIZE   = 64  // 单连接发送队列大小
	REDIS_TIMEOUT     = 1   // redis timeout (分钟)
	DEFAULT_PAGE_SIZE = 10  // 会话列表默认分页大小
	CACHE_WORKER_NUM  = 15  // 缓存异步 Worker 数量
	CACHE_BUFFER_SIZE = 3000
	WS_READ_BUFFER    = 2048
	WS_WRITE_BUFFER   = 2048
	CALL_RING_TIMEOUT = 60 // 来电振铃超时 (秒)
)
