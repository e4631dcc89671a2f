// conversation_service.go
// 会话读模型与会话生命周期
// 一个客户对应唯一一条会话，列表与详情读路径走 Redis 缓存，写路径负责失效
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"private_chat_server/internal/dao/mysql"
	"private_chat_server/internal/dao/redis"
	"private_chat_server/internal/model"
	"private_chat_server/pkg/constants"
	"private_chat_server/pkg/errorx"
)

// UserBrief 嵌入会话摘要的用户信息
type UserBrief struct {
	UserId    string         `json:"user_id"`
	Name      string         `json:"name"`
	Email     string         `json:"email,omitempty"`
	AvatarUrl string         `json:"avatar_url,omitempty"`
	Role      model.UserRole `json:"role"`
}

// ConversationSummary 会话列表条目
type ConversationSummary struct {
	ConversationId string          `json:"conversation_id"`
	Client         *UserBrief      `json:"client,omitempty"`
	LastMessage    *MessageRespond `json:"last_message,omitempty"`
	LastMessageAt  string          `json:"last_message_at,omitempty"`
}

// ConversationListRespond 会话列表
type ConversationListRespond struct {
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Items []ConversationSummary `json:"items"`
}

// TimelineItem 会话历史条目，消息和通话合并成一条时间线
type TimelineItem struct {
	Kind      string          `json:"kind"` // message / call
	Message   *MessageRespond `json:"message,omitempty"`
	Call      *CallRespond    `json:"call,omitempty"`
	CreatedAt string          `json:"created_at"`

	sortAt time.Time
}

// ConversationDetailRespond 会话详情
type ConversationDetailRespond struct {
	ConversationId string         `json:"conversation_id"`
	Client         *UserBrief     `json:"client,omitempty"`
	Total          int            `json:"total"`
	Page           int            `json:"page"`
	Limit          int            `json:"limit"`
	Items          []TimelineItem `json:"items"`
}

// ConversationService 会话业务
type ConversationService struct {
	repos *mysql.Repositories
	cache redis.AsyncCacheService

	// convLocks 按客户 uuid 加锁，防止并发首条消息创建出两条会话
	convLocks sync.Map
}

// NewConversationService 创建会话服务
func NewConversationService(repos *mysql.Repositories, cache redis.AsyncCacheService) *ConversationService {
	return &ConversationService{repos: repos, cache: cache}
}

func (s *ConversationService) clientLock(clientUuid string) *sync.Mutex {
	lock, _ := s.convLocks.LoadOrStore(clientUuid, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// FindOrCreateForClient 获取客户会话，不存在则建新会话
// 同一客户的并发首条消息会竞争建会话，这里用客户级互斥加双重检查串行化
func (s *ConversationService) FindOrCreateForClient(clientUuid string) (*model.Conversation, error) {
	conversation, err := s.repos.Conversation.FindByClientUuid(clientUuid)
	if err == nil {
		return conversation, nil
	}
	if !errorx.IsNotFound(err) {
		return nil, err
	}

	lock := s.clientLock(clientUuid)
	lock.Lock()
	defer lock.Unlock()

	conversation, err = s.repos.Conversation.FindByClientUuid(clientUuid)
	if err == nil {
		return conversation, nil
	}
	if !errorx.IsNotFound(err) {
		return nil, err
	}

	newConv := &model.Conversation{Uuid: uuid.NewString()}
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		if err := tx.Conversation.Create(newConv); err != nil {
			return err
		}
		return tx.Participant.Create(&model.ConversationParticipant{
			ConversationUuid: newConv.Uuid,
			UserUuid:         clientUuid,
			Type:             model.ParticipantUser,
		})
	})
	if err != nil {
		return nil, err
	}
	s.InvalidateCache(newConv.Uuid)
	return newConv, nil
}

// InitWithClient 管理员主动与客户建立会话
func (s *ConversationService) InitWithClient(adminUuid string, req *InitConversationRequest) (*ConversationSummary, error) {
	client, err := s.repos.User.FindByUuid(req.ClientId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "客户不存在")
		}
		return nil, err
	}
	if client.Role.IsOperator() {
		return nil, errorx.New(errorx.CodeInvalidParam, "目标用户不是客户")
	}

	conversation, err := s.FindOrCreateForClient(client.Uuid)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAdminParticipant(s.repos, conversation.Uuid, adminUuid); err != nil {
		return nil, err
	}
	return s.buildSummary(conversation)
}

// ensureAdminParticipant 管理员首次参与会话时补登记
func (s *ConversationService) ensureAdminParticipant(repos *mysql.Repositories, conversationUuid, adminUuid string) error {
	_, err := repos.Participant.FindByConversationAndUser(conversationUuid, adminUuid)
	if err == nil {
		return nil
	}
	if !errorx.IsNotFound(err) {
		return err
	}
	return repos.Participant.Create(&model.ConversationParticipant{
		ConversationUuid: conversationUuid,
		UserUuid:         adminUuid,
		Type:             model.ParticipantAdminGroup,
	})
}

// LoadList 管理员会话列表，按最近消息时间倒序分页
func (s *ConversationService) LoadList(req *LoadConversationsRequest) (*ConversationListRespond, error) {
	page, limit := normalizePage(req.Page, req.Limit)

	cacheKey := fmt.Sprintf("conversation_list_%d_%d", page, limit)
	if cached := s.readCache(cacheKey); cached != "" {
		var respond ConversationListRespond
		if err := json.Unmarshal([]byte(cached), &respond); err == nil {
			return &respond, nil
		}
	}

	conversations, total, err := s.repos.Conversation.FindPage(page, limit)
	if err != nil {
		return nil, err
	}

	respond := &ConversationListRespond{
		Total: total,
		Page:  page,
		Limit: limit,
		Items: make([]ConversationSummary, 0, len(conversations)),
	}
	for i := range conversations {
		summary, err := s.buildSummary(&conversations[i])
		if err != nil {
			zap.L().Error("构建会话摘要失败", zap.String("conversationId", conversations[i].Uuid), zap.Error(err))
			continue
		}
		respond.Items = append(respond.Items, *summary)
	}

	s.writeCache(cacheKey, respond)
	return respond, nil
}

// LoadSingle 单个会话历史，消息与通话合并时间线，倒序分页
func (s *ConversationService) LoadSingle(req *LoadSingleConversationRequest) (*ConversationDetailRespond, error) {
	page, limit := normalizePage(req.Page, req.Limit)

	cacheKey := fmt.Sprintf("conversation_%s_%d_%d", req.ConversationId, page, limit)
	if cached := s.readCache(cacheKey); cached != "" {
		var respond ConversationDetailRespond
		if err := json.Unmarshal([]byte(cached), &respond); err == nil {
			return &respond, nil
		}
	}

	conversation, err := s.repos.Conversation.FindByUuid(req.ConversationId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		return nil, err
	}

	respond, err := s.buildDetail(conversation, page, limit)
	if err != nil {
		return nil, err
	}
	s.writeCache(cacheKey, respond)
	return respond, nil
}

// LoadForClient 客户拉取自己的会话视图，首次访问时建会话
func (s *ConversationService) LoadForClient(clientUuid string, page, limit int) (*ConversationDetailRespond, error) {
	conversation, err := s.FindOrCreateForClient(clientUuid)
	if err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)
	return s.buildDetail(conversation, page, limit)
}

// buildSummary 组装会话摘要：客户资料 + 最新消息
func (s *ConversationService) buildSummary(conversation *model.Conversation) (*ConversationSummary, error) {
	summary := &ConversationSummary{ConversationId: conversation.Uuid}
	if conversation.LastMessageAt.Valid {
		summary.LastMessageAt = conversation.LastMessageAt.Time.Format("2006-01-02 15:04:05")
	}

	participants, err := s.repos.Participant.FindByConversationUuid(conversation.Uuid)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.Type != model.ParticipantUser {
			continue
		}
		client, err := s.repos.User.FindByUuid(p.UserUuid)
		if err != nil {
			if errorx.IsNotFound(err) {
				break
			}
			return nil, err
		}
		summary.Client = userToBrief(client)
		break
	}

	if conversation.LastMessageUuid != 0 {
		message, err := s.repos.Message.FindByUuid(conversation.LastMessageUuid)
		if err == nil {
			summary.LastMessage = messageToRespond(message, false)
		} else if !errorx.IsNotFound(err) {
			return nil, err
		}
	}
	return summary, nil
}

// buildDetail 组装会话详情时间线
func (s *ConversationService) buildDetail(conversation *model.Conversation, page, limit int) (*ConversationDetailRespond, error) {
	messages, err := s.repos.Message.FindByConversationUuid(conversation.Uuid)
	if err != nil {
		return nil, err
	}
	calls, err := s.repos.Call.FindByConversationUuid(conversation.Uuid)
	if err != nil {
		return nil, err
	}

	items := make([]TimelineItem, 0, len(messages)+len(calls))
	for i := range messages {
		m := &messages[i]
		items = append(items, TimelineItem{
			Kind:      "message",
			Message:   messageToRespond(m, false),
			CreatedAt: m.CreatedAt.Format("2006-01-02 15:04:05"),
			sortAt:    m.CreatedAt,
		})
	}
	for i := range calls {
		c := &calls[i]
		items = append(items, TimelineItem{
			Kind:      "call",
			Call:      &CallRespond{CallId: c.Uuid, ConversationId: c.ConversationUuid, InitiatorId: c.InitiatorUuid, Type: c.Type, Status: c.Status},
			CreatedAt: c.CreatedAt.Format("2006-01-02 15:04:05"),
			sortAt:    c.CreatedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].sortAt.After(items[j].sortAt)
	})

	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	respond := &ConversationDetailRespond{
		ConversationId: conversation.Uuid,
		Total:          total,
		Page:           page,
		Limit:          limit,
		Items:          items[start:end],
	}

	summary, err := s.buildSummary(conversation)
	if err == nil {
		respond.Client = summary.Client
	}
	return respond, nil
}

// InvalidateCache 失效该会话相关的全部读缓存
func (s *ConversationService) InvalidateCache(conversationUuid string) {
	if s.cache == nil {
		return
	}
	s.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.DeleteByPattern(ctx, "conversation_list_*"); err != nil {
			zap.L().Error("清理会话列表缓存失败", zap.Error(err))
		}
		if err := s.cache.DeleteByPattern(ctx, "conversation_"+conversationUuid+"_*"); err != nil {
			zap.L().Error("清理会话详情缓存失败", zap.Error(err))
		}
	})
}

func (s *ConversationService) readCache(key string) string {
	if s.cache == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := s.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("读取缓存失败", zap.String("key", key), zap.Error(err))
		return ""
	}
	return value
}

func (s *ConversationService) writeCache(key string, value any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, key, string(data), constants.REDIS_TIMEOUT*time.Minute); err != nil {
			zap.L().Error("写入缓存失败", zap.String("key", key), zap.Error(err))
		}
	})
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = constants.DEFAULT_PAGE_SIZE
	}
	return page, limit
}

func userToBrief(user *model.UserInfo) *UserBrief {
	return &UserBrief{
		UserId:    user.Uuid,
		Name:      user.Name,
		Email:     user.Email,
		AvatarUrl: user.AvatarUrl,
		Role:      user.Role,
	}
}
