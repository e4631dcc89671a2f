// message_service.go
// 消息收发与状态推进
// 客户消息扇出给全体管理员，管理员消息定向发给客户
// 消息状态按接收人维度记录，SENT -> DELIVERED -> READ 推进由前端上报驱动
package chat

import (
	"time"

	"go.uber.org/zap"

	"private_chat_server/internal/dao/mysql"
	"private_chat_server/internal/model"
	"private_chat_server/pkg/errorx"
	mysnowflake "private_chat_server/pkg/util/snowflake"
)

// MessageService 消息业务
type MessageService struct {
	repos         *mysql.Repositories
	registry      *SessionRegistry
	conversations *ConversationService
}

// NewMessageService 创建消息服务
func NewMessageService(repos *mysql.Repositories, registry *SessionRegistry, conversations *ConversationService) *MessageService {
	return &MessageService{
		repos:         repos,
		registry:      registry,
		conversations: conversations,
	}
}

// validateFileRef 文件消息必须指向已登记的文件引用
func (s *MessageService) validateFileRef(msgType model.MessageType, fileUuid string) error {
	if msgType != model.MessageFile {
		return nil
	}
	if fileUuid == "" {
		return errorx.New(errorx.CodeInvalidParam, "文件消息缺少文件引用")
	}
	if _, err := s.repos.File.FindByUuid(fileUuid); err != nil {
		if errorx.IsNotFound(err) {
			return errorx.New(errorx.CodeNotFound, "文件不存在")
		}
		return err
	}
	return nil
}

// SendFromClient 客户发送消息
// 首条消息自动建会话，落库后扇出给全体管理员，并回显给客户本人的其他端
func (s *MessageService) SendFromClient(senderUuid string, req *ClientMessageRequest) (*MessageRespond, error) {
	if err := s.validateFileRef(req.Type, req.FileUuid); err != nil {
		return nil, err
	}
	conversation, err := s.conversations.FindOrCreateForClient(senderUuid)
	if err != nil {
		return nil, err
	}

	operators, err := s.repos.User.FindOperators()
	if err != nil {
		return nil, err
	}
	operatorIds := make([]string, 0, len(operators))
	for _, op := range operators {
		operatorIds = append(operatorIds, op.Uuid)
	}

	message := s.buildMessage(conversation.Uuid, senderUuid, req.Type, req.Content, req.FileUuid)
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		if err := tx.Message.Create(message); err != nil {
			return err
		}
		if err := createStatusRows(tx, conversation.Uuid, message.Uuid); err != nil {
			return err
		}
		return tx.Conversation.UpdateLastMessage(conversation.Uuid, message.Uuid)
	})
	if err != nil {
		return nil, err
	}

	respond := messageToRespond(message, false)
	env := SuccessEnvelope(respond, "")
	s.registry.Broadcast(operatorIds, EventNewMessage, env)
	s.registry.NotifyUser(senderUuid, EventNewMessage, env)

	s.conversations.InvalidateCache(conversation.Uuid)
	return respond, nil
}

// SendFromOperator 管理员发送消息
// 目标客户还没有会话时返回未找到，不替客户建会话
// 客户在线时立即广播 DELIVERED 状态变更（不落库，以客户端后续上报为准）
func (s *MessageService) SendFromOperator(senderUuid string, req *AdminMessageRequest) (*MessageRespond, error) {
	if err := s.validateFileRef(req.Type, req.FileUuid); err != nil {
		return nil, err
	}
	conversation, err := s.repos.Conversation.FindByClientUuid(req.ClientId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "该客户还没有会话记录")
		}
		return nil, err
	}

	message := s.buildMessage(conversation.Uuid, senderUuid, req.Type, req.Content, req.FileUuid)
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		if err := s.conversations.ensureAdminParticipant(tx, conversation.Uuid, senderUuid); err != nil {
			return err
		}
		if err := tx.Message.Create(message); err != nil {
			return err
		}
		if err := createStatusRows(tx, conversation.Uuid, message.Uuid); err != nil {
			return err
		}
		return tx.Conversation.UpdateLastMessage(conversation.Uuid, message.Uuid)
	})
	if err != nil {
		return nil, err
	}

	respond := messageToRespond(message, true)
	env := SuccessEnvelope(respond, "")
	s.registry.NotifyUser(req.ClientId, EventNewMessage, env)
	s.broadcastToOperators(EventNewMessage, env)

	// 客户在线即视为可达，先行广播 DELIVERED，落库以客户端上报为准
	if s.registry.Online(req.ClientId) {
		statusEnv := SuccessEnvelope(&StatusRespond{
			MessageId: message.Uuid,
			UserId:    req.ClientId,
			Status:    model.StatusDelivered,
		}, "")
		s.registry.NotifyUser(req.ClientId, EventUpdateStatus, statusEnv)
		s.broadcastToOperators(EventUpdateStatus, statusEnv)
	}

	s.conversations.InvalidateCache(conversation.Uuid)
	return respond, nil
}

// UpdateStatus 处理前端上报的消息状态
// 按上报值原样写入，同一 (message, user) 只保留一行
func (s *MessageService) UpdateStatus(reporterUuid string, req *StatusUpdateRequest) (*StatusRespond, error) {
	if !req.Status.Valid() {
		return nil, errorx.ErrInvalidParam
	}
	message, err := s.repos.Message.FindByUuid(req.MessageId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "消息不存在")
		}
		return nil, err
	}

	userUuid := req.UserId
	if userUuid == "" {
		userUuid = reporterUuid
	}

	status, err := s.repos.MessageStatus.Upsert(req.MessageId, userUuid, req.Status)
	if err != nil {
		return nil, err
	}

	respond := &StatusRespond{
		MessageId: status.MessageUuid,
		UserId:    status.UserUuid,
		Status:    status.Status,
	}
	env := SuccessEnvelope(respond, "")
	s.registry.NotifyUser(message.SenderUuid, EventUpdateStatus, env)
	s.broadcastToOperators(EventUpdateStatus, env)
	return respond, nil
}

// MarkRead 批量标记已读，返回实际更新的行数
func (s *MessageService) MarkRead(reporterUuid string, req *MarkReadRequest) (*MarkReadRespond, error) {
	count, err := s.repos.MessageStatus.MarkRead(req.MessageIds)
	if err != nil {
		return nil, err
	}
	zap.L().Info("批量标记已读", zap.String("userId", reporterUuid),
		zap.Int("requested", len(req.MessageIds)), zap.Int64("updated", count))
	return &MarkReadRespond{UpdatedCount: count}, nil
}

// createStatusRows 为会话的每个参与者建一条 SENT 状态行
// 在事务内读取参与者表，同事务里新加入的管理员也会拿到状态行
func createStatusRows(tx *mysql.Repositories, conversationUuid string, messageUuid int64) error {
	members, err := tx.Participant.FindByConversationUuid(conversationUuid)
	if err != nil {
		return err
	}
	statuses := make([]model.MessageStatus, 0, len(members))
	for _, m := range members {
		statuses = append(statuses, model.MessageStatus{
			MessageUuid: messageUuid,
			UserUuid:    m.UserUuid,
			Status:      model.StatusSent,
		})
	}
	if len(statuses) == 0 {
		return nil
	}
	return tx.MessageStatus.CreateBatch(statuses)
}

func (s *MessageService) buildMessage(conversationUuid, senderUuid string, msgType model.MessageType, content, fileUuid string) *model.Message {
	if msgType == "" {
		msgType = model.MessageText
	}
	return &model.Message{
		Uuid:             mysnowflake.GenerateID(),
		ConversationUuid: conversationUuid,
		SenderUuid:       senderUuid,
		Type:             msgType,
		Content:          content,
		FileUuid:         fileUuid,
	}
}

// broadcastToOperators 向全体管理员在线端广播
func (s *MessageService) broadcastToOperators(event string, env Envelope) {
	operators, err := s.repos.User.FindOperators()
	if err != nil {
		zap.L().Error("查询管理员列表失败", zap.Error(err))
		return
	}
	ids := make([]string, 0, len(operators))
	for _, op := range operators {
		ids = append(ids, op.Uuid)
	}
	s.registry.Broadcast(ids, event, env)
}

func messageToRespond(message *model.Message, fromAdmin bool) *MessageRespond {
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &MessageRespond{
		MessageId:      message.Uuid,
		ConversationId: message.ConversationUuid,
		SenderId:       message.SenderUuid,
		Type:           message.Type,
		Content:        message.Content,
		FileUuid:       message.FileUuid,
		FromAdmin:      fromAdmin,
		CreatedAt:      createdAt.Format("2006-01-02 15:04:05"),
	}
}
