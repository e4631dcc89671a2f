// call_service.go
// 音视频通话状态机
// 固定格：INITIATED -> ONGOING -> {ENDED, MISSED}
// ENDED/MISSED 为终态，进入后所有写操作拒绝或静默跳过，终态时间戳只写一次
package chat

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"private_chat_server/internal/dao/mysql"
	"private_chat_server/internal/model"
	"private_chat_server/pkg/errorx"
)

// CallService 通话业务
type CallService struct {
	repos    *mysql.Repositories
	registry *SessionRegistry

	// ringTimeout 振铃超时，超时仍未接听的通话转 MISSED
	// 零值表示不启用进程内定时器
	ringTimeout time.Duration
}

// NewCallService 创建通话服务
func NewCallService(repos *mysql.Repositories, registry *SessionRegistry) *CallService {
	return &CallService{repos: repos, registry: registry}
}

// WithRingTimeout 启用振铃超时定时器
func (s *CallService) WithRingTimeout(timeout time.Duration) *CallService {
	s.ringTimeout = timeout
	return s
}

// findCall 查通话，不存在统一回 NotFound
func (s *CallService) findCall(callUuid string) (*model.Call, error) {
	call, err := s.repos.Call.FindByUuid(callUuid)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "通话不存在")
		}
		return nil, err
	}
	return call, nil
}

// requireParticipant 校验操作者是通话参与者
func (s *CallService) requireParticipant(callUuid, userUuid string) (*model.CallParticipant, error) {
	participant, err := s.repos.CallParticipant.FindByCallAndUser(callUuid, userUuid)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeForbidden, "您不是该通话的参与者")
		}
		return nil, err
	}
	return participant, nil
}

// upsertJoined 把参与者行置为 JOINED，行不存在时补建
// accept/join 共用，后加入会话的管理员在此拿到参与者行
func upsertJoined(repos *mysql.Repositories, callUuid, userUuid string, now time.Time) error {
	_, err := repos.CallParticipant.FindByCallAndUser(callUuid, userUuid)
	if err != nil {
		if !errorx.IsNotFound(err) {
			return err
		}
		return repos.CallParticipant.Create(&model.CallParticipant{
			CallUuid: callUuid,
			UserUuid: userUuid,
			Status:   model.ParticipantJoined,
			JoinedAt: sql.NullTime{Time: now, Valid: true},
		})
	}
	return repos.CallParticipant.UpdateStatus(callUuid, userUuid, map[string]interface{}{
		"status":    model.ParticipantJoined,
		"joined_at": now,
	})
}

// participantIds 通话全部参与者的用户 id
func (s *CallService) participantIds(callUuid string) ([]string, error) {
	participants, err := s.repos.CallParticipant.FindByCallUuid(callUuid)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserUuid)
	}
	return ids, nil
}

// Initiate 发起通话
// 为会话的每个成员建参与者行：发起者 JOINED，其余先记 MISSED，接听后再改写
func (s *CallService) Initiate(initiatorUuid string, req *InitiateCallRequest) (*CallRespond, error) {
	conversation, err := s.repos.Conversation.FindByUuid(req.ConversationId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		return nil, err
	}
	members, err := s.repos.Participant.FindByConversationUuid(conversation.Uuid)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Participant.FindByConversationAndUser(conversation.Uuid, initiatorUuid); err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeForbidden, "您不是该会话的参与者")
		}
		return nil, err
	}

	now := time.Now()
	call := &model.Call{
		Uuid:             uuid.NewString(),
		ConversationUuid: conversation.Uuid,
		InitiatorUuid:    initiatorUuid,
		Type:             req.Type,
		Status:           model.CallInitiated,
	}
	callParticipants := make([]model.CallParticipant, 0, len(members))
	for _, m := range members {
		p := model.CallParticipant{
			CallUuid: call.Uuid,
			UserUuid: m.UserUuid,
			Status:   model.ParticipantMissed,
		}
		if m.UserUuid == initiatorUuid {
			p.Status = model.ParticipantJoined
			p.JoinedAt = sql.NullTime{Time: now, Valid: true}
		}
		callParticipants = append(callParticipants, p)
	}

	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		if err := tx.Call.Create(call); err != nil {
			return err
		}
		return tx.CallParticipant.CreateBatch(callParticipants)
	})
	if err != nil {
		return nil, err
	}

	respond := s.callToRespond(call, callParticipants)
	ids := make([]string, 0, len(callParticipants))
	for _, p := range callParticipants {
		ids = append(ids, p.UserUuid)
	}
	s.registry.Broadcast(ids, EventCallIncoming, SuccessEnvelope(respond, ""))
	zap.L().Info("发起通话", zap.String("callId", call.Uuid),
		zap.String("initiator", initiatorUuid), zap.String("type", string(call.Type)))

	if s.ringTimeout > 0 {
		callUuid := call.Uuid
		time.AfterFunc(s.ringTimeout, func() {
			if err := s.MarkMissed(callUuid); err != nil {
				zap.L().Error("振铃超时处理失败", zap.String("callId", callUuid), zap.Error(err))
			}
		})
	}
	return respond, nil
}

// Accept 接听通话
// 唯一的 INITIATED -> ONGOING 转移边，首次接听写入接通时间
// 已经 ONGOING 的通话再次 accept 等同加入，幂等
func (s *CallService) Accept(userUuid string, req *CallActionRequest) (*CallRespond, error) {
	call, err := s.findCall(req.CallId)
	if err != nil {
		return nil, err
	}
	if call.Status.Terminal() {
		return nil, errorx.New(errorx.CodeForbidden, "通话已结束")
	}

	now := time.Now()
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		current, err := tx.Call.FindByUuid(call.Uuid)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return errorx.New(errorx.CodeForbidden, "通话已结束")
		}
		if current.Status == model.CallInitiated {
			if err := tx.Call.UpdateStatus(call.Uuid, map[string]interface{}{
				"status":     model.CallOngoing,
				"started_at": now,
			}); err != nil {
				return err
			}
			call.Status = model.CallOngoing
			call.StartedAt = sql.NullTime{Time: now, Valid: true}
		} else {
			call.Status = current.Status
			call.StartedAt = current.StartedAt
		}
		return upsertJoined(tx, call.Uuid, userUuid, now)
	})
	if err != nil {
		return nil, err
	}

	ids, err := s.participantIds(call.Uuid)
	if err != nil {
		return nil, err
	}
	respond := &CallActionRespond{CallId: call.Uuid, UserId: userUuid}
	s.registry.Broadcast(ids, EventCallAccept, SuccessEnvelope(respond, ""))
	return s.respondWithParticipants(call)
}

// Reject 拒接通话
// 只改写本人的参与者行，不动通话整体状态
// 其余成员仍可接听，振铃超时后由 MarkMissed 收尾
func (s *CallService) Reject(userUuid string, req *CallActionRequest) error {
	call, err := s.findCall(req.CallId)
	if err != nil {
		return err
	}
	if call.Status.Terminal() {
		return errorx.New(errorx.CodeForbidden, "通话已结束")
	}
	if _, err := s.requireParticipant(call.Uuid, userUuid); err != nil {
		return err
	}

	now := time.Now()
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		current, err := tx.Call.FindByUuid(call.Uuid)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return errorx.New(errorx.CodeForbidden, "通话已结束")
		}
		return tx.CallParticipant.UpdateStatus(call.Uuid, userUuid, map[string]interface{}{
			"status":  model.ParticipantMissed,
			"left_at": now,
		})
	})
	if err != nil {
		return err
	}

	ids, err := s.participantIds(call.Uuid)
	if err != nil {
		return err
	}
	respond := &CallActionRespond{CallId: call.Uuid, UserId: userUuid}
	s.registry.Broadcast(ids, EventCallReject, SuccessEnvelope(respond, ""))
	return nil
}

// Join 加入进行中的通话
// 只通知加入者本人，避免打断其他参与者的媒体协商
func (s *CallService) Join(userUuid string, req *CallActionRequest) (*CallRespond, error) {
	call, err := s.findCall(req.CallId)
	if err != nil {
		return nil, err
	}
	if call.Status != model.CallOngoing {
		return nil, errorx.New(errorx.CodeForbidden, "通话未在进行中")
	}

	if err := upsertJoined(s.repos, call.Uuid, userUuid, time.Now()); err != nil {
		return nil, err
	}

	respond, err := s.respondWithParticipants(call)
	if err != nil {
		return nil, err
	}
	s.registry.NotifyUser(userUuid, EventCallJoin, SuccessEnvelope(respond, ""))
	return respond, nil
}

// Leave 离开通话
// 最后一个在通话内的参与者离开时通话转 ENDED
func (s *CallService) Leave(userUuid string, req *CallActionRequest) error {
	call, err := s.findCall(req.CallId)
	if err != nil {
		return err
	}
	if call.Status.Terminal() {
		return errorx.New(errorx.CodeForbidden, "通话已结束")
	}
	if _, err := s.requireParticipant(call.Uuid, userUuid); err != nil {
		return err
	}

	now := time.Now()
	ended := false
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		current, err := tx.Call.FindByUuid(call.Uuid)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return errorx.New(errorx.CodeForbidden, "通话已结束")
		}
		if err := tx.CallParticipant.UpdateStatus(call.Uuid, userUuid, map[string]interface{}{
			"status":  model.ParticipantLeft,
			"left_at": now,
		}); err != nil {
			return err
		}
		participants, err := tx.CallParticipant.FindByCallUuid(call.Uuid)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if p.UserUuid != userUuid && p.Status == model.ParticipantJoined {
				return nil
			}
		}
		ended = true
		return tx.Call.UpdateStatus(call.Uuid, map[string]interface{}{
			"status":   model.CallEnded,
			"ended_at": now,
		})
	})
	if err != nil {
		return err
	}

	ids, err := s.participantIds(call.Uuid)
	if err != nil {
		return err
	}
	respond := &CallActionRespond{CallId: call.Uuid, UserId: userUuid}
	if ended {
		s.registry.Broadcast(ids, EventCallEnd, SuccessEnvelope(respond, ""))
	} else {
		s.registry.Broadcast(ids, EventCallLeave, SuccessEnvelope(respond, ""))
	}
	return nil
}

// End 主动结束通话
// 参与者本人或任一管理员均可结束（管理侧清理通道）
// 已在终态的通话静默跳过，保证终态时间戳只写一次
func (s *CallService) End(userUuid string, role model.UserRole, req *CallActionRequest) error {
	call, err := s.findCall(req.CallId)
	if err != nil {
		return err
	}
	if !role.IsOperator() {
		if _, err := s.requireParticipant(call.Uuid, userUuid); err != nil {
			return err
		}
	}

	now := time.Now()
	changed := false
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		current, err := tx.Call.FindByUuid(call.Uuid)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return nil
		}
		changed = true
		if err := tx.Call.UpdateStatus(call.Uuid, map[string]interface{}{
			"status":   model.CallEnded,
			"ended_at": now,
		}); err != nil {
			return err
		}
		return tx.CallParticipant.UpdateAllStatus(call.Uuid, model.ParticipantLeft)
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	ids, err := s.participantIds(call.Uuid)
	if err != nil {
		return err
	}
	s.registry.Broadcast(ids, EventCallEnd, SuccessEnvelope(&CallActionRespond{CallId: call.Uuid, UserId: userUuid}, ""))
	return nil
}

// MarkMissed 超时未接转未接来电
// 由振铃定时器或外部定时任务驱动，通话已离开 INITIATED 时静默跳过
func (s *CallService) MarkMissed(callUuid string) error {
	call, err := s.findCall(callUuid)
	if err != nil {
		return err
	}
	if call.Status != model.CallInitiated {
		return nil
	}

	now := time.Now()
	changed := false
	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		current, err := tx.Call.FindByUuid(call.Uuid)
		if err != nil {
			return err
		}
		if current.Status != model.CallInitiated {
			return nil
		}
		changed = true
		if err := tx.Call.UpdateStatus(call.Uuid, map[string]interface{}{
			"status":   model.CallMissed,
			"ended_at": now,
		}); err != nil {
			return err
		}
		return tx.CallParticipant.UpdateAllStatus(call.Uuid, model.ParticipantMissed)
	})
	if err != nil || !changed {
		return err
	}

	ids, err := s.participantIds(call.Uuid)
	if err != nil {
		return err
	}
	s.registry.Broadcast(ids, EventCallMissed, SuccessEnvelope(&CallActionRespond{CallId: call.Uuid}, ""))
	return nil
}

func (s *CallService) respondWithParticipants(call *model.Call) (*CallRespond, error) {
	participants, err := s.repos.CallParticipant.FindByCallUuid(call.Uuid)
	if err != nil {
		return nil, err
	}
	return s.callToRespond(call, participants), nil
}

func (s *CallService) callToRespond(call *model.Call, participants []model.CallParticipant) *CallRespond {
	respond := &CallRespond{
		CallId:         call.Uuid,
		ConversationId: call.ConversationUuid,
		InitiatorId:    call.InitiatorUuid,
		Type:           call.Type,
		Status:         call.Status,
	}
	names := s.participantNames(participants)
	for _, p := range participants {
		respond.Participants = append(respond.Participants, CallParticipantRespond{
			UserId: p.UserUuid,
			Name:   names[p.UserUuid],
			Status: p.Status,
		})
	}
	return respond
}

// participantNames 批量补齐参与者昵称，查询失败时降级为仅 id
func (s *CallService) participantNames(participants []model.CallParticipant) map[string]string {
	uuids := make([]string, 0, len(participants))
	for _, p := range participants {
		uuids = append(uuids, p.UserUuid)
	}
	users, err := s.repos.User.FindByUuids(uuids)
	if err != nil {
		zap.L().Warn("查询通话参与者信息失败", zap.Error(err))
		return nil
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.Uuid] = u.Name
	}
	return names
}
