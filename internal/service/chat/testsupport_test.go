package chat

import (
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"private_chat_server/internal/dao/mysql"
	"private_chat_server/internal/dao/mysql/repository"
	"private_chat_server/internal/model"
	"private_chat_server/pkg/errorx"
	mysnowflake "private_chat_server/pkg/util/snowflake"
)

func init() {
	mysnowflake.Init(1)
}

// connectUser 模拟一端上线，不启动写泵，出站帧留在队列里供断言
func connectUser(registry *SessionRegistry, userId string, role model.UserRole, sessionId string) *UserConn {
	uc := newUserConn(nil, userId, role, sessionId)
	registry.Register(uc)
	return uc
}

// collectFrames 取出该连接已入队的全部出站帧
func collectFrames(t *testing.T, uc *UserConn) []OutFrame {
	t.Helper()
	var frames []OutFrame
	for {
		select {
		case data := <-uc.sendBack:
			var frame OutFrame
			require.NoError(t, json.Unmarshal(data, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

// framesByEvent 按事件名过滤
func framesByEvent(frames []OutFrame, event string) []OutFrame {
	var result []OutFrame
	for _, f := range frames {
		if f.Event == event {
			result = append(result, f)
		}
	}
	return result
}

// decodeData 把信封里的 data 解回具体结构
func decodeData(t *testing.T, frame OutFrame, v any) {
	t.Helper()
	raw, err := json.Marshal(frame.Payload.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

// memStore 内存数据桩，代替 MySQL 供业务层测试使用
type memStore struct {
	mu               sync.Mutex
	users            map[string]*model.UserInfo
	conversations    []*model.Conversation
	convParticipants []*model.ConversationParticipant
	messages         []*model.Message
	statuses         []*model.MessageStatus
	calls            []*model.Call
	callParticipants []*model.CallParticipant
	files            map[string]*model.FileInfo
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[string]*model.UserInfo),
		files: make(map[string]*model.FileInfo),
	}
}

func notFound(msg string) error {
	return errorx.New(errorx.CodeNotFound, msg)
}

// newMemRepos 构造绑定内存桩的 Repositories
func newMemRepos() (*mysql.Repositories, *memStore) {
	store := newMemStore()
	return &mysql.Repositories{
		User:            &memUserRepo{store},
		Conversation:    &memConversationRepo{store},
		Participant:     &memParticipantRepo{store},
		Message:         &memMessageRepo{store},
		MessageStatus:   &memMessageStatusRepo{store},
		Call:            &memCallRepo{store},
		CallParticipant: &memCallParticipantRepo{store},
		File:            &memFileRepo{store},
	}, store
}

func (s *memStore) addUser(uuid, name string, role model.UserRole) *model.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := &model.UserInfo{Uuid: uuid, Name: name, Role: role}
	s.users[uuid] = user
	return user
}

// ==================== user ====================

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) FindByUuid(uuid string) (*model.UserInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if user, ok := r.s.users[uuid]; ok {
		return user, nil
	}
	return nil, notFound("用户不存在")
}

func (r *memUserRepo) FindByUuids(uuids []string) ([]model.UserInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []model.UserInfo
	for _, uuid := range uuids {
		if user, ok := r.s.users[uuid]; ok {
			result = append(result, *user)
		}
	}
	return result, nil
}

func (r *memUserRepo) FindOperators() ([]model.UserInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []model.UserInfo
	for _, user := range r.s.users {
		if user.Role.IsOperator() {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid < result[j].Uuid })
	return result, nil
}

func (r *memUserRepo) CreateUser(user *model.UserInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[user.Uuid] = user
	return nil
}

func (r *memUserRepo) UpdateOnlineAt(uuid string) error  { return nil }
func (r *memUserRepo) UpdateOfflineAt(uuid string) error { return nil }

// ==================== conversation ====================

type memConversationRepo struct{ s *memStore }

func (r *memConversationRepo) FindByUuid(uuid string) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, conv := range r.s.conversations {
		if conv.Uuid == uuid {
			return conv, nil
		}
	}
	return nil, notFound("会话不存在")
}

func (r *memConversationRepo) FindByClientUuid(clientUuid string) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.convParticipants {
		if p.UserUuid == clientUuid && p.Type == model.ParticipantUser {
			for _, conv := range r.s.conversations {
				if conv.Uuid == p.ConversationUuid {
					return conv, nil
				}
			}
		}
	}
	return nil, notFound("会话不存在")
}

func (r *memConversationRepo) FindPage(page, pageSize int) ([]model.Conversation, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sorted := make([]*model.Conversation, len(r.s.conversations))
	copy(sorted, r.s.conversations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastMessageAt.Time.After(sorted[j].LastMessageAt.Time)
	})
	total := int64(len(sorted))
	start := (page - 1) * pageSize
	if start > len(sorted) {
		start = len(sorted)
	}
	end := start + pageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	result := make([]model.Conversation, 0, end-start)
	for _, conv := range sorted[start:end] {
		result = append(result, *conv)
	}
	return result, total, nil
}

func (r *memConversationRepo) Create(conversation *model.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.conversations = append(r.s.conversations, conversation)
	return nil
}

func (r *memConversationRepo) UpdateLastMessage(uuid string, messageUuid int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, conv := range r.s.conversations {
		if conv.Uuid == uuid {
			conv.LastMessageUuid = messageUuid
			conv.LastMessageAt = sql.NullTime{Time: time.Now(), Valid: true}
			return nil
		}
	}
	return notFound("会话不存在")
}

// ==================== conversation participant ====================

type memParticipantRepo struct{ s *memStore }

func (r *memParticipantRepo) FindByConversationUuid(conversationUuid string) ([]model.ConversationParticipant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []model.ConversationParticipant
	for _, p := range r.s.convParticipants {
		if p.ConversationUuid == conversationUuid {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (r *memParticipantRepo) FindByConversationAndUser(conversationUuid, userUuid string) (*model.ConversationParticipant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.convParticipants {
		if p.ConversationUuid == conversationUuid && p.UserUuid == userUuid {
			return p, nil
		}
	}
	return nil, notFound("参与者不存在")
}

func (r *memParticipantRepo) Create(participant *model.ConversationParticipant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.convParticipants = append(r.s.convParticipants, participant)
	return nil
}

// ==================== message ====================

type memMessageRepo struct{ s *memStore }

func (r *memMessageRepo) FindByUuid(uuid int64) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.Uuid == uuid {
			return m, nil
		}
	}
	return nil, notFound("消息不存在")
}

func (r *memMessageRepo) FindByConversationUuid(conversationUuid string) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []model.Message
	for _, m := range r.s.messages {
		if m.ConversationUuid == conversationUuid {
			result = append(result, *m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid > result[j].Uuid })
	return result, nil
}

func (r *memMessageRepo) Create(message *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message.CreatedAt = time.Now()
	r.s.messages = append(r.s.messages, message)
	return nil
}

// ==================== message status ====================

type memMessageStatusRepo struct{ s *memStore }

func (r *memMessageStatusRepo) FindByMessageAndUser(messageUuid int64, userUuid string) (*model.MessageStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.statuses {
		if st.MessageUuid == messageUuid && st.UserUuid == userUuid {
			return st, nil
		}
	}
	return nil, notFound("消息状态不存在")
}

func (r *memMessageStatusRepo) CreateBatch(statuses []model.MessageStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range statuses {
		st := statuses[i]
		r.s.statuses = append(r.s.statuses, &st)
	}
	return nil
}

func (r *memMessageStatusRepo) Upsert(messageUuid int64, userUuid string, status model.DeliveryStatus) (*model.MessageStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.statuses {
		if st.MessageUuid == messageUuid && st.UserUuid == userUuid {
			st.Status = status
			return st, nil
		}
	}
	st := &model.MessageStatus{MessageUuid: messageUuid, UserUuid: userUuid, Status: status}
	r.s.statuses = append(r.s.statuses, st)
	return st, nil
}

func (r *memMessageStatusRepo) MarkRead(messageUuids []int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, st := range r.s.statuses {
		for _, uuid := range messageUuids {
			if st.MessageUuid == uuid {
				st.Status = model.StatusRead
				count++
			}
		}
	}
	return count, nil
}

// ==================== call ====================

type memCallRepo struct{ s *memStore }

func (r *memCallRepo) FindByUuid(uuid string) (*model.Call, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, call := range r.s.calls {
		if call.Uuid == uuid {
			clone := *call
			return &clone, nil
		}
	}
	return nil, notFound("通话不存在")
}

func (r *memCallRepo) FindByConversationUuid(conversationUuid string) ([]model.Call, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []model.Call
	for _, call := range r.s.calls {
		if call.ConversationUuid == conversationUuid {
			result = append(result, *call)
		}
	}
	return result, nil
}

func (r *memCallRepo) Create(call *model.Call) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	call.CreatedAt = time.Now()
	if call.Status == "" {
		call.Status = model.CallInitiated
	}
	r.s.calls = append(r.s.calls, call)
	return nil
}

func (r *memCallRepo) UpdateStatus(uuid string, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, call := range r.s.calls {
		if call.Uuid != uuid {
			continue
		}
		if v, ok := updates["status"]; ok {
			call.Status = v.(model.CallStatus)
		}
		if v, ok := updates["started_at"]; ok {
			call.StartedAt = sql.NullTime{Time: v.(time.Time), Valid: true}
		}
		if v, ok := updates["ended_at"]; ok {
			call.EndedAt = sql.NullTime{Time: v.(time.Time), Valid: true}
		}
		return nil
	}
	return notFound("通话不存在")
}

// ==================== call participant ====================

type memCallParticipantRepo struct{ s *memStore }

func (r *memCallParticipantRepo) FindByCallUuid(callUuid string) ([]model.CallParticipant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []model.CallParticipant
	for _, p := range r.s.callParticipants {
		if p.CallUuid == callUuid {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (r *memCallParticipantRepo) FindByCallAndUser(callUuid, userUuid string) (*model.CallParticipant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.callParticipants {
		if p.CallUuid == callUuid && p.UserUuid == userUuid {
			clone := *p
			return &clone, nil
		}
	}
	return nil, notFound("参与者不存在")
}

func (r *memCallParticipantRepo) Create(participant *model.CallParticipant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.callParticipants = append(r.s.callParticipants, participant)
	return nil
}

func (r *memCallParticipantRepo) CreateBatch(participants []model.CallParticipant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range participants {
		p := participants[i]
		r.s.callParticipants = append(r.s.callParticipants, &p)
	}
	return nil
}

func (r *memCallParticipantRepo) UpdateStatus(callUuid, userUuid string, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.callParticipants {
		if p.CallUuid != callUuid || p.UserUuid != userUuid {
			continue
		}
		if v, ok := updates["status"]; ok {
			p.Status = v.(model.ParticipantStatus)
		}
		if v, ok := updates["joined_at"]; ok {
			p.JoinedAt = sql.NullTime{Time: v.(time.Time), Valid: true}
		}
		if v, ok := updates["left_at"]; ok {
			p.LeftAt = sql.NullTime{Time: v.(time.Time), Valid: true}
		}
		return nil
	}
	return notFound("参与者不存在")
}

func (r *memCallParticipantRepo) UpdateAllStatus(callUuid string, status model.ParticipantStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.callParticipants {
		if p.CallUuid == callUuid {
			p.Status = status
		}
	}
	return nil
}

// ==================== file ====================

type memFileRepo struct{ s *memStore }

func (r *memFileRepo) FindByUuid(uuid string) (*model.FileInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.files[uuid]; ok {
		return f, nil
	}
	return nil, notFound("文件不存在")
}

func (r *memFileRepo) Create(file *model.FileInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.files[file.Uuid] = file
	return nil
}

var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.ConversationRepository = (*memConversationRepo)(nil)
var _ repository.ParticipantRepository = (*memParticipantRepo)(nil)
var _ repository.MessageRepository = (*memMessageRepo)(nil)
var _ repository.MessageStatusRepository = (*memMessageStatusRepo)(nil)
var _ repository.CallRepository = (*memCallRepo)(nil)
var _ repository.CallParticipantRepository = (*memCallParticipantRepo)(nil)
var _ repository.FileRepository = (*memFileRepo)(nil)
