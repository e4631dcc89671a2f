package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"private_chat_server/internal/model"
	"private_chat_server/pkg/errorx"
)

func newCallFixture(t *testing.T) (*CallService, *SessionRegistry, *memStore) {
	t.Helper()
	repos, store := newMemRepos()
	registry := NewSessionRegistry()
	return NewCallService(repos, registry), registry, store
}

func seedConversation(store *memStore, convUuid, clientUuid string, adminUuids ...string) {
	store.conversations = append(store.conversations, &model.Conversation{Uuid: convUuid})
	store.convParticipants = append(store.convParticipants, &model.ConversationParticipant{
		ConversationUuid: convUuid, UserUuid: clientUuid, Type: model.ParticipantUser,
	})
	for _, admin := range adminUuids {
		store.convParticipants = append(store.convParticipants, &model.ConversationParticipant{
			ConversationUuid: convUuid, UserUuid: admin, Type: model.ParticipantAdminGroup,
		})
	}
}

func callRow(store *memStore, callUuid string) *model.Call {
	for _, c := range store.calls {
		if c.Uuid == callUuid {
			return c
		}
	}
	return nil
}

func participantRow(store *memStore, callUuid, userUuid string) *model.CallParticipant {
	for _, p := range store.callParticipants {
		if p.CallUuid == callUuid && p.UserUuid == userUuid {
			return p
		}
	}
	return nil
}

func TestCallLifecycle(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1")

	client := connectUser(registry, "client-1", model.RoleClient, "s1")
	admin := connectUser(registry, "admin-1", model.RoleAdmin, "s1")

	// 发起：客户 JOINED，管理员暂记 MISSED
	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CallInitiated, respond.Status)
	require.Len(t, respond.Participants, 2)

	row := callRow(store, respond.CallId)
	require.NotNil(t, row)
	assert.False(t, row.StartedAt.Valid)
	assert.Equal(t, model.ParticipantJoined, participantRow(store, respond.CallId, "client-1").Status)
	assert.Equal(t, model.ParticipantMissed, participantRow(store, respond.CallId, "admin-1").Status)

	require.Len(t, framesByEvent(collectFrames(t, client), EventCallIncoming), 1)
	require.Len(t, framesByEvent(collectFrames(t, admin), EventCallIncoming), 1)

	// 接听：唯一的 INITIATED -> ONGOING 转移边
	accepted, err := calls.Accept("admin-1", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)
	assert.Equal(t, model.CallOngoing, accepted.Status)
	row = callRow(store, respond.CallId)
	assert.Equal(t, model.CallOngoing, row.Status)
	assert.True(t, row.StartedAt.Valid)
	assert.Equal(t, model.ParticipantJoined, participantRow(store, respond.CallId, "admin-1").Status)

	require.Len(t, framesByEvent(collectFrames(t, client), EventCallAccept), 1)
	require.Len(t, framesByEvent(collectFrames(t, admin), EventCallAccept), 1)

	// 管理员先离开：还有人在通话内，只广播 call_leave
	require.NoError(t, calls.Leave("admin-1", &CallActionRequest{CallId: respond.CallId}))
	assert.Equal(t, model.CallOngoing, callRow(store, respond.CallId).Status)
	require.Len(t, framesByEvent(collectFrames(t, client), EventCallLeave), 1)

	// 最后一人离开：通话转 ENDED 并盖结束时间戳
	require.NoError(t, calls.Leave("client-1", &CallActionRequest{CallId: respond.CallId}))
	row = callRow(store, respond.CallId)
	assert.Equal(t, model.CallEnded, row.Status)
	assert.True(t, row.EndedAt.Valid)
	require.Len(t, framesByEvent(collectFrames(t, client), EventCallEnd), 1)
}

func TestAcceptIdempotentWhenOngoing(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1", "admin-2")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)

	_, err = calls.Accept("admin-1", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)
	startedAt := callRow(store, respond.CallId).StartedAt.Time

	// 第二个接听者加入，接通时间不变
	_, err = calls.Accept("admin-2", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)
	row := callRow(store, respond.CallId)
	assert.Equal(t, model.CallOngoing, row.Status)
	assert.Equal(t, startedAt, row.StartedAt.Time)
	assert.Equal(t, model.ParticipantJoined, participantRow(store, respond.CallId, "admin-2").Status)
}

func TestJoinRequiresOngoingCall(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)

	_, err = calls.Join("admin-1", &CallActionRequest{CallId: respond.CallId})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))
}

func TestJoinNotifiesOnlyJoiner(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1", "admin-2")
	client := connectUser(registry, "client-1", model.RoleClient, "s1")
	admin2 := connectUser(registry, "admin-2", model.RoleAdmin, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallVideo,
	})
	require.NoError(t, err)
	_, err = calls.Accept("admin-1", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)
	collectFrames(t, client)
	collectFrames(t, admin2)

	_, err = calls.Join("admin-2", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)

	assert.Len(t, framesByEvent(collectFrames(t, admin2), EventCallJoin), 1)
	assert.Empty(t, framesByEvent(collectFrames(t, client), EventCallJoin))
}

func TestRejectKeepsCallRingingForOthers(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1", "admin-2")
	client := connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)
	collectFrames(t, client)

	// 一个管理员拒接只改写本人参与者行，不动通话整体状态
	require.NoError(t, calls.Reject("admin-1", &CallActionRequest{CallId: respond.CallId}))

	row := callRow(store, respond.CallId)
	assert.Equal(t, model.CallInitiated, row.Status)
	assert.False(t, row.EndedAt.Valid)
	rejected := participantRow(store, respond.CallId, "admin-1")
	assert.Equal(t, model.ParticipantMissed, rejected.Status)
	assert.True(t, rejected.LeftAt.Valid)

	frames := collectFrames(t, client)
	assert.Len(t, framesByEvent(frames, EventCallReject), 1)
	assert.Empty(t, framesByEvent(frames, EventCallMissed))

	// 其他管理员仍可接听
	_, err = calls.Accept("admin-2", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)
	assert.Equal(t, model.CallOngoing, callRow(store, respond.CallId).Status)
}

func TestRejectDuringOngoingKeepsCall(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1", "admin-2")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)
	_, err = calls.Accept("admin-1", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)

	require.NoError(t, calls.Reject("admin-2", &CallActionRequest{CallId: respond.CallId}))
	assert.Equal(t, model.CallOngoing, callRow(store, respond.CallId).Status)
}

func TestNoTransitionsAfterTerminalState(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)
	_, err = calls.Accept("admin-1", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)
	require.NoError(t, calls.End("client-1", model.RoleClient, &CallActionRequest{CallId: respond.CallId}))

	endedAt := callRow(store, respond.CallId).EndedAt.Time

	_, err = calls.Accept("admin-1", &CallActionRequest{CallId: respond.CallId})
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))
	err = calls.Reject("admin-1", &CallActionRequest{CallId: respond.CallId})
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))
	err = calls.Leave("client-1", &CallActionRequest{CallId: respond.CallId})
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))

	// 重复 End 静默跳过，结束时间戳只盖一次
	require.NoError(t, calls.End("client-1", model.RoleClient, &CallActionRequest{CallId: respond.CallId}))
	row := callRow(store, respond.CallId)
	assert.Equal(t, model.CallEnded, row.Status)
	assert.Equal(t, endedAt, row.EndedAt.Time)
}

func TestMarkMissedOnlyFromInitiated(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1")
	client := connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallVideo,
	})
	require.NoError(t, err)
	collectFrames(t, client)

	require.NoError(t, calls.MarkMissed(respond.CallId))
	row := callRow(store, respond.CallId)
	assert.Equal(t, model.CallMissed, row.Status)
	assert.True(t, row.EndedAt.Valid)
	assert.Equal(t, model.ParticipantMissed, participantRow(store, respond.CallId, "client-1").Status)
	assert.Equal(t, model.ParticipantMissed, participantRow(store, respond.CallId, "admin-1").Status)
	assert.Len(t, framesByEvent(collectFrames(t, client), EventCallMissed), 1)

	// 终态后再触发为空操作
	require.NoError(t, calls.MarkMissed(respond.CallId))

	// 已接通的通话不受超时影响
	second, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallVideo,
	})
	require.NoError(t, err)
	_, err = calls.Accept("admin-1", &CallActionRequest{CallId: second.CallId})
	require.NoError(t, err)
	require.NoError(t, calls.MarkMissed(second.CallId))
	assert.Equal(t, model.CallOngoing, callRow(store, second.CallId).Status)
}

func TestCallActionsRequireParticipant(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)

	err = calls.Reject("stranger", &CallActionRequest{CallId: respond.CallId})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))

	err = calls.Leave("stranger", &CallActionRequest{CallId: respond.CallId})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))

	// 非会话参与者不能发起
	_, err = calls.Initiate("stranger", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))
}

func TestAcceptCreatesParticipantRowWhenAbsent(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)
	require.Nil(t, participantRow(store, respond.CallId, "admin-2"))

	// 发起时不在会话里的管理员接听，补建参与者行
	_, err = calls.Accept("admin-2", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)

	row := participantRow(store, respond.CallId, "admin-2")
	require.NotNil(t, row)
	assert.Equal(t, model.ParticipantJoined, row.Status)
	assert.True(t, row.JoinedAt.Valid)
	assert.Equal(t, model.CallOngoing, callRow(store, respond.CallId).Status)

	// 进行中的通话同样可以直接加入
	_, err = calls.Join("admin-3", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)
	joined := participantRow(store, respond.CallId, "admin-3")
	require.NotNil(t, joined)
	assert.Equal(t, model.ParticipantJoined, joined.Status)
}

func TestOperatorCanEndCallAsAdministrator(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	seedConversation(store, "conv-1", "client-1", "admin-1")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)
	_, err = calls.Accept("admin-1", &CallActionRequest{CallId: respond.CallId})
	require.NoError(t, err)

	// 管理员即使不是通话参与者也可以做管理侧收尾
	require.NoError(t, calls.End("admin-9", model.RoleSuperAdmin, &CallActionRequest{CallId: respond.CallId}))
	assert.Equal(t, model.CallEnded, callRow(store, respond.CallId).Status)

	// 非参与者客户不行
	second, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)
	err = calls.End("client-9", model.RoleClient, &CallActionRequest{CallId: second.CallId})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))
}

func TestRingTimeoutMarksCallMissed(t *testing.T) {
	calls, registry, store := newCallFixture(t)
	calls.WithRingTimeout(20 * time.Millisecond)
	seedConversation(store, "conv-1", "client-1", "admin-1")
	connectUser(registry, "client-1", model.RoleClient, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallAudio,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return callRow(store, respond.CallId).Status == model.CallMissed
	}, time.Second, 10*time.Millisecond)
}

func TestCallNotFound(t *testing.T) {
	calls, _, _ := newCallFixture(t)
	_, err := calls.Accept("admin-1", &CallActionRequest{CallId: "no-such-call"})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeNotFound, errorx.GetCode(err))

	_, err = calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "no-such-conv", Type: model.CallAudio,
	})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeNotFound, errorx.GetCode(err))
}
