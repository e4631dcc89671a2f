package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"private_chat_server/internal/model"
)

func newDispatcherFixture(t *testing.T) (*Dispatcher, *SessionRegistry, *memStore) {
	t.Helper()
	repos, store := newMemRepos()
	registry := NewSessionRegistry()
	conversations := NewConversationService(repos, nil)
	messages := NewMessageService(repos, registry, conversations)
	calls := NewCallService(repos, registry)
	rtc := NewRTCService(repos, registry)
	return NewDispatcher(registry, messages, calls, rtc, conversations), registry, store
}

func rawData(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDispatchRejectsUnauthenticated(t *testing.T) {
	dispatcher, _, _ := newDispatcherFixture(t)
	uc := newUserConn(nil, "", model.RoleClient, "s1")

	dispatcher.Dispatch(&inboundEvent{Event: EventSendMessageClient, conn: uc})

	frames := collectFrames(t, uc)
	require.Len(t, frames, 1)
	assert.Equal(t, EventError, frames[0].Event)
	assert.False(t, frames[0].Payload.Success)
}

func TestDispatchInvalidPayload(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("client-1", "小王", model.RoleClient)
	uc := connectUser(registry, "client-1", model.RoleClient, "s1")

	// call_accept 缺少 call_id
	dispatcher.Dispatch(&inboundEvent{
		UserId: "client-1", Role: model.RoleClient,
		Event: EventCallAccept, Data: rawData(t, map[string]any{}),
		conn: uc,
	})

	frames := framesByEvent(collectFrames(t, uc), EventError)
	require.Len(t, frames, 1)
	assert.False(t, frames[0].Payload.Success)
	assert.NotEmpty(t, frames[0].Payload.Message)
}

func TestDispatchUnknownEvent(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("client-1", "小王", model.RoleClient)
	uc := connectUser(registry, "client-1", model.RoleClient, "s1")

	dispatcher.Dispatch(&inboundEvent{
		UserId: "client-1", Role: model.RoleClient, Event: "no_such_event", conn: uc,
	})

	require.Len(t, framesByEvent(collectFrames(t, uc), EventError), 1)
}

func TestDispatchAdminEventForbiddenForClient(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("client-1", "小王", model.RoleClient)
	uc := connectUser(registry, "client-1", model.RoleClient, "s1")

	dispatcher.Dispatch(&inboundEvent{
		UserId: "client-1", Role: model.RoleClient,
		Event: EventSendMessageAdmin,
		Data:  rawData(t, AdminMessageRequest{ClientId: "11111111-1111-1111-1111-111111111111", Content: "hi"}),
		conn:  uc,
	})

	frames := framesByEvent(collectFrames(t, uc), EventError)
	require.Len(t, frames, 1)
}

func TestDispatchClientMessageEndToEnd(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("client-1", "小王", model.RoleClient)
	store.addUser("admin-1", "客服A", model.RoleAdmin)
	client := connectUser(registry, "client-1", model.RoleClient, "s1")
	admin := connectUser(registry, "admin-1", model.RoleAdmin, "s1")

	dispatcher.Dispatch(&inboundEvent{
		UserId: "client-1", Role: model.RoleClient,
		Event: EventSendMessageClient,
		Data:  rawData(t, ClientMessageRequest{Content: "你好"}),
		conn:  client,
	})

	assert.Len(t, store.messages, 1)
	require.Len(t, framesByEvent(collectFrames(t, admin), EventNewMessage), 1)
	assert.Empty(t, framesByEvent(collectFrames(t, client), EventError))
}

func TestDispatchMarkReadRepliesToOriginator(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("client-1", "小王", model.RoleClient)
	store.addUser("admin-1", "客服A", model.RoleAdmin)
	admin := connectUser(registry, "admin-1", model.RoleAdmin, "s1")

	// 先让客户发一条，生成该消息的状态行
	clientConn := connectUser(registry, "client-1", model.RoleClient, "s1")
	dispatcher.Dispatch(&inboundEvent{
		UserId: "client-1", Role: model.RoleClient,
		Event: EventSendMessageClient,
		Data:  rawData(t, ClientMessageRequest{Content: "你好"}),
		conn:  clientConn,
	})
	require.Len(t, store.messages, 1)
	messageId := store.messages[0].Uuid
	collectFrames(t, admin)

	dispatcher.Dispatch(&inboundEvent{
		UserId: "admin-1", Role: model.RoleAdmin,
		Event: EventMarkMessageRead,
		Data:  rawData(t, MarkReadRequest{MessageIds: []int64{messageId}}),
		conn:  admin,
	})

	frames := framesByEvent(collectFrames(t, admin), EventSuccess)
	require.Len(t, frames, 1)
	var respond MarkReadRespond
	decodeData(t, frames[0], &respond)
	assert.Equal(t, int64(1), respond.UpdatedCount)
}

func TestDispatchLoadClientConversation(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("client-1", "小王", model.RoleClient)
	client := connectUser(registry, "client-1", model.RoleClient, "s1")

	dispatcher.Dispatch(&inboundEvent{
		UserId: "client-1", Role: model.RoleClient,
		Event: EventLoadClientConv, conn: client,
	})

	frames := framesByEvent(collectFrames(t, client), EventClientConv)
	require.Len(t, frames, 1)
	var detail ConversationDetailRespond
	decodeData(t, frames[0], &detail)
	assert.NotEmpty(t, detail.ConversationId)
	// 首次访问自动建会话
	assert.Len(t, store.conversations, 1)
}

func TestDispatchReplyFallsBackToRegistry(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("admin-1", "客服A", model.RoleAdmin)
	admin := connectUser(registry, "admin-1", model.RoleAdmin, "s1")

	// 模拟经过 Kafka 的事件：没有原始连接指针
	dispatcher.Dispatch(&inboundEvent{
		UserId: "admin-1", Role: model.RoleAdmin,
		Event: "no_such_event",
	})

	require.Len(t, framesByEvent(collectFrames(t, admin), EventError), 1)
}

func TestChannelBrokerDeliversEvents(t *testing.T) {
	dispatcher, registry, store := newDispatcherFixture(t)
	store.addUser("client-1", "小王", model.RoleClient)
	client := connectUser(registry, "client-1", model.RoleClient, "s1")

	broker := NewChannelBroker(dispatcher)
	broker.Start()
	defer broker.Close()

	require.NoError(t, broker.Publish(&inboundEvent{
		UserId: "client-1", Role: model.RoleClient,
		Event: EventSendMessageClient,
		Data:  rawData(t, ClientMessageRequest{Content: "异步投递"}),
		conn:  client,
	}))

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.messages) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestChannelBrokerClosedRejectsPublish(t *testing.T) {
	dispatcher, _, _ := newDispatcherFixture(t)
	broker := NewChannelBroker(dispatcher)
	broker.Start()
	broker.Close()

	err := broker.Publish(&inboundEvent{UserId: "client-1", Event: EventSendMessageClient})
	assert.Error(t, err)
}
