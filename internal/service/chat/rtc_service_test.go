package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"private_chat_server/internal/model"
	"private_chat_server/pkg/errorx"
)

func newRTCFixture(t *testing.T) (*RTCService, *CallService, *SessionRegistry, *memStore) {
	t.Helper()
	repos, store := newMemRepos()
	registry := NewSessionRegistry()
	return NewRTCService(repos, registry), NewCallService(repos, registry), registry, store
}

// 建立一通三人通话并清空此前的推送
func setupThreeWayCall(t *testing.T, calls *CallService, registry *SessionRegistry, store *memStore) (string, *UserConn, *UserConn, *UserConn) {
	t.Helper()
	seedConversation(store, "conv-1", "client-1", "admin-1", "admin-2")
	client := connectUser(registry, "client-1", model.RoleClient, "s1")
	admin1 := connectUser(registry, "admin-1", model.RoleAdmin, "s1")
	admin2 := connectUser(registry, "admin-2", model.RoleAdmin, "s1")

	respond, err := calls.Initiate("client-1", &InitiateCallRequest{
		ConversationId: "conv-1", Type: model.CallVideo,
	})
	require.NoError(t, err)
	collectFrames(t, client)
	collectFrames(t, admin1)
	collectFrames(t, admin2)
	return respond.CallId, client, admin1, admin2
}

func TestOfferRelayedToOthersOnly(t *testing.T) {
	rtc, calls, registry, store := newRTCFixture(t)
	callId, client, admin1, admin2 := setupThreeWayCall(t, calls, registry, store)

	require.NoError(t, rtc.HandleOffer("client-1", &RTCOfferRequest{
		CallId: callId, Sdp: "v=0 offer",
	}))

	// 发送者自己收不到
	assert.Empty(t, framesByEvent(collectFrames(t, client), EventRTCOffer))

	for _, peer := range []*UserConn{admin1, admin2} {
		frames := framesByEvent(collectFrames(t, peer), EventRTCOffer)
		require.Len(t, frames, 1)
		var signal RTCSignalRespond
		decodeData(t, frames[0], &signal)
		assert.Equal(t, "client-1", signal.From)
		assert.Equal(t, "v=0 offer", signal.Sdp)
		assert.Equal(t, callId, signal.CallId)
	}
}

func TestAnswerRelayedWithSenderTag(t *testing.T) {
	rtc, calls, registry, store := newRTCFixture(t)
	callId, client, admin1, admin2 := setupThreeWayCall(t, calls, registry, store)

	require.NoError(t, rtc.HandleAnswer("admin-1", &RTCAnswerRequest{
		CallId: callId, Sdp: "v=0 answer",
	}))

	assert.Empty(t, framesByEvent(collectFrames(t, admin1), EventRTCAnswer))

	clientFrames := framesByEvent(collectFrames(t, client), EventRTCAnswer)
	require.Len(t, clientFrames, 1)
	var signal RTCSignalRespond
	decodeData(t, clientFrames[0], &signal)
	assert.Equal(t, "admin-1", signal.From)
	require.Len(t, framesByEvent(collectFrames(t, admin2), EventRTCAnswer), 1)
}

func TestIceCandidateRelayed(t *testing.T) {
	rtc, calls, registry, store := newRTCFixture(t)
	callId, client, admin1, _ := setupThreeWayCall(t, calls, registry, store)

	require.NoError(t, rtc.HandleCandidate("admin-1", &RTCIceCandidateRequest{
		CallId:        callId,
		Candidate:     "candidate:1 1 UDP 2122260223 192.168.1.10 54321 typ host",
		SdpMid:        "0",
		SdpMLineIndex: "0",
	}))

	frames := framesByEvent(collectFrames(t, client), EventRTCIceCandidate)
	require.Len(t, frames, 1)
	var signal RTCSignalRespond
	decodeData(t, frames[0], &signal)
	assert.Equal(t, "admin-1", signal.From)
	assert.Equal(t, "0", signal.SdpMid)
	assert.Contains(t, signal.Candidate, "typ host")

	assert.Empty(t, framesByEvent(collectFrames(t, admin1), EventRTCIceCandidate))
}

func TestRelayUnknownCall(t *testing.T) {
	rtc, _, _, _ := newRTCFixture(t)
	err := rtc.HandleOffer("client-1", &RTCOfferRequest{CallId: "no-such-call", Sdp: "v=0"})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeNotFound, errorx.GetCode(err))
}

func TestRelayRequiresParticipant(t *testing.T) {
	rtc, calls, registry, store := newRTCFixture(t)
	callId, _, _, _ := setupThreeWayCall(t, calls, registry, store)

	err := rtc.HandleOffer("stranger", &RTCOfferRequest{CallId: callId, Sdp: "v=0"})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeForbidden, errorx.GetCode(err))
}
