// rtc_service.go
// WebRTC 信令转发
// 服务端不理解 SDP 与 Candidate 内容，只做寻址：转给除发送者外的全部通话参与者
// 媒体流本身点对点传输，不经过本服务
package chat

import (
	"go.uber.org/zap"

	"private_chat_server/internal/dao/mysql"
	"private_chat_server/pkg/errorx"
)

// RTCService 信令转发业务
type RTCService struct {
	repos    *mysql.Repositories
	registry *SessionRegistry
}

// NewRTCService 创建信令转发服务
func NewRTCService(repos *mysql.Repositories, registry *SessionRegistry) *RTCService {
	return &RTCService{repos: repos, registry: registry}
}

// relay 向除发送者外的通话参与者转发信令
func (s *RTCService) relay(senderUuid, callUuid, event string, respond *RTCSignalRespond) error {
	if _, err := s.repos.Call.FindByUuid(callUuid); err != nil {
		if errorx.IsNotFound(err) {
			return errorx.New(errorx.CodeNotFound, "通话不存在")
		}
		return err
	}
	participants, err := s.repos.CallParticipant.FindByCallUuid(callUuid)
	if err != nil {
		return err
	}

	sender := false
	targets := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.UserUuid == senderUuid {
			sender = true
			continue
		}
		targets = append(targets, p.UserUuid)
	}
	if !sender {
		return errorx.New(errorx.CodeForbidden, "您不是该通话的参与者")
	}

	s.registry.Broadcast(targets, event, SuccessEnvelope(respond, ""))
	zap.L().Debug("转发信令", zap.String("event", event),
		zap.String("callId", callUuid), zap.String("from", senderUuid), zap.Int("targets", len(targets)))
	return nil
}

// HandleOffer 转发 Offer
func (s *RTCService) HandleOffer(senderUuid string, req *RTCOfferRequest) error {
	return s.relay(senderUuid, req.CallId, EventRTCOffer, &RTCSignalRespond{
		CallId: req.CallId,
		From:   senderUuid,
		Sdp:    req.Sdp,
	})
}

// HandleAnswer 转发 Answer
func (s *RTCService) HandleAnswer(senderUuid string, req *RTCAnswerRequest) error {
	return s.relay(senderUuid, req.CallId, EventRTCAnswer, &RTCSignalRespond{
		CallId: req.CallId,
		From:   senderUuid,
		Sdp:    req.Sdp,
	})
}

// HandleCandidate 转发 ICE Candidate
func (s *RTCService) HandleCandidate(senderUuid string, req *RTCIceCandidateRequest) error {
	return s.relay(senderUuid, req.CallId, EventRTCIceCandidate, &RTCSignalRespond{
		CallId:        req.CallId,
		From:          senderUuid,
		Candidate:     req.Candidate,
		SdpMid:        req.SdpMid,
		SdpMLineIndex: req.SdpMLineIndex,
	})
}
