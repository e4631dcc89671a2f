// dispatcher.go
// 入站事件分发
// 统一完成三件事：空载荷兜底、validator 结构校验、按事件名路由到业务
// 业务返回的错误折叠成统一错误信封回给发起端
package chat

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"private_chat_server/pkg/errorx"
)

// Dispatcher 事件分发器
type Dispatcher struct {
	registry      *SessionRegistry
	validate      *validator.Validate
	messages      *MessageService
	calls         *CallService
	rtc           *RTCService
	conversations *ConversationService
}

// NewDispatcher 创建分发器
func NewDispatcher(registry *SessionRegistry, messages *MessageService, calls *CallService, rtc *RTCService, conversations *ConversationService) *Dispatcher {
	return &Dispatcher{
		registry:      registry,
		validate:      validator.New(),
		messages:      messages,
		calls:         calls,
		rtc:           rtc,
		conversations: conversations,
	}
}

// reply 回执给发起端
// 有原始连接指针时精确回到该端，经过 Kafka 的事件退化为回给该用户全部在线端
func (d *Dispatcher) reply(evt *inboundEvent, event string, env Envelope) {
	if evt.conn != nil {
		evt.conn.sendEnvelope(event, env)
		return
	}
	d.registry.NotifyUser(evt.UserId, event, env)
}

func (d *Dispatcher) replyError(evt *inboundEvent, err error) {
	message := "服务内部错误"
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) {
		message = codeErr.Msg
	}
	d.reply(evt, EventError, ErrorEnvelope(message))
}

// bindPayload 解析并校验事件载荷
func (d *Dispatcher) bindPayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errorx.ErrInvalidParam
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidParam, "载荷格式错误")
	}
	if err := d.validate.Struct(v); err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidParam, "载荷校验失败")
	}
	return nil
}

// requireOperator 管理员专属事件的权限校验
func (d *Dispatcher) requireOperator(evt *inboundEvent) error {
	if !evt.Role.IsOperator() {
		return errorx.New(errorx.CodeForbidden, "无权执行该操作")
	}
	return nil
}

// Dispatch 按事件名路由
func (d *Dispatcher) Dispatch(evt *inboundEvent) {
	if evt.UserId == "" {
		d.reply(evt, EventError, ErrorEnvelope("未认证的连接"))
		return
	}

	var err error
	switch evt.Event {
	case EventSendMessageClient:
		err = d.handleClientMessage(evt)
	case EventSendMessageAdmin:
		err = d.handleAdminMessage(evt)
	case EventUpdateStatus:
		err = d.handleStatusUpdate(evt)
	case EventMarkMessageRead:
		err = d.handleMarkRead(evt)
	case EventCallInitiate:
		err = d.handleCallInitiate(evt)
	case EventCallAccept:
		err = d.handleCallAccept(evt)
	case EventCallReject:
		err = d.handleCallAction(evt, d.calls.Reject)
	case EventCallJoin:
		err = d.handleCallJoin(evt)
	case EventCallLeave:
		err = d.handleCallAction(evt, d.calls.Leave)
	case EventCallEnd:
		err = d.handleCallEnd(evt)
	case EventRTCOffer:
		err = d.handleRTCOffer(evt)
	case EventRTCAnswer:
		err = d.handleRTCAnswer(evt)
	case EventRTCIceCandidate:
		err = d.handleRTCCandidate(evt)
	case EventLoadConversations:
		err = d.handleLoadConversations(evt)
	case EventLoadSingleConv:
		err = d.handleLoadSingleConversation(evt)
	case EventInitConversation:
		err = d.handleInitConversation(evt)
	case EventLoadClientConv:
		err = d.handleLoadClientConversation(evt)
	default:
		err = errorx.Newf(errorx.CodeInvalidParam, "未知事件: %s", evt.Event)
	}

	if err != nil {
		zap.L().Warn("事件处理失败", zap.String("event", evt.Event),
			zap.String("userId", evt.UserId), zap.Error(err))
		d.replyError(evt, err)
	}
}

func (d *Dispatcher) handleClientMessage(evt *inboundEvent) error {
	var req ClientMessageRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	_, err := d.messages.SendFromClient(evt.UserId, &req)
	return err
}

func (d *Dispatcher) handleAdminMessage(evt *inboundEvent) error {
	if err := d.requireOperator(evt); err != nil {
		return err
	}
	var req AdminMessageRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	_, err := d.messages.SendFromOperator(evt.UserId, &req)
	return err
}

func (d *Dispatcher) handleStatusUpdate(evt *inboundEvent) error {
	var req StatusUpdateRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	_, err := d.messages.UpdateStatus(evt.UserId, &req)
	return err
}

func (d *Dispatcher) handleMarkRead(evt *inboundEvent) error {
	var req MarkReadRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	respond, err := d.messages.MarkRead(evt.UserId, &req)
	if err != nil {
		return err
	}
	d.reply(evt, EventSuccess, SuccessEnvelope(respond, "已读标记完成"))
	return nil
}

func (d *Dispatcher) handleCallInitiate(evt *inboundEvent) error {
	var req InitiateCallRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	_, err := d.calls.Initiate(evt.UserId, &req)
	return err
}

func (d *Dispatcher) handleCallAccept(evt *inboundEvent) error {
	var req CallActionRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	_, err := d.calls.Accept(evt.UserId, &req)
	return err
}

func (d *Dispatcher) handleCallJoin(evt *inboundEvent) error {
	var req CallActionRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	_, err := d.calls.Join(evt.UserId, &req)
	return err
}

// handleCallAction reject/leave 共用的处理骨架
func (d *Dispatcher) handleCallAction(evt *inboundEvent, action func(string, *CallActionRequest) error) error {
	var req CallActionRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	return action(evt.UserId, &req)
}

func (d *Dispatcher) handleCallEnd(evt *inboundEvent) error {
	var req CallActionRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	return d.calls.End(evt.UserId, evt.Role, &req)
}

func (d *Dispatcher) handleRTCOffer(evt *inboundEvent) error {
	var req RTCOfferRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	return d.rtc.HandleOffer(evt.UserId, &req)
}

func (d *Dispatcher) handleRTCAnswer(evt *inboundEvent) error {
	var req RTCAnswerRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	return d.rtc.HandleAnswer(evt.UserId, &req)
}

func (d *Dispatcher) handleRTCCandidate(evt *inboundEvent) error {
	var req RTCIceCandidateRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	return d.rtc.HandleCandidate(evt.UserId, &req)
}

func (d *Dispatcher) handleLoadConversations(evt *inboundEvent) error {
	if err := d.requireOperator(evt); err != nil {
		return err
	}
	var req LoadConversationsRequest
	if len(evt.Data) > 0 {
		if err := d.bindPayload(evt.Data, &req); err != nil {
			return err
		}
	}
	respond, err := d.conversations.LoadList(&req)
	if err != nil {
		return err
	}
	d.reply(evt, EventConversationList, SuccessEnvelope(respond, ""))
	return nil
}

func (d *Dispatcher) handleLoadSingleConversation(evt *inboundEvent) error {
	if err := d.requireOperator(evt); err != nil {
		return err
	}
	var req LoadSingleConversationRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	respond, err := d.conversations.LoadSingle(&req)
	if err != nil {
		return err
	}
	d.reply(evt, EventSingleConv, SuccessEnvelope(respond, ""))
	return nil
}

func (d *Dispatcher) handleInitConversation(evt *inboundEvent) error {
	if err := d.requireOperator(evt); err != nil {
		return err
	}
	var req InitConversationRequest
	if err := d.bindPayload(evt.Data, &req); err != nil {
		return err
	}
	respond, err := d.conversations.InitWithClient(evt.UserId, &req)
	if err != nil {
		return err
	}
	d.reply(evt, EventSingleConv, SuccessEnvelope(respond, ""))
	return nil
}

func (d *Dispatcher) handleLoadClientConversation(evt *inboundEvent) error {
	var req LoadConversationsRequest
	if len(evt.Data) > 0 {
		if err := d.bindPayload(evt.Data, &req); err != nil {
			return err
		}
	}
	respond, err := d.conversations.LoadForClient(evt.UserId, req.Page, req.Limit)
	if err != nil {
		return err
	}
	d.reply(evt, EventClientConv, SuccessEnvelope(respond, ""))
	return nil
}
