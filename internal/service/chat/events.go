// Package chat 实现了客服聊天系统的实时核心
// events.go
// 核心职责：事件目录、统一响应信封和各事件的载荷定义
// 载荷为带 validator 标签的具名结构体，在传输层边界完成校验
package chat

import (
	"encoding/json"

	"private_chat_server/internal/model"
)

// ==================== 入站事件 ====================

const (
	EventSendMessageClient  = "send_message_client"  // 客户发消息给管理员组
	EventSendMessageAdmin   = "send_message_admin"   // 管理员发消息给客户
	EventUpdateStatus       = "update_message_status" // 上报消息投递状态
	EventMarkMessageRead    = "mark_message_read"    // 批量标记已读
	EventCallInitiate       = "call_initiate"        // 发起通话
	EventCallAccept         = "call_accept"          // 接听通话
	EventCallReject         = "call_reject"          // 拒接通话
	EventCallJoin           = "call_join"            // 加入进行中的通话
	EventCallLeave          = "call_leave"           // 离开通话
	EventCallEnd            = "call_end"             // 主动结束通话
	EventRTCOffer           = "rtc_offer"            // WebRTC Offer
	EventRTCAnswer          = "rtc_answer"           // WebRTC Answer
	EventRTCIceCandidate    = "rtc_ice_candidate"    // WebRTC ICE Candidate
	EventLoadConversations  = "load_conversation_list"        // 管理员拉取会话列表
	EventLoadSingleConv     = "load_single_conversation"      // 管理员拉取单个会话历史
	EventInitConversation   = "init_conversation_with_client" // 管理员主动建立会话
	EventLoadClientConv     = "load_client_conversation"      // 客户拉取自己的会话
)

// ==================== 出站事件 ====================

const (
	EventNewMessage       = "new_message"
	EventCallIncoming     = "call_incoming"
	EventCallMissed       = "call_missed"
	EventError            = "error"
	EventSuccess          = "success"
	EventConversationList = "conversation_list"
	EventSingleConv       = "single_conversation"
	EventClientConv       = "client_conversation"
	// call_accept / call_reject / call_join / call_leave / call_end /
	// update_message_status / rtc_* 入站与出站同名，复用上方常量
)

// Envelope 统一出站信封
// 所有推送给前端的载荷都包裹 success 标志、数据体和提示信息
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// SuccessEnvelope 构造成功信封
func SuccessEnvelope(data any, message string) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

// ErrorEnvelope 构造失败信封
func ErrorEnvelope(message string) Envelope {
	return Envelope{Success: false, Message: message}
}

// Frame 入站帧
// 前端统一发送 {"event": ..., "data": {...}}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutFrame 出站帧
type OutFrame struct {
	Event   string   `json:"event"`
	Payload Envelope `json:"payload"`
}

// inboundEvent 经过网关鉴权后的入站事件
// conn 仅在 Channel 模式下可用，Kafka 模式下通过 UserId 回查在线连接
type inboundEvent struct {
	UserId string          `json:"user_id"`
	Role   model.UserRole  `json:"role"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`

	conn *UserConn `json:"-"`
}

// ==================== 消息事件载荷 ====================

// ClientMessageRequest 客户发送消息
type ClientMessageRequest struct {
	Content  string            `json:"content"`
	Type     model.MessageType `json:"type" validate:"omitempty,oneof=TEXT FILE SYSTEM"`
	FileUuid string            `json:"file_id" validate:"omitempty,uuid"`
}

// AdminMessageRequest 管理员发送消息
type AdminMessageRequest struct {
	ClientId string            `json:"client_id" validate:"required,uuid"`
	Content  string            `json:"content"`
	Type     model.MessageType `json:"type" validate:"omitempty,oneof=TEXT FILE SYSTEM"`
	FileUuid string            `json:"file_id" validate:"omitempty,uuid"`
}

// StatusUpdateRequest 上报消息投递状态
// UserId 缺省时取当前连接身份
type StatusUpdateRequest struct {
	MessageId int64                `json:"message_id" validate:"required"`
	UserId    string               `json:"user_id" validate:"omitempty,uuid"`
	Status    model.DeliveryStatus `json:"status" validate:"required,oneof=SENT DELIVERED READ"`
}

// MarkReadRequest 批量标记已读
type MarkReadRequest struct {
	MessageIds []int64 `json:"message_ids" validate:"required,min=1"`
}

// ==================== 通话事件载荷 ====================

// InitiateCallRequest 发起通话
type InitiateCallRequest struct {
	ConversationId string         `json:"conversation_id" validate:"required,uuid"`
	Type           model.CallType `json:"type" validate:"required,oneof=AUDIO VIDEO"`
}

// CallActionRequest accept/reject/join/leave/end 共用载荷
type CallActionRequest struct {
	CallId string `json:"call_id" validate:"required,uuid"`
}

// ==================== WebRTC 信令载荷 ====================

// RTCOfferRequest Offer SDP
// SDP 内容对本层不透明，只做结构校验
type RTCOfferRequest struct {
	CallId string `json:"call_id" validate:"required,uuid"`
	Sdp    string `json:"sdp" validate:"required"`
}

// RTCAnswerRequest Answer SDP
type RTCAnswerRequest struct {
	CallId string `json:"call_id" validate:"required,uuid"`
	Sdp    string `json:"sdp" validate:"required"`
}

// RTCIceCandidateRequest ICE Candidate
type RTCIceCandidateRequest struct {
	CallId        string `json:"call_id" validate:"required,uuid"`
	Candidate     string `json:"candidate" validate:"required"`
	SdpMid        string `json:"sdp_mid"`
	SdpMLineIndex string `json:"sdp_mline_index"`
}

// ==================== 会话读取载荷 ====================

// LoadConversationsRequest 管理员拉取会话列表
type LoadConversationsRequest struct {
	Page  int `json:"page" validate:"omitempty,min=1"`
	Limit int `json:"limit" validate:"omitempty,min=1,max=100"`
}

// LoadSingleConversationRequest 管理员拉取单个会话历史
type LoadSingleConversationRequest struct {
	ConversationId string `json:"conversation_id" validate:"required,uuid"`
	Page           int    `json:"page" validate:"omitempty,min=1"`
	Limit          int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// InitConversationRequest 管理员主动与客户建立会话
type InitConversationRequest struct {
	ClientId string `json:"client_id" validate:"required,uuid"`
}

// ==================== 出站数据体 ====================

// MessageRespond 推送给前端的消息体
type MessageRespond struct {
	MessageId        int64             `json:"message_id"`
	ConversationId   string            `json:"conversation_id"`
	SenderId         string            `json:"sender_id"`
	Type             model.MessageType `json:"type"`
	Content          string            `json:"content"`
	FileUuid         string            `json:"file_id,omitempty"`
	FromAdmin        bool              `json:"from_admin,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

// StatusRespond 推送给前端的消息状态变更
type StatusRespond struct {
	MessageId int64                `json:"message_id"`
	UserId    string               `json:"user_id"`
	Status    model.DeliveryStatus `json:"status"`
}

// MarkReadRespond 批量已读结果
type MarkReadRespond struct {
	UpdatedCount int64 `json:"updated_count"`
}

// CallRespond 推送给前端的通话信息
type CallRespond struct {
	CallId         string                   `json:"call_id"`
	ConversationId string                   `json:"conversation_id"`
	InitiatorId    string                   `json:"initiator_id"`
	Type           model.CallType           `json:"type"`
	Status         model.CallStatus         `json:"status"`
	Participants   []CallParticipantRespond `json:"participants,omitempty"`
}

// CallParticipantRespond 通话参与者信息
type CallParticipantRespond struct {
	UserId string                  `json:"user_id"`
	Name   string                  `json:"name,omitempty"`
	Status model.ParticipantStatus `json:"status"`
}

// CallActionRespond accept/reject/join/leave 的广播体
type CallActionRespond struct {
	CallId string `json:"call_id"`
	UserId string `json:"user_id,omitempty"`
}

// RTCSignalRespond 转发给其他参与者的信令，带上发送者身份
type RTCSignalRespond struct {
	CallId        string `json:"call_id"`
	From          string `json:"from"`
	Sdp           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SdpMid        string `json:"sdp_mid,omitempty"`
	SdpMLineIndex string `json:"sdp_mline_index,omitempty"`
}
