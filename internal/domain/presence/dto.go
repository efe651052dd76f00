package presence

import (
	"encoding/json"
	"time"

	"github.com/linkpulse/notifyhub/internal/domain/notification"
)

// ============= Envelopes =============

// Message is the outbound wire envelope
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// InboundMessage is the inbound wire envelope. Data is decoded per event.
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ============= Inbound payloads =============

type MarkNotificationReadPayload struct {
	NotificationID string `json:"notificationId" validate:"required"`
}

// ConversationPayload is shared by typing and join/leave events
type ConversationPayload struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
}

type OnlineStatusRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,max=100,dive,required"`
}

// ============= Outbound payloads =============

type ConnectedPayload struct {
	UserID string `json:"userId"`
}

type UnreadCountPayload struct {
	Count int `json:"count"`
}

type NewNotificationPayload struct {
	Payload   notification.NotificationResponse `json:"payload"`
	Timestamp time.Time                         `json:"timestamp"`
}

type NotificationMarkedAsReadPayload struct {
	Notification notification.NotificationResponse `json:"notification"`
}

type AllNotificationsMarkedAsReadPayload struct {
	Updated int64 `json:"updated"`
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type UserStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type OnlineStatusPayload struct {
	Statuses []UserStatus `json:"statuses"`
}

// PongPayload carries the server time in unix milliseconds
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// OnlineStatusResponse is the REST shape of a presence query
type OnlineStatusResponse struct {
	Statuses []UserStatus `json:"statuses"`
}
