package presence

// Client to server events
const (
	EventMarkNotificationRead = "mark_notification_read"
	EventMarkAllAsRead        = "mark_all_as_read"
	EventTypingStart          = "typing_start"
	EventTypingStop           = "typing_stop"
	EventGetOnlineStatus      = "get_online_status"
	EventPing                 = "ping"
	EventJoinConversation     = "join_conversation"
	EventLeaveConversation    = "leave_conversation"
)

// Server to client events
const (
	EventConnected                    = "connected"
	EventUnreadCount                  = "unread_count"
	EventNewNotification              = "new_notification"
	EventNotificationMarkedAsRead     = "notification_marked_as_read"
	EventAllNotificationsMarkedAsRead = "all_notifications_marked_as_read"
	EventUserTyping                   = "user_typing"
	EventUserStoppedTyping            = "user_stopped_typing"
	EventOnlineStatus                 = "online_status"
	EventPong                         = "pong"
	EventError                        = "error"
)

// State is the lifecycle state of one socket session
type State int

const (
	StateConnecting State = iota
	StateAdmitted
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAdmitted:
		return "admitted"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// VerifiedIdentity is what a successful credential check yields
type VerifiedIdentity struct {
	UserID string
}

// ConversationRoom returns the room name used for typing fan-out in a conversation
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}
