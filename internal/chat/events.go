package chat

// Socket event names shared by the router and the transport.
const (
	EventSendMessage    = "sendMessage"
	EventDeleteMessage  = "deleteMessage"
	EventReceiveMessage = "receiveMessage"
	EventDMListUpdate   = "dmListUpdate"
	EventMessageDeleted = "messageDeleted"
	EventOnlineUsers    = "onlineUsers"
)

// MessageDeleted is the payload of a messageDeleted event.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}
