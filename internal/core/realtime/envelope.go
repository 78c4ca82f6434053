package realtime

import "time"

// Wire message types. Every envelope carries one of these in its "type"
// field so clients can dispatch without inspecting the rest of the object.
const (
	MessageTypeProcessingUpdate = "processing_update"
	MessageTypeApprovalUpdate   = "approval_update"
	MessageTypeConnectionStatus = "connection_status"
	MessageTypeHeartbeat        = "heartbeat"
	MessageTypeError            = "error"
	MessageTypePong             = "pong"
)

// ProcessingStatus is the lifecycle state reported by the processing
// pipeline.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// ProcessingUpdate reports progress of one conversation through the
// processing pipeline.
type ProcessingUpdate struct {
	Type           string           `json:"type"`
	ConversationID int              `json:"conversation_id"`
	Status         ProcessingStatus `json:"status"`
	Stage          string           `json:"stage"`
	Progress       int              `json:"progress"`
	Message        string           `json:"message"`
	Timestamp      time.Time        `json:"timestamp"`
}

// NewProcessingUpdate builds a processing update envelope. Progress is
// clamped to [0, 100].
func NewProcessingUpdate(conversationID int, status ProcessingStatus, stage string, progress int, message string) ProcessingUpdate {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return ProcessingUpdate{
		Type:           MessageTypeProcessingUpdate,
		ConversationID: conversationID,
		Status:         status,
		Stage:          stage,
		Progress:       progress,
		Message:        message,
		Timestamp:      time.Now().UTC(),
	}
}

// ApprovalUpdate reports a review state transition for one temp example.
type ApprovalUpdate struct {
	Type           string    `json:"type"`
	TempExampleID  int       `json:"temp_example_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ReviewerID     string    `json:"reviewer_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewApprovalUpdate builds an approval update envelope.
func NewApprovalUpdate(tempExampleID int, previousStatus, newStatus, reviewerID string) ApprovalUpdate {
	return ApprovalUpdate{
		Type:           MessageTypeApprovalUpdate,
		TempExampleID:  tempExampleID,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		ReviewerID:     reviewerID,
		Timestamp:      time.Now().UTC(),
	}
}

// ConnectionStatus is sent once to a client after a successful connect.
type ConnectionStatus struct {
	Type        string       `json:"type"`
	UserID      string       `json:"user_id"`
	RoomID      string       `json:"room_id"`
	Status      string       `json:"status"`
	Permissions []Permission `json:"permissions"`
	UserCount   int          `json:"user_count"`
	Timestamp   time.Time    `json:"timestamp"`
}

// NewConnectionStatus builds the post-connect status envelope.
func NewConnectionStatus(info *ConnectionInfo, userCount int) ConnectionStatus {
	return ConnectionStatus{
		Type:        MessageTypeConnectionStatus,
		UserID:      info.UserID,
		RoomID:      info.RoomID,
		Status:      "connected",
		Permissions: info.Permissions.Slice(),
		UserCount:   userCount,
		Timestamp:   time.Now().UTC(),
	}
}

// Heartbeat is the periodic liveness broadcast.
type Heartbeat struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHeartbeat builds a heartbeat envelope.
func NewHeartbeat() Heartbeat {
	return Heartbeat{Type: MessageTypeHeartbeat, Timestamp: time.Now().UTC()}
}

// ErrorMessage reports a server-side error to a client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error envelope.
func NewErrorMessage(code, message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Code: code, Message: message}
}

// Pong answers a client ping.
type Pong struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPong builds a pong envelope.
func NewPong() Pong {
	return Pong{Type: MessageTypePong, Timestamp: time.Now().UTC()}
}
