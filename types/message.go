package types

import "time"

// Role represents the role of a conversation participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is one conversation turn as stored per client session
// and as serialized inside a conversation_history frame.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserEntry creates a history entry for a client message.
func NewUserEntry(message string) HistoryEntry {
	return HistoryEntry{Role: RoleUser, Message: message, Timestamp: time.Now()}
}

// NewAssistantEntry creates a history entry for a generated response.
func NewAssistantEntry(message string) HistoryEntry {
	return HistoryEntry{Role: RoleAssistant, Message: message, Timestamp: time.Now()}
}
