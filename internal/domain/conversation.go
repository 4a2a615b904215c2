package domain

import "time"

// MessageRole identifies the author side of a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Conversation represents an audience conversation within a project.
type Conversation struct {
	ID        string
	ProjectID string
	Title     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Message is a single turn in a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// isValidMessageRole checks if a MessageRole is valid.
func isValidMessageRole(r MessageRole) bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant:
		return true
	}
	return false
}

// ValidateMessage validates a Message instance.
func ValidateMessage(m *Message) error {
	if m == nil {
		return ErrMissingRequiredField
	}
	if m.ID == "" || m.ConversationID == "" || m.Content == "" {
		return ErrMissingRequiredField
	}
	if !isValidMessageRole(m.Role) {
		return ErrInvalidMessageRole
	}
	return nil
}
