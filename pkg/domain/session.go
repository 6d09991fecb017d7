package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Message is a single utterance in the conversation history.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// TurnStatus is the position of a conversation in the turn state machine.
type TurnStatus string

const (
	StatusAwaitingInput TurnStatus = "AWAITING_INPUT"
	StatusProcessing    TurnStatus = "PROCESSING"
	StatusContinue      TurnStatus = "CONTINUE"
	StatusEnded         TurnStatus = "ENDED"
	StatusError         TurnStatus = "ERROR"
)

// ConversationSession is the caller-owned state of one conversation.
type ConversationSession struct {
	ConversationID string `json:"conversation_id"`

	// ActiveStageID mirrors the stage manager's mapping after each turn.
	ActiveStageID string `json:"active_stage_id"`

	Messages []Message `json:"messages"`

	// PendingUserInput is consumed by the next turn.
	PendingUserInput string `json:"pending_user_input,omitempty"`

	Status TurnStatus `json:"status"`

	// LastError describes the recovered failure of the last turn, if any.
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a session positioned at the given stage.
func NewSession(conversationID, stageID string) *ConversationSession {
	now := time.Now()
	return &ConversationSession{
		ConversationID: conversationID,
		ActiveStageID:  stageID,
		Messages:       []Message{},
		Status:         StatusAwaitingInput,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Snapshot creates a deep copy of the session.
func (s *ConversationSession) Snapshot() *ConversationSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}

// Ended reports whether the conversation reached a terminal outcome.
func (s *ConversationSession) Ended() bool {
	return s.Status == StatusEnded
}

// Append adds a message to the history.
func (s *ConversationSession) Append(role Role, text string) {
	s.Messages = append(s.Messages, Message{Role: role, Text: text})
	s.UpdatedAt = time.Now()
}

// LastAssistantMessage returns the most recent assistant reply, or "".
func (s *ConversationSession) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Text
		}
	}
	return ""
}
