package pkg

import (
	"time"
)

// Intent is the category of request a user turn represents
type Intent string

const (
	IntentFAQ         Intent = "faq"
	IntentDocumentQA  Intent = "document_qa"
	IntentAppointment Intent = "appointment"
	IntentToolRequest Intent = "tool_request"
)

// AllIntents lists every intent in tie-break priority order (highest first)
var AllIntents = []Intent{IntentAppointment, IntentToolRequest, IntentDocumentQA, IntentFAQ}

// ParseIntent maps a label to a known intent
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentFAQ, IntentDocumentQA, IntentAppointment, IntentToolRequest:
		return Intent(s), true
	}
	return "", false
}

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a conversation's history
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the ordered turn history and metadata of one conversation
type ConversationState struct {
	ID             string    `json:"conversation_id"`
	BusinessID     string    `json:"business_id"`
	UserName       string    `json:"user_name"`
	Turns          []Turn    `json:"turns"`
	LastIntent     Intent    `json:"last_intent,omitempty"`
	AppointmentIDs []string  `json:"appointment_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConversationUpdate is what a finished turn appends to a conversation
type ConversationUpdate struct {
	Turns          []Turn   `json:"turns"`
	LastIntent     Intent   `json:"last_intent"`
	AppointmentIDs []string `json:"appointment_ids,omitempty"`
}

// DocumentChunk is a bounded fragment of an ingested document with its embedding
type DocumentChunk struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding,omitempty"`
}

// ScoredChunk is a retrieval hit
type ScoredChunk struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}

// Tool action outcome statuses
const (
	ToolSucceeded = "succeeded"
	ToolFailed    = "failed"
	ToolSkipped   = "skipped"
)

// ToolRequest asks the executor to perform one named side effect
type ToolRequest struct {
	ToolName   string            `json:"tool_name"`
	Parameters map[string]string `json:"parameters"`
	// Force re-executes an action even if an identical one already succeeded
	Force bool `json:"force,omitempty"`
}

// ToolOutcome is the result of one tool invocation
type ToolOutcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ToolAction is an immutable log entry of a tool invocation
type ToolAction struct {
	ToolName   string            `json:"tool_name"`
	Parameters map[string]string `json:"parameters"`
	Outcome    ToolOutcome       `json:"outcome"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Failed reports whether the action did not take effect because of an error
func (a ToolAction) Failed() bool {
	return a.Outcome.Status == ToolFailed
}

// TurnRequest is the input of one conversational turn
type TurnRequest struct {
	BusinessID     string `json:"business_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserName       string `json:"user_name"`
	Message        string `json:"message"`
}

// TurnResponse is the output of one conversational turn
type TurnResponse struct {
	Reply          string       `json:"reply"`
	ToolActions    []ToolAction `json:"tool_actions"`
	ConversationID string       `json:"conversation_id"`
	Intent         Intent       `json:"intent"`
	AnsweredBy     Intent       `json:"answered_by"`
	ProcessingTime int64        `json:"processing_time_ms"`
}

// Lead is a prospective customer captured on the first message of a conversation
type Lead struct {
	BusinessID     string    `json:"business_id"`
	ConversationID string    `json:"conversation_id"`
	Name           string    `json:"name"`
	FirstMessage   string    `json:"first_message"`
	CreatedAt      time.Time `json:"created_at"`
}
