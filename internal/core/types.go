package core

import (
	"context"
	"errors"
	"time"

	"bizassist/pkg"
)

var (
	// ErrInvalidRequest is returned for malformed turn requests
	ErrInvalidRequest = errors.New("invalid turn request")
	// ErrBusinessNotFound is returned when the business has no profile
	ErrBusinessNotFound = errors.New("business not found")
)

// Node represents a single processing unit of a turn
type Node interface {
	Execute(ctx context.Context, input NodeInput) (NodeOutput, error)
	GetName() string
	GetType() NodeType
}

// NodeType defines the different types of nodes
type NodeType string

const (
	NodeTypeClassifier NodeType = "classifier"
	NodeTypeEvidence   NodeType = "evidence"
	NodeTypeTools      NodeType = "tools"
)

// Stage is a state of the turn state machine
type Stage string

const (
	StageReceived         Stage = "received"
	StageClassified       Stage = "classified"
	StageEvidenceGathered Stage = "evidence_gathered"
	StageToolsExecuted    Stage = "tools_executed"
	StageResponded        Stage = "responded"
)

// NodeInput contains the input data for a node
type NodeInput struct {
	BusinessID     string               `json:"business_id"`
	ConversationID string               `json:"conversation_id"`
	UserName       string               `json:"user_name"`
	UserMessage    string               `json:"user_message"`
	Profile        *pkg.BusinessProfile `json:"profile"`
	// History is the recent window of the conversation, oldest first
	History        []pkg.Turn `json:"history"`
	LastIntent     pkg.Intent `json:"last_intent,omitempty"`
	AppointmentIDs []string   `json:"appointment_ids,omitempty"`
	Intent         pkg.Intent `json:"intent,omitempty"`
	Now            time.Time  `json:"now"`
}

// NodeOutput contains the output data from a node
type NodeOutput struct {
	Intent       pkg.Intent        `json:"intent,omitempty"`
	Reply        string            `json:"reply,omitempty"`
	ToolRequests []pkg.ToolRequest `json:"tool_requests,omitempty"`
	// AppointmentIDs are records created or touched by this turn
	AppointmentIDs []string `json:"appointment_ids,omitempty"`
	// Escalate asks the orchestrator to hand the turn to document_qa
	Escalate bool           `json:"escalate,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolExecutor performs tool requests and never fails a turn
type ToolExecutor interface {
	Execute(ctx context.Context, conversationID string, req pkg.ToolRequest) pkg.ToolAction
}

// LeadRecorder captures the first message of a conversation
type LeadRecorder interface {
	RecordLead(ctx context.Context, profile *pkg.BusinessProfile, state *pkg.ConversationState, message string) error
}
