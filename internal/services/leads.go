package services

import (
	"context"
	"fmt"
	"strings"

	"bizassist/internal/core"
	"bizassist/internal/logger"
	"bizassist/internal/storage"
	"bizassist/internal/tools"
	"bizassist/pkg"
)

// LeadService captures the first message of every conversation as a lead
// and tells the business about it
type LeadService struct {
	store  storage.LeadStore
	tools  core.ToolExecutor
	notify bool
}

// NewLeadService creates the lead recorder. A nil executor disables notifications.
func NewLeadService(store storage.LeadStore, executor core.ToolExecutor, notify bool) *LeadService {
	return &LeadService{store: store, tools: executor, notify: notify && executor != nil}
}

// RecordLead stores the lead once per conversation. The notification goes
// through the tool executor, so it is never sent twice for one conversation.
func (s *LeadService) RecordLead(ctx context.Context, profile *pkg.BusinessProfile, state *pkg.ConversationState, message string) error {
	lead := pkg.Lead{
		BusinessID:     profile.ID,
		ConversationID: state.ID,
		Name:           state.UserName,
		FirstMessage:   message,
		CreatedAt:      state.CreatedAt,
	}
	created, err := s.store.SaveLead(ctx, lead)
	if err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}
	if !created || !s.notify || profile.ContactEmail == "" {
		return nil
	}

	action := s.tools.Execute(ctx, state.ID, pkg.ToolRequest{
		ToolName: tools.SendEmail,
		Parameters: map[string]string{
			"to":      profile.ContactEmail,
			"subject": fmt.Sprintf("New lead: %s", leadName(lead)),
			"body":    leadBody(profile, lead),
		},
	})
	if action.Failed() {
		logger.Warn().
			Str("business_id", profile.ID).
			Str("conversation_id", state.ID).
			Str("reason", action.Outcome.Reason).
			Msg("Lead notification failed")
	}
	return nil
}

// Leads returns the leads of a business, oldest first
func (s *LeadService) Leads(ctx context.Context, businessID string) ([]pkg.Lead, error) {
	return s.store.LoadLeads(ctx, businessID)
}

func leadName(lead pkg.Lead) string {
	if strings.TrimSpace(lead.Name) == "" {
		return "anonymous visitor"
	}
	return lead.Name
}

func leadBody(profile *pkg.BusinessProfile, lead pkg.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new customer started a conversation with the %s assistant.\n\n", profile.Name)
	fmt.Fprintf(&b, "Name: %s\n", leadName(lead))
	fmt.Fprintf(&b, "Conversation: %s\n", lead.ConversationID)
	if !lead.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s\n", lead.CreatedAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "\nFirst message:\n%s\n", lead.FirstMessage)
	return b.String()
}
