package services

import (
	"context"
	"fmt"

	"bizassist/internal/core"
	"bizassist/internal/index"
	"bizassist/internal/logger"
	"bizassist/internal/tools"
	"bizassist/pkg"

	"github.com/google/uuid"
)

// DocumentService adds documents to a business's index and tells the
// business once they are live
type DocumentService struct {
	ingestor *index.Ingestor
	tools    core.ToolExecutor
	notify   bool
}

// NewDocumentService creates the upload service. A nil executor disables notifications.
func NewDocumentService(ingestor *index.Ingestor, executor core.ToolExecutor, notify bool) *DocumentService {
	return &DocumentService{ingestor: ingestor, tools: executor, notify: notify && executor != nil}
}

// Upload ingests the file at path for the business and returns the document id
// and chunk count. Notification failures are logged, never returned.
func (s *DocumentService) Upload(ctx context.Context, profile *pkg.BusinessProfile, path string) (string, int, error) {
	documentID, n, err := s.ingestor.IngestFile(ctx, profile.ID, path)
	if err != nil {
		return "", 0, err
	}
	if s.notify {
		s.notifyUpload(ctx, profile, documentID)
	}
	return documentID, n, nil
}

// Remove deletes a document from the business's index
func (s *DocumentService) Remove(ctx context.Context, profile *pkg.BusinessProfile, documentID string) error {
	return s.ingestor.Delete(ctx, profile.ID, documentID)
}

// Chunks returns the number of indexed chunks of the business
func (s *DocumentService) Chunks(ctx context.Context, profile *pkg.BusinessProfile) (int, error) {
	return s.ingestor.Count(ctx, profile.ID)
}

func (s *DocumentService) notifyUpload(ctx context.Context, profile *pkg.BusinessProfile, documentID string) {
	message := uploadMessage(profile, documentID)
	// every upload is its own ledger scope, a re-upload is announced again
	scope := "upload:" + uuid.NewString()

	var requests []pkg.ToolRequest
	if profile.ContactEmail != "" {
		requests = append(requests, pkg.ToolRequest{
			ToolName: tools.SendEmail,
			Parameters: map[string]string{
				"to":      profile.ContactEmail,
				"subject": fmt.Sprintf("New document uploaded: %s", documentID),
				"body":    message,
			},
		})
	}
	if profile.ContactPhone != "" {
		requests = append(requests, pkg.ToolRequest{
			ToolName:   tools.SendMessage,
			Parameters: map[string]string{"to": profile.ContactPhone, "body": message},
		})
	}

	for _, req := range requests {
		action := s.tools.Execute(ctx, scope, req)
		if action.Failed() {
			logger.Warn().
				Str("business_id", profile.ID).
				Str("document_id", documentID).
				Str("tool", req.ToolName).
				Str("reason", action.Outcome.Reason).
				Msg("Upload notification failed")
		}
	}
}

func uploadMessage(profile *pkg.BusinessProfile, documentID string) string {
	return fmt.Sprintf("New document uploaded for %s: %s. The assistant will now use it for customer answers.",
		businessName(profile), documentID)
}

func businessName(profile *pkg.BusinessProfile) string {
	if profile.Name == "" {
		return profile.ID
	}
	return profile.Name
}
