package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bizassist/internal/logger"
	"bizassist/pkg"

	"github.com/bytedance/sonic"
)

// JSONLeadStore keeps one JSON file of leads per business
type JSONLeadStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewJSONLeadStore creates a lead store rooted at baseDir
func NewJSONLeadStore(baseDir string) *JSONLeadStore {
	return &JSONLeadStore{baseDir: baseDir}
}

// LoadLeads returns all leads of a business, oldest first
func (j *JSONLeadStore) LoadLeads(ctx context.Context, businessID string) ([]pkg.Lead, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load(businessID)
}

// SaveLead stores a lead once per conversation and reports whether it was new
func (j *JSONLeadStore) SaveLead(ctx context.Context, lead pkg.Lead) (bool, error) {
	if lead.BusinessID == "" || lead.ConversationID == "" {
		return false, fmt.Errorf("lead needs a business and a conversation")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create leads directory: %w", err)
	}

	leads, err := j.load(lead.BusinessID)
	if err != nil {
		return false, err
	}
	for _, l := range leads {
		if l.ConversationID == lead.ConversationID {
			return false, nil
		}
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	leads = append(leads, lead)

	if err := j.write(lead.BusinessID, leads); err != nil {
		return false, err
	}

	logger.Info().
		Str("business_id", lead.BusinessID).
		Str("conversation_id", lead.ConversationID).
		Int("total_leads", len(leads)).
		Msg("Lead saved")
	return true, nil
}

// CleanupOldLeads removes leads older than maxAge and returns how many were removed
func (j *JSONLeadStore) CleanupOldLeads(ctx context.Context, businessID string, maxAge time.Duration) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	leads, err := j.load(businessID)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	kept := leads[:0:0]
	for _, l := range leads {
		if l.CreatedAt.After(cutoff) {
			kept = append(kept, l)
		}
	}
	removed := len(leads) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := j.write(businessID, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (j *JSONLeadStore) path(businessID string) string {
	return filepath.Join(j.baseDir, businessID+".json")
}

func (j *JSONLeadStore) load(businessID string) ([]pkg.Lead, error) {
	data, err := os.ReadFile(j.path(businessID))
	if errors.Is(err, fs.ErrNotExist) {
		return []pkg.Lead{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leads file: %w", err)
	}

	var leads []pkg.Lead
	if err := sonic.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("failed to parse leads file: %w", err)
	}
	return leads, nil
}

// write replaces the file through a rename so readers never see half a file
func (j *JSONLeadStore) write(businessID string, leads []pkg.Lead) error {
	data, err := sonic.ConfigStd.MarshalIndent(leads, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal leads: %w", err)
	}
	tmp := j.path(businessID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write leads file: %w", err)
	}
	if err := os.Rename(tmp, j.path(businessID)); err != nil {
		return fmt.Errorf("failed to replace leads file: %w", err)
	}
	return nil
}
