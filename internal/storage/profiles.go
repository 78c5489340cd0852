package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bizassist/pkg"

	"github.com/bytedance/sonic"
)

// MemoryProfileStore holds profiles registered at startup or by tests
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*pkg.BusinessProfile
}

// NewMemoryProfileStore creates a store from the given profiles
func NewMemoryProfileStore(profiles ...*pkg.BusinessProfile) (*MemoryProfileStore, error) {
	m := &MemoryProfileStore{profiles: make(map[string]*pkg.BusinessProfile)}
	for _, p := range profiles {
		if err := m.Put(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Put validates and stores a profile
func (m *MemoryProfileStore) Put(profile *pkg.BusinessProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	cp := *profile
	m.mu.Lock()
	m.profiles[profile.ID] = &cp
	m.mu.Unlock()
	return nil
}

// GetProfile returns a snapshot of a profile
func (m *MemoryProfileStore) GetProfile(ctx context.Context, businessID string) (*pkg.BusinessProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[businessID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusinessNotFound, businessID)
	}
	cp := *p
	return &cp, nil
}

// JSONProfileStore reads profiles from <dir>/<business_id>.json
type JSONProfileStore struct {
	baseDir string
}

// NewJSONProfileStore creates a store rooted at baseDir
func NewJSONProfileStore(baseDir string) *JSONProfileStore {
	return &JSONProfileStore{baseDir: baseDir}
}

// GetProfile loads and validates a profile file
func (j *JSONProfileStore) GetProfile(ctx context.Context, businessID string) (*pkg.BusinessProfile, error) {
	if businessID == "" || strings.ContainsAny(businessID, `/\`) || strings.HasPrefix(businessID, ".") {
		return nil, fmt.Errorf("%w: %q", ErrBusinessNotFound, businessID)
	}

	data, err := os.ReadFile(filepath.Join(j.baseDir, businessID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBusinessNotFound, businessID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", businessID, err)
	}

	var profile pkg.BusinessProfile
	if err := sonic.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", businessID, err)
	}
	if profile.ID == "" {
		profile.ID = businessID
	}
	if profile.ID != businessID {
		return nil, fmt.Errorf("profile file %s.json declares id %s", businessID, profile.ID)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveProfile writes a profile file
func (j *JSONProfileStore) SaveProfile(ctx context.Context, profile *pkg.BusinessProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := sonic.ConfigStd.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(j.baseDir, profile.ID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}
