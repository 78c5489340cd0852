package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bizassist/internal/storage"
	"bizassist/internal/tools"
	"bizassist/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmail struct {
	mu      sync.Mutex
	subject []string
	to      []string
	err     error
}

func (r *recordingEmail) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.to = append(r.to, to)
	r.subject = append(r.subject, subject)
	return "email-1", nil
}

func newTestLeadService(t *testing.T, sender tools.EmailSender, notify bool) (*LeadService, *storage.JSONLeadStore) {
	t.Helper()
	emailTool, err := tools.EmailTool(sender, "test")
	require.NoError(t, err)
	executor, err := tools.NewExecutor(context.Background(), tools.NewMemoryLedger(), time.Second, emailTool)
	require.NoError(t, err)
	store := storage.NewJSONLeadStore(t.TempDir())
	return NewLeadService(store, executor, notify), store
}

func leadProfile() *pkg.BusinessProfile {
	return &pkg.BusinessProfile{ID: "acme", Name: "Acme Dental", ContactEmail: "front@acme.test"}
}

func TestRecordLeadStoresAndNotifies(t *testing.T) {
	email := &recordingEmail{}
	svc, _ := newTestLeadService(t, email, true)
	ctx := context.Background()
	state := &pkg.ConversationState{ID: "conv-1", BusinessID: "acme", UserName: "Ann", CreatedAt: time.Now()}

	require.NoError(t, svc.RecordLead(ctx, leadProfile(), state, "Do you do whitening?"))
	// a second call for the same conversation is neither stored nor sent
	require.NoError(t, svc.RecordLead(ctx, leadProfile(), state, "Do you do whitening?"))

	leads, err := svc.Leads(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Ann", leads[0].Name)
	assert.Equal(t, "Do you do whitening?", leads[0].FirstMessage)

	assert.Equal(t, []string{"front@acme.test"}, email.to)
	assert.Equal(t, []string{"New lead: Ann"}, email.subject)
}

func TestRecordLeadWithoutNotification(t *testing.T) {
	email := &recordingEmail{}
	svc, _ := newTestLeadService(t, email, false)
	state := &pkg.ConversationState{ID: "conv-1", BusinessID: "acme"}

	require.NoError(t, svc.RecordLead(context.Background(), leadProfile(), state, "hi"))
	assert.Empty(t, email.to)
}

func TestRecordLeadNotificationFailureIsNotAnError(t *testing.T) {
	email := &recordingEmail{err: errors.New("smtp down")}
	svc, _ := newTestLeadService(t, email, true)
	state := &pkg.ConversationState{ID: "conv-1", BusinessID: "acme"}

	require.NoError(t, svc.RecordLead(context.Background(), leadProfile(), state, "hi"))

	leads, err := svc.Leads(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "anonymous visitor", leadName(leads[0]))
}

func TestLeadBody(t *testing.T) {
	body := leadBody(leadProfile(), pkg.Lead{ConversationID: "conv-9", Name: "Bob", FirstMessage: "Are you open on Sunday?"})
	assert.Contains(t, body, "Acme Dental assistant")
	assert.Contains(t, body, "Name: Bob")
	assert.Contains(t, body, "Conversation: conv-9")
	assert.Contains(t, body, "Are you open on Sunday?")
	assert.NotContains(t, body, "Started:")
}
