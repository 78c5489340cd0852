package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bizassist/internal/embedding"
	"bizassist/internal/index"
	"bizassist/internal/tools"
	"bizassist/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMessages struct {
	mu   sync.Mutex
	to   []string
	body []string
}

func (r *recordingMessages) SendMessage(ctx context.Context, to, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, to)
	r.body = append(r.body, body)
	return "msg-1", nil
}

func newTestDocumentService(t *testing.T, email tools.EmailSender, messages tools.MessageSender, notify bool) (*DocumentService, *index.MemoryIndex) {
	t.Helper()
	emailTool, err := tools.EmailTool(email, "test")
	require.NoError(t, err)
	messageTool, err := tools.MessageTool(messages, "test")
	require.NoError(t, err)
	executor, err := tools.NewExecutor(context.Background(), tools.NewMemoryLedger(), time.Second, emailTool, messageTool)
	require.NoError(t, err)

	idx := index.NewMemoryIndex()
	ing := index.NewIngestor(idx, embedding.NewHashEmbedder(0), index.DefaultChunker(), 0, 0)
	return NewDocumentService(ing, executor, notify), idx
}

func writeDoc(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestUploadIngestsAndNotifies(t *testing.T) {
	email, messages := &recordingEmail{}, &recordingMessages{}
	svc, idx := newTestDocumentService(t, email, messages, true)
	profile := &pkg.BusinessProfile{ID: "acme", Name: "Acme Dental", ContactEmail: "front@acme.test", ContactPhone: "+441234567890"}
	path := writeDoc(t, "prices.md", "A check-up costs 40 EUR.")

	documentID, n, err := svc.Upload(context.Background(), profile, path)
	require.NoError(t, err)
	assert.Equal(t, "prices.md", documentID)
	assert.Equal(t, 1, n)
	count, err := idx.Count(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, []string{"front@acme.test"}, email.to)
	assert.Equal(t, []string{"New document uploaded: prices.md"}, email.subject)
	assert.Equal(t, []string{"+441234567890"}, messages.to)
	assert.Contains(t, messages.body[0], "New document uploaded for Acme Dental: prices.md")

	// uploading again announces again
	_, _, err = svc.Upload(context.Background(), profile, path)
	require.NoError(t, err)
	assert.Len(t, email.to, 2)

	require.NoError(t, svc.Remove(context.Background(), profile, "prices.md"))
	count, err = svc.Chunks(context.Background(), profile)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUploadFailureSendsNothing(t *testing.T) {
	email, messages := &recordingEmail{}, &recordingMessages{}
	svc, _ := newTestDocumentService(t, email, messages, true)
	profile := &pkg.BusinessProfile{ID: "acme", ContactEmail: "front@acme.test"}

	_, _, err := svc.Upload(context.Background(), profile, writeDoc(t, "empty.txt", "   "))
	assert.Error(t, err)
	_, _, err = svc.Upload(context.Background(), profile, writeDoc(t, "slides.pptx", "x"))
	assert.ErrorContains(t, err, "unsupported")
	assert.Empty(t, email.to)
}

func TestUploadWithoutNotification(t *testing.T) {
	email, messages := &recordingEmail{}, &recordingMessages{}
	svc, _ := newTestDocumentService(t, email, messages, false)
	profile := &pkg.BusinessProfile{ID: "acme", ContactEmail: "front@acme.test", ContactPhone: "+441234567890"}

	_, _, err := svc.Upload(context.Background(), profile, writeDoc(t, "faq.txt", "We open at nine."))
	require.NoError(t, err)
	assert.Empty(t, email.to)
	assert.Empty(t, messages.to)
}
