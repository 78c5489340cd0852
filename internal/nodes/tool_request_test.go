package nodes

import (
	"context"
	"testing"

	"bizassist/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRequestNodeEmailsCustomer(t *testing.T) {
	out, err := NewToolRequestNode().Execute(context.Background(), testInput("Please email me your services at ann@example.com"))
	require.NoError(t, err)
	require.Len(t, out.ToolRequests, 1)

	req := out.ToolRequests[0]
	assert.Equal(t, tools.SendEmail, req.ToolName)
	assert.Equal(t, "ann@example.com", req.Parameters["to"])
	assert.Equal(t, "Information from Acme Dental", req.Parameters["subject"])
	assert.Contains(t, req.Parameters["body"], "Services: cleaning, whitening, check-ups")
	assert.Contains(t, req.Parameters["body"], "Monday 09:00-17:00")
	assert.False(t, req.Force)
	assert.Equal(t, "I'll email our details to ann@example.com.", out.Reply)
}

func TestToolRequestNodeMessagesPhone(t *testing.T) {
	out, err := NewToolRequestNode().Execute(context.Background(), testInput("whatsapp me the details on +44 7700 900123"))
	require.NoError(t, err)
	require.Len(t, out.ToolRequests, 1)
	assert.Equal(t, tools.SendMessage, out.ToolRequests[0].ToolName)
	assert.Equal(t, "+44 7700 900123", out.ToolRequests[0].Parameters["to"])
}

func TestToolRequestNodeForwardsToBusiness(t *testing.T) {
	out, err := NewToolRequestNode().Execute(context.Background(), testInput("Please ask the dentist to call me back"))
	require.NoError(t, err)
	require.Len(t, out.ToolRequests, 1)

	req := out.ToolRequests[0]
	assert.Equal(t, tools.SendEmail, req.ToolName)
	assert.Equal(t, "front@acme.test", req.Parameters["to"])
	assert.Equal(t, "Customer request from Ann", req.Parameters["subject"])
	assert.Contains(t, req.Parameters["body"], "Please ask the dentist to call me back")

	in := testInput("send a message to the owner")
	out, err = NewToolRequestNode().Execute(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.ToolRequests, 1)
	assert.Equal(t, tools.SendMessage, out.ToolRequests[0].ToolName)
	assert.Equal(t, "+1 555 000 1111", out.ToolRequests[0].Parameters["to"])
}

func TestToolRequestNodeForce(t *testing.T) {
	out, err := NewToolRequestNode().Execute(context.Background(), testInput("please resend the email to ann@example.com"))
	require.NoError(t, err)
	require.Len(t, out.ToolRequests, 1)
	assert.True(t, out.ToolRequests[0].Force)
}

func TestToolRequestNodeWithoutContacts(t *testing.T) {
	in := testInput("please get in touch")
	in.Profile.ContactEmail = ""
	in.Profile.ContactPhone = ""

	out, err := NewToolRequestNode().Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out.ToolRequests)
	assert.Contains(t, out.Reply, "can't send messages")
}

func TestToolRequestNodeRepeatsIdenticalParameters(t *testing.T) {
	node := NewToolRequestNode()
	first, err := node.Execute(context.Background(), testInput("email me at ann@example.com"))
	require.NoError(t, err)
	second, err := node.Execute(context.Background(), testInput("email me at ann@example.com"))
	require.NoError(t, err)
	assert.Equal(t, first.ToolRequests, second.ToolRequests)
}
