package nodes

import (
	"context"
	"testing"

	"bizassist/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFAQNodeAnswersFromProfile(t *testing.T) {
	f := NewFAQNode()

	tests := []struct {
		message  string
		contains []string
	}{
		{"What are your opening hours?", []string{"Monday 09:00-17:00", "Saturday 10:00-14:00", "Sunday closed"}},
		{"Are you open on Sunday?", []string{"We are closed on Sunday."}},
		{"Are you open on Saturday?", []string{"On Saturday we are open from 10:00 to 14:00."}},
		{"What services do you offer?", []string{"Acme Dental offers cleaning, whitening and check-ups."}},
		{"How can I contact you?", []string{"front@acme.test", "+1 555 000 1111"}},
		{"Tell me about the clinic", []string{"A family dental clinic"}},
		{"Hello, when are you open today?", []string{"Hello Ann!", "On Wednesday we are open from 09:00 to 17:00."}},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			out, err := f.Execute(context.Background(), testInput(tt.message))
			require.NoError(t, err)
			assert.False(t, out.Escalate)
			for _, want := range tt.contains {
				assert.Contains(t, out.Reply, want)
			}
		})
	}
}

func TestFAQNodeGreeting(t *testing.T) {
	out, err := NewFAQNode().Execute(context.Background(), testInput("hi there"))
	require.NoError(t, err)
	assert.Equal(t, "Hello Ann! Welcome to Acme Dental. We offer cleaning, whitening and check-ups. How can I help you today?", out.Reply)
}

func TestFAQNodeEscalatesUnknownQuestions(t *testing.T) {
	for _, message := range []string{"Do you have parking?", "What is your refund policy?"} {
		out, err := NewFAQNode().Execute(context.Background(), testInput(message))
		require.NoError(t, err)
		assert.True(t, out.Escalate, message)
		assert.Contains(t, out.Reply, "don't have that information")
		assert.Empty(t, out.ToolRequests)
	}
}

func TestFAQNodeSkipsMissingFields(t *testing.T) {
	input := testInput("How can I contact you?")
	input.Profile.ContactEmail = ""
	input.Profile.ContactPhone = ""

	out, err := NewFAQNode().Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, out.Escalate)
}

func TestFAQNodeRequiresProfile(t *testing.T) {
	_, err := NewFAQNode().Execute(context.Background(), core.NodeInput{UserMessage: "hours?"})
	assert.Error(t, err)
}
