package nodes

import (
	"context"
	"testing"
	"time"

	"bizassist/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifierIntents(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	tests := []struct {
		message string
		want    pkg.Intent
	}{
		{"What are your opening hours?", pkg.IntentFAQ},
		{"I want to book Monday at 10am", pkg.IntentAppointment},
		{"What is your return policy?", pkg.IntentDocumentQA},
		{"What is the refund policy in store X?", pkg.IntentDocumentQA},
		{"Please email me the price list", pkg.IntentToolRequest},
		{"Can you cancel my refund?", pkg.IntentAppointment},
		{"banana", pkg.IntentFAQ},
		{"", pkg.IntentFAQ},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(context.Background(), tt.message, nil, ""))
		})
	}
}

func TestKeywordClassifierMatchesWholeWords(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	// "hi" must not match inside "this"
	intent, score := c.classify("this", "", testNow)
	assert.Equal(t, pkg.IntentFAQ, intent)
	assert.Zero(t, score)
}

func TestKeywordClassifierConfirmationFollowsAppointment(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())
	ctx := context.Background()

	assert.Equal(t, pkg.IntentAppointment, c.Classify(ctx, "Yes please!", nil, pkg.IntentAppointment))
	assert.Equal(t, pkg.IntentFAQ, c.Classify(ctx, "Yes please!", nil, pkg.IntentFAQ))
	assert.Equal(t, pkg.IntentAppointment, c.Classify(ctx, "how about 11am?", nil, pkg.IntentAppointment))
	assert.Equal(t, pkg.IntentFAQ, c.Classify(ctx, "how about 11am?", nil, ""))
}

func TestKeywordClassifierUsesTurnClock(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	// february 29 only exists in a leap year, so it counts as a date in 2028 only
	input := testInput("And february 29?")
	input.LastIntent = pkg.IntentAppointment

	input.Now = time.Date(2028, 1, 10, 9, 0, 0, 0, time.UTC)
	out, err := c.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentAppointment, out.Intent)

	input.Now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	out, err = c.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentFAQ, out.Intent)
}

func TestKeywordClassifierNode(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	out, err := c.Execute(context.Background(), testInput("Can I schedule a cleaning on Friday?"))
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentAppointment, out.Intent)
	assert.Equal(t, "keyword_classifier", c.GetName())
}

func TestKeywordClassifierIgnoresUnknownIntents(t *testing.T) {
	cfg := testClassifierConfig()
	cfg.Keywords = map[string][]string{"shipping": {"ship"}, "faq": {"hello"}}
	c := NewKeywordClassifier(cfg)

	assert.Equal(t, pkg.IntentFAQ, c.Classify(context.Background(), "ship it", nil, ""))
	assert.Len(t, c.patterns, 1)
}
