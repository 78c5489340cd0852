package nodes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"bizassist/internal/config"
	"bizassist/internal/core"
	"bizassist/internal/llm"
	"bizassist/internal/logger"
	"bizassist/internal/metrics"
	"bizassist/pkg"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const maxClassifierInput = 4000

// intentScore is one parsed classifier record
type intentScore struct {
	Intent     pkg.Intent
	Confidence float64
}

// NLUClassifier asks the chat model for the intent and falls back to the
// keyword classifier whenever the model cannot give a usable answer
type NLUClassifier struct {
	config   config.ClassifierConfig
	chain    compose.Runnable[map[string]any, *schema.Message]
	fallback *KeywordClassifier
}

// NewNLUClassifier creates the Template -> ChatModel chain of the classifier
func NewNLUClassifier(ctx context.Context, cm model.BaseChatModel, cfg config.ClassifierConfig, fallback *KeywordClassifier) (*NLUClassifier, error) {
	if cm == nil {
		return nil, errors.New("nlu classifier requires a chat model")
	}
	if fallback == nil {
		fallback = NewKeywordClassifier(cfg)
	}
	chain, err := llm.NewChain(ctx, cm, createNLUTemplate(cfg), nluUserTemplate)
	if err != nil {
		return nil, err
	}
	return &NLUClassifier{config: cfg, chain: chain, fallback: fallback}, nil
}

// Classify returns the model's intent, or the keyword intent on any failure
func (n *NLUClassifier) Classify(ctx context.Context, message string, recent []pkg.Turn, lastIntent pkg.Intent) pkg.Intent {
	return n.ClassifyAt(ctx, message, recent, lastIntent, time.Now())
}

// ClassifyAt is Classify with the turn clock handed to the keyword fallback
func (n *NLUClassifier) ClassifyAt(ctx context.Context, message string, recent []pkg.Turn, lastIntent pkg.Intent, now time.Time) pkg.Intent {
	// confirmations of a booking never need the model
	if lastIntent == pkg.IntentAppointment && n.fallback.IsConfirmation(message) {
		return pkg.IntentAppointment
	}

	if err := n.validateInput(message); err != nil {
		return n.fallbackIntent(ctx, message, recent, lastIntent, now, "invalid_input", err)
	}

	start := time.Now()
	out, err := n.chain.Invoke(ctx, map[string]any{
		"input_text": message,
		"context":    formatHistory(recent),
		"intents":    intentNames(),
	})
	if err != nil {
		return n.fallbackIntent(ctx, message, recent, lastIntent, now, "model_error", err)
	}

	scores, err := n.parseResponse(out.Content)
	if err != nil {
		return n.fallbackIntent(ctx, message, recent, lastIntent, now, "parse_error", err)
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Confidence > best.Confidence {
			best = s
		}
	}
	if best.Confidence < n.config.MinConfidence {
		return n.fallbackIntent(ctx, message, recent, lastIntent, now, "low_confidence",
			fmt.Errorf("confidence %.2f below %.2f", best.Confidence, n.config.MinConfidence))
	}

	logger.Debug().
		Str("intent", string(best.Intent)).
		Float64("confidence", best.Confidence).
		Dur("elapsed", time.Since(start)).
		Msg("Message classified")
	return best.Intent
}

func (n *NLUClassifier) fallbackIntent(ctx context.Context, message string, recent []pkg.Turn, lastIntent pkg.Intent, now time.Time, reason string, err error) pkg.Intent {
	metrics.ClassifierFallbacks.WithLabelValues(reason).Inc()
	intent := n.fallback.ClassifyAt(ctx, message, recent, lastIntent, now)
	logger.Warn().
		Err(err).
		Str("reason", reason).
		Str("intent", string(intent)).
		Msg("Using keyword classifier")
	return intent
}

// Execute implements core.Node
func (n *NLUClassifier) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	return core.NodeOutput{Intent: n.ClassifyAt(ctx, input.UserMessage, input.History, input.LastIntent, turnClock(input))}, nil
}

// GetName returns the node name
func (n *NLUClassifier) GetName() string {
	return "nlu_classifier"
}

// GetType returns the node type
func (n *NLUClassifier) GetType() core.NodeType {
	return core.NodeTypeClassifier
}

// validateInput rejects text the tuple format cannot carry safely
func (n *NLUClassifier) validateInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("input text cannot be empty")
	}
	if len(text) > maxClassifierInput {
		return fmt.Errorf("input text too long: %d characters (max: %d)", len(text), maxClassifierInput)
	}
	if !utf8.ValidString(text) {
		return errors.New("input text contains invalid UTF-8 characters")
	}
	for _, delim := range []string{n.config.TupleDelimiter, n.config.RecordDelimiter, n.config.CompletionDelimiter} {
		if delim != "" && strings.Contains(text, delim) {
			return fmt.Errorf("input text contains reserved delimiter: %s", delim)
		}
	}
	return nil
}

// parseResponse parses the tuple-delimited output from the model
func (n *NLUClassifier) parseResponse(content string) ([]intentScore, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, n.config.CompletionDelimiter); i >= 0 {
		content = content[:i]
	}

	var scores []intentScore
	for _, record := range strings.Split(content, n.config.RecordDelimiter) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		score, err := n.parseTuple(record)
		if err != nil {
			logger.Debug().Err(err).Str("record", record).Msg("Skipping classifier record")
			continue
		}
		scores = append(scores, score)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no intent records in model output %q", truncate(content, 200))
	}
	return scores, nil
}

// parseTuple parses "(intent<TD>name<TD>confidence)"
func (n *NLUClassifier) parseTuple(record string) (intentScore, error) {
	record = strings.TrimSpace(strings.Trim(record, "()"))
	parts := strings.Split(record, n.config.TupleDelimiter)
	if len(parts) < 3 {
		return intentScore{}, fmt.Errorf("invalid tuple format: expected 3 parts, got %d", len(parts))
	}
	if strings.TrimSpace(parts[0]) != "intent" {
		return intentScore{}, fmt.Errorf("invalid tuple type: %s", parts[0])
	}
	intent, ok := pkg.ParseIntent(strings.ToLower(strings.TrimSpace(parts[1])))
	if !ok {
		return intentScore{}, fmt.Errorf("unknown intent: %s", parts[1])
	}
	conf, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil || conf < 0 || conf > 1 {
		return intentScore{}, fmt.Errorf("invalid confidence: %s", parts[2])
	}
	return intentScore{Intent: intent, Confidence: conf}, nil
}

func intentNames() string {
	names := make([]string, len(pkg.AllIntents))
	for i, intent := range pkg.AllIntents {
		names[i] = string(intent)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
