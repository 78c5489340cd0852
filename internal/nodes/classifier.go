package nodes

import (
	"context"
	"regexp"
	"strings"
	"time"

	"bizassist/internal/config"
	"bizassist/internal/core"
	"bizassist/pkg"
)

// KeywordClassifier scores each intent by keyword hits. It is total: a message
// without any signal is faq.
type KeywordClassifier struct {
	patterns      map[pkg.Intent][]keywordPattern
	confirmations map[string]bool
}

type keywordPattern struct {
	re     *regexp.Regexp
	weight int
}

// NewKeywordClassifier compiles the keyword lists of cfg. Unknown intent
// names in the configuration are ignored.
func NewKeywordClassifier(cfg config.ClassifierConfig) *KeywordClassifier {
	k := &KeywordClassifier{
		patterns:      make(map[pkg.Intent][]keywordPattern),
		confirmations: make(map[string]bool),
	}
	for name, phrases := range cfg.Keywords {
		intent, ok := pkg.ParseIntent(name)
		if !ok {
			continue
		}
		for _, phrase := range phrases {
			phrase = strings.ToLower(strings.TrimSpace(phrase))
			if phrase == "" {
				continue
			}
			k.patterns[intent] = append(k.patterns[intent], keywordPattern{
				re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`),
				weight: len(strings.Fields(phrase)),
			})
		}
	}
	for _, c := range cfg.Confirmations {
		k.confirmations[normalizeReply(c)] = true
	}
	return k
}

// Classify returns the intent of message. lastIntent is the intent of the
// previous turn of the conversation.
func (k *KeywordClassifier) Classify(ctx context.Context, message string, recent []pkg.Turn, lastIntent pkg.Intent) pkg.Intent {
	return k.ClassifyAt(ctx, message, recent, lastIntent, time.Now())
}

// ClassifyAt is Classify with the turn clock; now resolves relative dates
func (k *KeywordClassifier) ClassifyAt(ctx context.Context, message string, recent []pkg.Turn, lastIntent pkg.Intent, now time.Time) pkg.Intent {
	intent, _ := k.classify(message, lastIntent, now)
	return intent
}

// classify also returns the winning score
func (k *KeywordClassifier) classify(message string, lastIntent pkg.Intent, now time.Time) (pkg.Intent, int) {
	lower := strings.ToLower(message)

	if lastIntent == pkg.IntentAppointment && k.IsConfirmation(message) {
		return pkg.IntentAppointment, 1
	}

	best, bestScore := pkg.IntentFAQ, 0
	for _, intent := range pkg.AllIntents {
		score := 0
		for _, p := range k.patterns[intent] {
			if p.re.MatchString(lower) {
				score += p.weight
			}
		}
		// AllIntents is in priority order, so ties keep the earlier intent
		if score > bestScore {
			best, bestScore = intent, score
		}
	}

	// a bare date or time continues an appointment exchange
	if lastIntent == pkg.IntentAppointment && best != pkg.IntentAppointment && mentionsSchedule(message, now) {
		return pkg.IntentAppointment, bestScore
	}
	return best, bestScore
}

// IsConfirmation reports whether message is a short affirmative reply
func (k *KeywordClassifier) IsConfirmation(message string) bool {
	return k.confirmations[normalizeReply(message)]
}

// Execute implements core.Node
func (k *KeywordClassifier) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	return core.NodeOutput{Intent: k.ClassifyAt(ctx, input.UserMessage, input.History, input.LastIntent, turnClock(input))}, nil
}

// GetName returns the node name
func (k *KeywordClassifier) GetName() string {
	return "keyword_classifier"
}

// GetType returns the node type
func (k *KeywordClassifier) GetType() core.NodeType {
	return core.NodeTypeClassifier
}

func mentionsSchedule(message string, now time.Time) bool {
	if _, ok := ParseTimeOfDay(message); ok {
		return true
	}
	_, ok := ParseDate(message, now)
	return ok
}

// turnClock returns the instant of the turn, the wall clock when unset
func turnClock(input core.NodeInput) time.Time {
	if input.Now.IsZero() {
		return time.Now()
	}
	return input.Now
}

// normalizeReply lowercases and strips punctuation around a short reply
func normalizeReply(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!?,;: ")
	return strings.Join(strings.Fields(s), " ")
}
