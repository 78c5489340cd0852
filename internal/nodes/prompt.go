package nodes

import (
	"fmt"
	"strings"

	"bizassist/internal/config"
	"bizassist/pkg"
)

const nluSystemTemplate = `You are the intent classifier of a business assistant. Follow the instructions precisely and return structured output.

-Goal-
Given a customer message and the recent conversation, decide which request category it belongs to.

-Categories-
faq: questions about the business itself (opening hours, services, contact details, greetings)
document_qa: questions answered by the business's documents (policies, procedures, terms)
appointment: booking, confirming, cancelling, rescheduling or checking an appointment, including short replies that continue a booking exchange
tool_request: asking the business to send an email or message, or to contact the customer

STRICT RULES:
1. You MUST ONLY use the categories listed above: {intents}
2. Score every category with a confidence between 0 and 1
3. A short confirmation after an appointment proposal is appointment

-Format-
Return one record per category:
(intent{TD}<category>{TD}<confidence>)
Separate records with {RD} and finish with {CD}

-Example-
message: can I come in on Monday at 10am?
Output:
(intent{TD}appointment{TD}0.93){RD}(intent{TD}faq{TD}0.05){RD}(intent{TD}document_qa{TD}0.01){RD}(intent{TD}tool_request{TD}0.01){CD}`

const nluUserTemplate = `{context}<current_message_to_analyze>
{input_text}
</current_message_to_analyze>`

const ragSystemTemplate = `You answer customer questions for {business}.
Use ONLY the document excerpts below. Do not use outside knowledge and do not guess.
If the excerpts do not contain the answer, reply with exactly NO_ANSWER.
Keep the answer short and friendly.

<documents>
{documents}
</documents>`

const ragUserTemplate = `{context}Question: {question}`

// noAnswerMarker is what the model returns when the documents lack the answer
const noAnswerMarker = "NO_ANSWER"

// createNLUTemplate fills the delimiters of the classifier prompt from config
func createNLUTemplate(cfg config.ClassifierConfig) string {
	return strings.NewReplacer(
		"{TD}", cfg.TupleDelimiter,
		"{RD}", cfg.RecordDelimiter,
		"{CD}", cfg.CompletionDelimiter,
	).Replace(nluSystemTemplate)
}

// formatHistory renders recent turns for a prompt, empty when there are none
func formatHistory(turns []pkg.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for i, t := range turns {
		fmt.Fprintf(&b, "%d. [%s]: %s\n", i+1, strings.ToUpper(t.Role), t.Text)
	}
	b.WriteString("</conversation_context>\n\n")
	return b.String()
}

// joinList renders "a", "a and b" or "a, b and c"
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
