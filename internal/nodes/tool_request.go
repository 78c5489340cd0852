package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bizassist/internal/core"
	"bizassist/internal/tools"
	"bizassist/pkg"
)

var (
	messageChannelPattern = regexp.MustCompile(`\b(whatsapp|sms|text|message)\b`)
	emailChannelPattern   = regexp.MustCompile(`\b(email|e-mail|mail)\b`)
	forcePattern          = regexp.MustCompile(`\b(again|resend|re-send)\b`)
)

// ToolRequestNode turns a customer's request to be contacted or sent
// something into a tool request. It never performs the side effect itself.
type ToolRequestNode struct{}

// NewToolRequestNode creates the tool_request responder
func NewToolRequestNode() *ToolRequestNode {
	return &ToolRequestNode{}
}

// Execute picks the channel and target. A contact in the message receives the
// business summary; otherwise the message is forwarded to the business.
func (t *ToolRequestNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	profile := input.Profile
	if profile == nil {
		return core.NodeOutput{}, fmt.Errorf("tool request responder requires a business profile")
	}
	lower := strings.ToLower(input.UserMessage)
	force := forcePattern.MatchString(lower)
	wantsMessage := messageChannelPattern.MatchString(lower) && !emailChannelPattern.MatchString(lower)

	if email, ok := ExtractEmail(input.UserMessage); ok && !wantsMessage {
		return core.NodeOutput{
			Reply: fmt.Sprintf("I'll email our details to %s.", email),
			ToolRequests: []pkg.ToolRequest{{
				ToolName: tools.SendEmail,
				Parameters: map[string]string{
					"to":      email,
					"subject": fmt.Sprintf("Information from %s", profile.Name),
					"body":    businessSummary(profile, turnClock(input)),
				},
				Force: force,
			}},
		}, nil
	}
	if phone, ok := ExtractPhone(input.UserMessage); ok {
		return core.NodeOutput{
			Reply: fmt.Sprintf("I'll send our details to %s.", phone),
			ToolRequests: []pkg.ToolRequest{{
				ToolName:   tools.SendMessage,
				Parameters: map[string]string{"to": phone, "body": businessSummary(profile, turnClock(input))},
				Force:      force,
			}},
		}, nil
	}

	// no customer contact: forward the request to the business
	sender := input.UserName
	if sender == "" {
		sender = "a customer"
	}
	if wantsMessage && profile.ContactPhone != "" {
		return core.NodeOutput{
			Reply: fmt.Sprintf("I'll pass your message on to %s.", profile.Name),
			ToolRequests: []pkg.ToolRequest{{
				ToolName:   tools.SendMessage,
				Parameters: map[string]string{"to": profile.ContactPhone, "body": fmt.Sprintf("Message from %s: %s", sender, input.UserMessage)},
				Force:      force,
			}},
		}, nil
	}
	if profile.ContactEmail != "" {
		return core.NodeOutput{
			Reply: fmt.Sprintf("I'll forward your request to %s. Please include your email address or phone number if you'd like a reply.", profile.Name),
			ToolRequests: []pkg.ToolRequest{{
				ToolName: tools.SendEmail,
				Parameters: map[string]string{
					"to":      profile.ContactEmail,
					"subject": fmt.Sprintf("Customer request from %s", sender),
					"body":    fmt.Sprintf("%s wrote via the assistant (conversation %s):\n\n%s\n", sender, input.ConversationID, input.UserMessage),
				},
				Force: force,
			}},
		}, nil
	}
	return core.NodeOutput{
		Reply: fmt.Sprintf("I'm sorry, I can't send messages for %s right now. Please share your email address or phone number and I'll send the details there.", profile.Name),
	}, nil
}

// GetName returns the node name
func (t *ToolRequestNode) GetName() string {
	return "tool_request"
}

// GetType returns the node type
func (t *ToolRequestNode) GetType() core.NodeType {
	return core.NodeTypeTools
}

// businessSummary is the profile digest sent to customers
func businessSummary(profile *pkg.BusinessProfile, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", profile.Name)
	if profile.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", profile.Description)
	}
	if services := profile.ServiceList(); len(services) > 0 {
		fmt.Fprintf(&b, "Services: %s\n", strings.Join(services, ", "))
	}
	fmt.Fprintf(&b, "%s\n", hoursAnswer(profile, "", now))
	if contact := contactAnswer(profile); contact != "" {
		fmt.Fprintf(&b, "%s\n", contact)
	}
	return b.String()
}
