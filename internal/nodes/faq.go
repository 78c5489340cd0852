package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bizassist/internal/core"
	"bizassist/pkg"
)

type faqTopic int

const (
	topicHours faqTopic = iota
	topicServices
	topicContact
	topicAbout
)

var (
	greetingPattern = regexp.MustCompile(`^\s*(hi|hello|hey|good (morning|afternoon|evening)|greetings)\b`)
	faqTopics       = []struct {
		topic   faqTopic
		pattern *regexp.Regexp
	}{
		{topicHours, regexp.MustCompile(`\b(hours|open|opening|close|closing|closed|when are you)\b`)},
		{topicServices, regexp.MustCompile(`\b(services?|offer|provide|do you do|treatments?|what can you)\b`)},
		{topicContact, regexp.MustCompile(`\b(contact|phone|email|e-mail|call|reach|number)\b`)},
		{topicAbout, regexp.MustCompile(`\b(about (you|the business|your business)|who are you|what do you do|what is this|tell me about)\b`)},
	}
)

// FAQNode answers questions about the business strictly from its profile
type FAQNode struct{}

// NewFAQNode creates the faq responder
func NewFAQNode() *FAQNode {
	return &FAQNode{}
}

// Execute answers greetings, hours, services, contact and about questions.
// Anything else is escalated with an honest reply.
func (f *FAQNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	profile := input.Profile
	if profile == nil {
		return core.NodeOutput{}, fmt.Errorf("faq responder requires a business profile")
	}
	lower := strings.ToLower(input.UserMessage)

	var parts []string
	for _, t := range faqTopics {
		if !t.pattern.MatchString(lower) {
			continue
		}
		if answer := f.answer(t.topic, profile, input.UserMessage, input.Now); answer != "" {
			parts = append(parts, answer)
		}
	}

	greeting := greetingPattern.MatchString(lower)
	if len(parts) == 0 {
		if greeting && len(strings.Fields(lower)) <= 4 {
			return core.NodeOutput{Reply: greetingReply(profile, input.UserName)}, nil
		}
		return core.NodeOutput{
			Reply:    fmt.Sprintf("I'm sorry, I don't have that information in %s's business details.", profile.Name),
			Escalate: true,
		}, nil
	}

	reply := strings.Join(parts, " ")
	if greeting {
		reply = greetingPrefix(input.UserName) + reply
	}
	return core.NodeOutput{Reply: reply}, nil
}

// GetName returns the node name
func (f *FAQNode) GetName() string {
	return "faq"
}

// GetType returns the node type
func (f *FAQNode) GetType() core.NodeType {
	return core.NodeTypeEvidence
}

func (f *FAQNode) answer(topic faqTopic, profile *pkg.BusinessProfile, message string, now time.Time) string {
	switch topic {
	case topicHours:
		return hoursAnswer(profile, message, now)
	case topicServices:
		services := profile.ServiceList()
		if len(services) == 0 {
			return ""
		}
		return fmt.Sprintf("%s offers %s.", profile.Name, joinList(services))
	case topicContact:
		return contactAnswer(profile)
	case topicAbout:
		if profile.Description == "" {
			return ""
		}
		return fmt.Sprintf("%s: %s", profile.Name, profile.Description)
	}
	return ""
}

// hoursAnswer answers for a named day when the message mentions one, else the whole week
func hoursAnswer(profile *pkg.BusinessProfile, message string, now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	if day, ok := ParseDate(message, now.In(profile.Location())); ok {
		name := day.Weekday().String()
		hours, open := profile.HoursOn(day.Weekday())
		if !open {
			return fmt.Sprintf("We are closed on %s.", name)
		}
		return fmt.Sprintf("On %s we are open from %s to %s.", name, hours.Open, hours.Close)
	}

	var days []string
	for _, key := range pkg.Weekdays {
		label := strings.ToUpper(key[:1]) + key[1:]
		if h, ok := profile.WorkingHours[key]; ok && h.IsOpen() {
			days = append(days, fmt.Sprintf("%s %s-%s", label, h.Open, h.Close))
		} else {
			days = append(days, label+" closed")
		}
	}
	return fmt.Sprintf("Our opening hours are: %s.", strings.Join(days, ", "))
}

func contactAnswer(profile *pkg.BusinessProfile) string {
	var ways []string
	if profile.ContactEmail != "" {
		ways = append(ways, "by email at "+profile.ContactEmail)
	}
	if profile.ContactPhone != "" {
		ways = append(ways, "by phone at "+profile.ContactPhone)
	}
	if len(ways) == 0 {
		return ""
	}
	return fmt.Sprintf("You can reach %s %s.", profile.Name, strings.Join(ways, " or "))
}

func greetingPrefix(userName string) string {
	if userName == "" {
		return "Hello! "
	}
	return fmt.Sprintf("Hello %s! ", userName)
}

func greetingReply(profile *pkg.BusinessProfile, userName string) string {
	reply := greetingPrefix(userName) + fmt.Sprintf("Welcome to %s.", profile.Name)
	if services := profile.ServiceList(); len(services) > 0 {
		reply += fmt.Sprintf(" We offer %s.", joinList(services))
	}
	return reply + " How can I help you today?"
}
