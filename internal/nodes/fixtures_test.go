package nodes

import (
	"time"

	"bizassist/internal/config"
	"bizassist/internal/core"
	"bizassist/pkg"
)

// wednesday 2025-01-01 09:00 UTC
var testNow = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func testProfile() *pkg.BusinessProfile {
	weekday := pkg.DayHours{Open: pkg.NewTimeOfDay(9, 0), Close: pkg.NewTimeOfDay(17, 0)}
	return &pkg.BusinessProfile{
		ID:          "acme",
		Name:        "Acme Dental",
		Description: "A family dental clinic in the city centre.",
		Services:    []string{"cleaning", "whitening", "check-ups"},
		WorkingHours: map[string]pkg.DayHours{
			"monday":    weekday,
			"tuesday":   weekday,
			"wednesday": weekday,
			"thursday":  weekday,
			"friday":    weekday,
			"saturday":  {Open: pkg.NewTimeOfDay(10, 0), Close: pkg.NewTimeOfDay(14, 0)},
		},
		ContactEmail: "front@acme.test",
		ContactPhone: "+1 555 000 1111",
	}
}

func testClassifierConfig() config.ClassifierConfig {
	return config.DefaultYAMLConfig().Classifier
}

func testInput(message string) core.NodeInput {
	return core.NodeInput{
		BusinessID:     "acme",
		ConversationID: "conv-1",
		UserName:       "Ann",
		UserMessage:    message,
		Profile:        testProfile(),
		Now:            testNow,
	}
}
