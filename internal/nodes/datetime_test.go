package nodes

import (
	"testing"
	"time"

	"bizassist/pkg"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"book Monday at 10am", "2025-01-06"},
		{"wednesday please", "2025-01-01"},
		{"next wednesday", "2025-01-08"},
		{"tomorrow morning", "2025-01-02"},
		{"the day after tomorrow", "2025-01-03"},
		{"today", "2025-01-01"},
		{"on 2025-02-10", "2025-02-10"},
		{"January 15th", "2025-01-15"},
		{"15 March", "2025-03-15"},
		{"any time in december 3", "2025-12-03"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseDate(tt.text, testNow)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got.Format(pkg.DateLayout))
			assert.Zero(t, got.Hour())
		})
	}

	_, ok := ParseDate("whenever suits you", testNow)
	assert.False(t, ok)
	_, ok = ParseDate("February 30", testNow)
	assert.False(t, ok)
}

func TestParseDateKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	// 2025-01-01 20:00 UTC is already Thursday in UTC+7
	now := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC).In(loc)

	got, ok := ParseDate("today", now)
	assert.True(t, ok)
	assert.Equal(t, "2025-01-02", got.Format(pkg.DateLayout))
	assert.Equal(t, loc, got.Location())
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		text string
		want pkg.TimeOfDay
	}{
		{"Monday at 10am", pkg.NewTimeOfDay(10, 0)},
		{"2:30 pm works", pkg.NewTimeOfDay(14, 30)},
		{"at 14:30", pkg.NewTimeOfDay(14, 30)},
		{"around noon", pkg.NewTimeOfDay(12, 0)},
		{"12am", pkg.NewTimeOfDay(0, 0)},
		{"12 p.m.", pkg.NewTimeOfDay(12, 0)},
		{"at 3", pkg.NewTimeOfDay(15, 0)},
		{"at 9", pkg.NewTimeOfDay(9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseTimeOfDay(tt.text)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, text := range []string{"hello", "on 2025-01-06", "13pm", "for 30 minutes"} {
		_, ok := ParseTimeOfDay(text)
		assert.False(t, ok, text)
	}
}

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"for 30 minutes", 30},
		{"45 mins", 45},
		{"an hour", 60},
		{"half an hour", 30},
		{"an hour and a half", 90},
		{"1.5 hours", 90},
		{"2 hours", 120},
	}
	for _, tt := range tests {
		got, ok := ParseDurationMinutes(tt.text)
		assert.True(t, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	_, ok := ParseDurationMinutes("Monday at 10am")
	assert.False(t, ok)
}

func TestExtractContacts(t *testing.T) {
	email, ok := ExtractEmail("send it to ann.lee@example.com.")
	assert.True(t, ok)
	assert.Equal(t, "ann.lee@example.com", email)

	phone, ok := ExtractPhone("call me on +1 555 123 4567 please")
	assert.True(t, ok)
	assert.Equal(t, "+1 555 123 4567", phone)

	_, ok = ExtractPhone("book 2025-01-06 at 10:30")
	assert.False(t, ok)
	_, ok = ExtractEmail("no address here")
	assert.False(t, ok)
}
