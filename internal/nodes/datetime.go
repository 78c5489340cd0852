package nodes

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"bizassist/pkg"
)

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayPattern  = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthPattern  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\b`)
	weekdayPattern   = regexp.MustCompile(`\b(next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)\b`)
	clockPattern     = regexp.MustCompile(`\b(\d{1,2})(?::([0-5]\d))?\s*(a\.?m\.?|p\.?m\.?)(?:\W|$)`)
	twentyFourHour   = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.]([0-5]\d)\b`)
	bareAtHour       = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	minutesPattern   = regexp.MustCompile(`\b(\d{1,3})\s*(?:minutes|minute|mins|min)\b`)
	hoursPattern     = regexp.MustCompile(`\b(\d{1,2}(?:\.\d+)?)\s*(?:hours|hour|hrs|hr)\b`)
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern     = regexp.MustCompile(`\+?\d[\d\s\-().]{6,}\d`)
	nonDigitReplacer = regexp.MustCompile(`\D`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

// ParseDate finds a date in text relative to now and returns its midnight in
// now's location. A bare weekday means today when it matches, else the next
// occurrence; "next <weekday>" always skips today.
func ParseDate(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	if m := isoDatePattern.FindStringSubmatch(lower); m != nil {
		if d, err := time.ParseInLocation(pkg.DateLayout, m[0], loc); err == nil {
			return d, true
		}
	}

	switch {
	case strings.Contains(lower, "day after tomorrow"):
		return today.AddDate(0, 0, 2), true
	case strings.Contains(lower, "tomorrow"):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(lower, "today") || strings.Contains(lower, "tonight"):
		return today, true
	}

	if m := monthDayPattern.FindStringSubmatch(lower); m != nil {
		if d, ok := monthDay(today, monthNames[m[1]], m[2]); ok {
			return d, true
		}
	}
	if m := dayMonthPattern.FindStringSubmatch(lower); m != nil {
		if d, ok := monthDay(today, monthNames[m[2]], m[1]); ok {
			return d, true
		}
	}

	if m := weekdayPattern.FindStringSubmatch(lower); m != nil {
		target := weekdayNames[m[2]]
		ahead := (int(target) - int(today.Weekday()) + 7) % 7
		if ahead == 0 && m[1] != "" {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}
	return time.Time{}, false
}

// monthDay resolves a month and day to the next such date on or after today
func monthDay(today time.Time, month time.Month, dayText string) (time.Time, bool) {
	day, err := strconv.Atoi(dayText)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(today.Year(), month, day, 0, 0, 0, 0, today.Location())
	if d.Day() != day {
		return time.Time{}, false
	}
	if d.Before(today) {
		d = d.AddDate(1, 0, 0)
	}
	return d, true
}

// ParseTimeOfDay finds a clock time such as "10am", "2:30 pm", "14:30" or "noon".
// A bare "at 3" is read as afternoon for hours before 8.
func ParseTimeOfDay(text string) (pkg.TimeOfDay, bool) {
	lower := strings.ToLower(text)

	if m := clockPattern.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 {
			return 0, false
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		return pkg.NewTimeOfDay(hour, minute), true
	}

	if m := twentyFourHour.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return pkg.NewTimeOfDay(hour, minute), true
	}

	if strings.Contains(lower, "noon") || strings.Contains(lower, "midday") {
		return pkg.NewTimeOfDay(12, 0), true
	}

	if m := bareAtHour.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour < 1 || hour > 23 {
			return 0, false
		}
		if hour < 8 {
			hour += 12
		}
		return pkg.NewTimeOfDay(hour, 0), true
	}
	return 0, false
}

// ParseDurationMinutes finds an appointment length such as "for 30 minutes",
// "an hour", "half an hour" or "1.5 hours"
func ParseDurationMinutes(text string) (int, bool) {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "half an hour") || strings.Contains(lower, "half hour"):
		return 30, true
	case strings.Contains(lower, "an hour and a half") || strings.Contains(lower, "hour and a half"):
		return 90, true
	}
	if m := hoursPattern.FindStringSubmatch(lower); m != nil {
		if h, err := strconv.ParseFloat(m[1], 64); err == nil && h > 0 {
			return int(h * 60), true
		}
	}
	if m := minutesPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	if strings.Contains(lower, "an hour") || strings.Contains(lower, "one hour") {
		return 60, true
	}
	return 0, false
}

// ExtractEmail returns the first email address in text
func ExtractEmail(text string) (string, bool) {
	m := emailPattern.FindString(text)
	return strings.TrimRight(m, "."), m != ""
}

// ExtractPhone returns the first phone-like number with at least nine digits
func ExtractPhone(text string) (string, bool) {
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		if isoDatePattern.MatchString(candidate) {
			continue
		}
		digits := nonDigitReplacer.ReplaceAllString(candidate, "")
		if len(digits) >= 9 {
			return strings.TrimSpace(candidate), true
		}
	}
	return "", false
}
