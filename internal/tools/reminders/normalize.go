package reminders

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/mira/internal/llm"
	"github.com/haasonsaas/mira/internal/prompts"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	// maxConversionAttempts bounds oracle date conversions per turn.
	maxConversionAttempts = 3
)

var (
	relativeDaysPattern = regexp.MustCompile(`^in\s+(\d+|a|an|one|two|three)\s+(days?|weeks?)$`)
	clockPattern        = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)
	ordinalPattern      = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)\b`)
	conversionPattern   = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2})`)
)

var numberWords = map[string]int{"a": 1, "an": 1, "one": 1, "two": 2, "three": 3}

var absoluteDateLayouts = []string{
	dateLayout,
	"2006/01/02",
	"02.01.2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

var yearlessDateLayouts = []string{
	"January 2",
	"Jan 2",
	"2 January",
	"2 Jan",
}

// Normalize implements tools.Normalizer. The date and time arguments are
// rewritten to YYYY-MM-DD and HH:MM. Phrases the rules cannot resolve go to
// the oracle; anything still unresolved is left untouched for validation to
// flag.
func (t *Tool) Normalize(ctx context.Context, args map[string]string) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = v
	}

	now := t.now().In(t.location)
	rawDate := strings.TrimSpace(out["date"])
	rawTime := strings.TrimSpace(out["time"])

	date, dateOK := parseDate(rawDate, now)
	clock, clockOK := parseClock(rawTime)
	if dateOK {
		out["date"] = date
	}
	if clockOK {
		out["time"] = clock
	}

	needDate := rawDate != "" && !dateOK
	needTime := rawTime != "" && !clockOK
	if (!needDate && !needTime) || t.oracle == nil {
		return out
	}

	phrase := strings.TrimSpace(rawDate + " " + rawTime)
	if convDate, convTime, ok := t.convert(ctx, phrase, now); ok {
		if needDate {
			out["date"] = convDate
		}
		// A time spoken inside the date phrase fills an empty time.
		if needTime || rawTime == "" {
			out["time"] = convTime
		}
	}
	return out
}

// convert asks the oracle to turn phrase into a date and time.
func (t *Tool) convert(ctx context.Context, phrase string, now time.Time) (string, string, bool) {
	prompt, err := prompts.DateConversion(phrase, now)
	if err != nil {
		t.logger.Warn("render date conversion prompt", "error", err)
		return "", "", false
	}
	req := llm.Request{
		Messages:    []llm.Message{llm.System(prompt), llm.User(phrase)},
		Temperature: 0,
		MaxTokens:   20,
	}

	for attempt := 1; attempt <= maxConversionAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", "", false
		}
		reply, err := t.oracle.Complete(ctx, req)
		if err != nil {
			t.logger.Warn("date conversion failed", "attempt", attempt, "error", err)
			continue
		}
		content := strings.TrimSpace(reply.Content)
		if strings.EqualFold(content, "INVALID") {
			return "", "", false
		}
		if date, clock, ok := parseConversion(content); ok {
			return date, clock, true
		}
		t.metrics.OracleMalformed.WithLabelValues("normalizer").Inc()
		t.logger.Debug("unparseable date conversion", "attempt", attempt, "reply", content)
	}
	return "", "", false
}

func parseConversion(reply string) (string, string, bool) {
	m := conversionPattern.FindStringSubmatch(reply)
	if m == nil {
		return "", "", false
	}
	if _, err := time.Parse(dateLayout, m[1]); err != nil {
		return "", "", false
	}
	if _, err := time.Parse(timeLayout, m[2]); err != nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// parseDate resolves the common date phrases relative to now.
func parseDate(s string, now time.Time) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "on ")
	s = strings.TrimSuffix(s, ",")
	if s == "" {
		return "", false
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch s {
	case "today", "tonight", "this evening", "this afternoon":
		return today.Format(dateLayout), true
	case "tomorrow", "tmrw", "tomorrow morning", "tomorrow evening":
		return today.AddDate(0, 0, 1).Format(dateLayout), true
	case "day after tomorrow", "the day after tomorrow":
		return today.AddDate(0, 0, 2).Format(dateLayout), true
	case "next week", "in a week":
		return today.AddDate(0, 0, 7).Format(dateLayout), true
	}

	if m := relativeDaysPattern.FindStringSubmatch(s); m != nil {
		n, ok := numberWords[m[1]]
		if !ok {
			parsed, err := strconv.Atoi(m[1])
			if err != nil {
				return "", false
			}
			n = parsed
		}
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return today.AddDate(0, 0, n).Format(dateLayout), true
	}

	if wd, ok := parseWeekday(s); ok {
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead).Format(dateLayout), true
	}

	cleaned := ordinalPattern.ReplaceAllString(strings.ReplaceAll(s, ",", ""), "$1")
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "the "))
	cleaned = strings.Replace(cleaned, " of ", " ", 1)
	for _, layout := range absoluteDateLayouts {
		if d, err := time.ParseInLocation(layout, titleMonth(cleaned), now.Location()); err == nil {
			return d.Format(dateLayout), true
		}
	}
	for _, layout := range yearlessDateLayouts {
		d, err := time.ParseInLocation(layout, titleMonth(cleaned), now.Location())
		if err != nil {
			continue
		}
		d = time.Date(today.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
		if d.Before(today) {
			d = d.AddDate(1, 0, 0)
		}
		return d.Format(dateLayout), true
	}
	return "", false
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.TrimPrefix(s, "next ")
	s = strings.TrimPrefix(s, "this ")
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

// titleMonth upper-cases the first letter of each word so month names match
// time's layouts.
func titleMonth(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// parseClock resolves "3pm", "3:30 pm", "15:00" and the named times of day.
// A bare hour without am/pm is ambiguous and left unresolved.
func parseClock(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "at ")
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return "", false
	case "noon", "midday", "12 noon":
		return "12:00", true
	case "midnight":
		return "00:00", true
	}

	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	minute := 0
	if m[2] != "" {
		if minute, err = strconv.Atoi(m[2]); err != nil || minute > 59 {
			return "", false
		}
	}

	switch strings.ReplaceAll(m[3], ".", "") {
	case "am":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if m[2] == "" || hour > 23 {
			return "", false
		}
	}
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format(timeLayout), true
}
