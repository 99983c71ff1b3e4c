// Package timeparse turns free-text date/time fragments ("tomorrow
// evening", "friday noon", "in 2 hours", "29.02.2020 13:00") into
// absolute timestamps.
//
// The parser is deliberately small and deterministic: it consumes a
// prefix of the input token by token and reports how many bytes it used,
// so callers can hand the unconsumed remainder to later parsing stages.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is a successfully parsed point in time.
type Result struct {
	// Time is the resolved absolute timestamp.
	Time time.Time
	// Consumed is the byte offset into the input up to which text was
	// consumed. input[Consumed:] belongs to later stages.
	Consumed int
}

// Hour defaults applied when only a part of the day is named.
const (
	hourMorning   = 9
	hourNoon      = 12
	hourAfternoon = 15
	hourEvening   = 18
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var partsOfDay = map[string]int{
	"morning":   hourMorning,
	"noon":      hourNoon,
	"lunch":     hourNoon,
	"midday":    hourNoon,
	"afternoon": hourAfternoon,
	"evening":   hourEvening,
	"tonight":   hourEvening,
	"midnight":  0,
}

var (
	clockRe   = regexp.MustCompile(`^(\d{1,2}):(\d{2})(am|pm)?$`)
	meridemRe = regexp.MustCompile(`^(\d{1,2})(am|pm)$`)
	dmyRe     = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})?$`)
	isoRe     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	ordinalRe = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)?$`)
)

type token struct {
	text string
	end  int
}

func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				tokens = append(tokens, token{strings.ToLower(text[start:i]), i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{strings.ToLower(text[start:]), len(text)})
	}
	return tokens
}

type parser struct {
	now time.Time

	exact *time.Time // set by "now" and "in N units"

	dateSet      bool
	year         int
	month        time.Month
	day          int
	timeSet      bool
	hour, minute int
}

// Parse consumes a leading date/time expression from text, relative to
// now. The boolean return is false when no temporal expression could be
// recognized at the start of the input.
func Parse(text string, now time.Time) (Result, bool) {
	tokens := tokenize(text)
	p := &parser{now: now}

	consumed := 0
	i := 0
	for i < len(tokens) {
		n, progressed := p.accept(tokens, i)
		if n == 0 {
			break
		}
		i += n
		if progressed {
			consumed = tokens[i-1].end
		}
	}

	if p.exact != nil {
		return Result{Time: (*p.exact).Truncate(time.Second), Consumed: consumed}, true
	}
	if !p.dateSet && !p.timeSet {
		return Result{}, false
	}

	year, month, day := p.year, p.month, p.day
	if !p.dateSet {
		year, month, day = now.Date()
	}
	hour, minute := p.hour, p.minute
	if !p.timeSet {
		// No time of day given: keep the current clock time.
		hour, minute = now.Hour(), now.Minute()
	}

	resolved := time.Date(year, month, day, hour, minute, 0, 0, now.Location())

	// A bare time of day that already passed means the next day.
	if !p.dateSet && p.timeSet && resolved.Before(now) {
		resolved = resolved.AddDate(0, 0, 1)
	}

	return Result{Time: resolved, Consumed: consumed}, true
}

// accept tries to consume one expression starting at tokens[i]. It
// returns how many tokens were consumed and whether they carried any
// temporal meaning (connectors like "at" consume without progress).
func (p *parser) accept(tokens []token, i int) (int, bool) {
	if p.exact != nil {
		return 0, false
	}
	word := tokens[i].text

	switch word {
	case "at", "on":
		// Connector: only swallow it when something parseable follows.
		if i+1 < len(tokens) {
			if n, ok := p.accept(tokens, i+1); ok && n > 0 {
				return n + 1, true
			}
		}
		return 0, false

	case "now":
		t := p.now
		p.exact = &t
		return 1, true

	case "today":
		p.setDate(p.now)
		return 1, true

	case "tomorrow":
		p.setDate(p.now.AddDate(0, 0, 1))
		return 1, true

	case "next":
		if i+1 < len(tokens) {
			next := tokens[i+1].text
			if next == "week" {
				p.setDate(p.now.AddDate(0, 0, 7))
				return 2, true
			}
			if wd, ok := weekdays[next]; ok {
				p.setDate(p.now.AddDate(0, 0, daysUntil(p.now.Weekday(), wd)))
				return 2, true
			}
		}
		return 0, false

	case "in":
		if n := p.acceptRelative(tokens, i); n > 0 {
			return n, true
		}
		return 0, false
	}

	if wd, ok := weekdays[word]; ok {
		p.setDate(p.now.AddDate(0, 0, daysUntil(p.now.Weekday(), wd)))
		return 1, true
	}

	if hour, ok := partsOfDay[word]; ok && !p.timeSet {
		p.timeSet = true
		p.hour, p.minute = hour, 0
		return 1, true
	}

	if m := clockRe.FindStringSubmatch(word); m != nil && !p.timeSet {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour = applyMeridiem(hour, m[3]); hour < 24 && minute < 60 {
			p.timeSet = true
			p.hour, p.minute = hour, minute
			return 1, true
		}
		return 0, false
	}

	if m := meridemRe.FindStringSubmatch(word); m != nil && !p.timeSet {
		hour, _ := strconv.Atoi(m[1])
		if hour = applyMeridiem(hour, m[2]); hour < 24 {
			p.timeSet = true
			p.hour, p.minute = hour, 0
			return 1, true
		}
		return 0, false
	}

	if m := dmyRe.FindStringSubmatch(word); m != nil && !p.dateSet {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := p.now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		if validDate(year, time.Month(month), day) {
			p.dateSet = true
			p.year, p.month, p.day = year, time.Month(month), day
			return 1, true
		}
		return 0, false
	}

	if m := isoRe.FindStringSubmatch(word); m != nil && !p.dateSet {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if validDate(year, time.Month(month), day) {
			p.dateSet = true
			p.year, p.month, p.day = year, time.Month(month), day
			return 1, true
		}
		return 0, false
	}

	if month, ok := months[word]; ok && !p.dateSet {
		// "january 2nd": a month alone is not enough.
		if i+1 < len(tokens) {
			if m := ordinalRe.FindStringSubmatch(tokens[i+1].text); m != nil {
				day, _ := strconv.Atoi(m[1])
				year := p.now.Year()
				if validDate(year, month, day) {
					candidate := time.Date(year, month, day, 0, 0, 0, 0, p.now.Location())
					if candidate.Before(startOfDay(p.now)) {
						year++
					}
					p.dateSet = true
					p.year, p.month, p.day = year, month, day
					return 2, true
				}
			}
		}
		return 0, false
	}

	// "2nd january"
	if m := ordinalRe.FindStringSubmatch(word); m != nil && m[2] != "" && !p.dateSet {
		if i+1 < len(tokens) {
			if month, ok := months[tokens[i+1].text]; ok {
				day, _ := strconv.Atoi(m[1])
				year := p.now.Year()
				if validDate(year, month, day) {
					candidate := time.Date(year, month, day, 0, 0, 0, 0, p.now.Location())
					if candidate.Before(startOfDay(p.now)) {
						year++
					}
					p.dateSet = true
					p.year, p.month, p.day = year, month, day
					return 2, true
				}
			}
		}
		return 0, false
	}

	return 0, false
}

// acceptRelative handles "in N minutes|hours|days|weeks" including the
// articles "a"/"an" for one.
func (p *parser) acceptRelative(tokens []token, i int) int {
	if i+2 >= len(tokens) {
		return 0
	}
	amount := 0
	switch amountWord := tokens[i+1].text; amountWord {
	case "a", "an", "one":
		amount = 1
	default:
		n, err := strconv.Atoi(amountWord)
		if err != nil || n < 0 {
			return 0
		}
		amount = n
	}
	unitWord := tokens[i+2].text

	var d time.Duration
	switch strings.TrimSuffix(unitWord, "s") {
	case "minute", "min":
		d = time.Duration(amount) * time.Minute
	case "hour", "h":
		d = time.Duration(amount) * time.Hour
	case "day":
		d = time.Duration(amount) * 24 * time.Hour
	case "week":
		d = time.Duration(amount) * 7 * 24 * time.Hour
	default:
		return 0
	}

	t := p.now.Add(d)
	p.exact = &t
	return 3
}

func (p *parser) setDate(t time.Time) {
	if p.dateSet {
		return
	}
	p.dateSet = true
	p.year, p.month, p.day = t.Date()
}

// daysUntil returns the days until the next occurrence of target, never
// zero: naming today's weekday means next week.
func daysUntil(current, target time.Weekday) int {
	days := (int(target) - int(current) + 7) % 7
	if days == 0 {
		days = 7
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func applyMeridiem(hour int, suffix string) int {
	switch suffix {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

func validDate(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Month() == month && t.Day() == day
}
