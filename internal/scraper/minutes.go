package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

const maxMinuteBase = 130

var minuteRe = regexp.MustCompile(`^(\d+)(?:\+(\d+))?$`)

// CleanMinute normalizes a time-box text like " 45+2' " to "45+2". It
// returns "" when the text is not a plausible match minute.
func CleanMinute(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "'’ ")
	s = strings.ReplaceAll(s, " ", "")
	m := minuteRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	base, err := strconv.Atoi(m[1])
	if err != nil || base < 1 || base > maxMinuteBase {
		return ""
	}
	return s
}

// MinuteOrder maps "b" to b*100 and "b+e" to b*100+e. Unparseable input
// orders first.
func MinuteOrder(minute string) int {
	m := minuteRe.FindStringSubmatch(minute)
	if m == nil {
		return 0
	}
	base, _ := strconv.Atoi(m[1])
	extra := 0
	if m[2] != "" {
		extra, _ = strconv.Atoi(m[2])
	}
	return base*100 + extra
}

// MinuteLess orders minutes chronologically, so "45+2" sorts before "46".
func MinuteLess(a, b string) bool { return MinuteOrder(a) < MinuteOrder(b) }
