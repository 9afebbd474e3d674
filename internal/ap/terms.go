package ap

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTermDays applies when supplier terms are missing or unreadable.
const DefaultTermDays = 30

var netTerms = regexp.MustCompile(`(?i)^net\s*(\d{1,3})$`)

// TermDays maps supplier payment terms such as "Net 30" or "COD" to days.
func TermDays(terms string) int {
	terms = strings.TrimSpace(terms)
	if strings.EqualFold(terms, "cod") {
		return 0
	}
	if m := netTerms.FindStringSubmatch(terms); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			return days
		}
	}
	return DefaultTermDays
}

// DueDate returns from plus the supplier's term days.
func DueDate(terms string, from time.Time) time.Time {
	return from.AddDate(0, 0, TermDays(terms))
}
