package normalize

import (
	"regexp"
	"strconv"
	"time"

	"github.com/sells-group/repreneur-cli/internal/model"
)

var (
	isoDateRe   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	isoMonthRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	yearRe      = regexp.MustCompile(`^(\d{4})$`)
	dmyRe       = regexp.MustCompile(`(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})`)
	frenchDayRe = regexp.MustCompile(`(\d{1,2})(?:er)?\s+(janvier|fevrier|mars|avril|mai|juin|juillet|aout|septembre|octobre|novembre|decembre)\s+(\d{4})`)
)

var frenchMonths = map[string]time.Month{
	"janvier": time.January, "fevrier": time.February, "mars": time.March,
	"avril": time.April, "mai": time.May, "juin": time.June,
	"juillet": time.July, "aout": time.August, "septembre": time.September,
	"octobre": time.October, "novembre": time.November, "decembre": time.December,
}

// ParseDate reads the date formats found upstream: YYYY-MM-DD (optionally
// followed by a time), YYYY-MM, YYYY, DD/MM/YYYY, DD-MM-YYYY and French long
// dates such as "15 mars 2025 à 12h00".
func ParseDate(s string) (model.Date, bool) {
	f := Fold(s)
	if f == "" {
		return model.Date{}, false
	}
	if m := isoDateRe.FindStringSubmatch(f); m != nil {
		return makeDate(m[1], m[2], m[3])
	}
	if m := isoMonthRe.FindStringSubmatch(f); m != nil {
		return makeDate(m[1], m[2], "1")
	}
	if m := yearRe.FindStringSubmatch(f); m != nil {
		return makeDate(m[1], "1", "1")
	}
	if m := dmyRe.FindStringSubmatch(f); m != nil {
		return makeDate(m[3], m[2], m[1])
	}
	if m := frenchDayRe.FindStringSubmatch(f); m != nil {
		return makeDate(m[3], strconv.Itoa(int(frenchMonths[m[2]])), m[1])
	}
	return model.Date{}, false
}

func makeDate(ys, ms, ds string) (model.Date, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return model.Date{}, false
	}
	if y < 1800 || y > 2200 || m < 1 || m > 12 || d < 1 || d > 31 {
		return model.Date{}, false
	}
	date := model.NewDate(y, time.Month(m), d)
	// Reject dates that time.Date normalised into another month.
	if date.Day() != d {
		return model.Date{}, false
	}
	return date, true
}

// AgeAt returns completed years between birth and at.
func AgeAt(birth model.Date, at time.Time) int {
	at = at.UTC()
	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}
	return age
}
