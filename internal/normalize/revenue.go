package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/repreneur-cli/internal/model"
)

var (
	parenRe        = regexp.MustCompile(`\([^)]*\)`)
	amountRe       = regexp.MustCompile(`(\d[\d .,]*\d|\d)\s*(millions?|million|mds?|meur|keur|m|k)?(?:[^a-z]|$)`)
	thousandsComma = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
	thousandsDot   = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	firstIntRe     = regexp.MustCompile(`\d+`)
)

type amount struct {
	value   float64
	hasUnit bool
	unit    float64
}

// ParseRevenue reads revenue text such as "1 250 000", "1,2 M€", "850 k€",
// "entre 500 k€ et 1 M€" or "plus de 2 M€" into a range in euros.
func ParseRevenue(s string) (model.RevenueRange, bool) {
	f := Fold(s)
	if f == "" {
		return model.RevenueRange{}, false
	}
	f = parenRe.ReplaceAllString(f, " ")
	f = dmyRe.ReplaceAllString(f, " ")

	amounts := scanAmounts(f)
	if len(amounts) == 0 {
		return model.RevenueRange{}, false
	}
	// A bare year next to a figure is a label, not an amount.
	if len(amounts) > 1 {
		kept := amounts[:0]
		for _, a := range amounts {
			if !a.hasUnit && a.value >= 1900 && a.value <= 2100 && a.value == math.Trunc(a.value) {
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) > 0 {
			amounts = kept
		}
	}

	euros := func(a amount) int64 { return int64(math.Round(a.value * a.unit)) }

	switch {
	case len(amounts) >= 2 && isRange(f):
		lo, hi := amounts[0], amounts[1]
		if !lo.hasUnit && hi.hasUnit {
			lo.unit = hi.unit
		}
		a, b := euros(lo), euros(hi)
		if a > b {
			a, b = b, a
		}
		return model.RevenueRange{Min: a, Max: b}, true
	case hasAny(f, "plus de", "superieur", "au moins", ">", "minimum"):
		return model.RevenueRange{Min: euros(amounts[0])}, true
	case hasAny(f, "moins de", "inferieur", "jusqu", "<", "maximum"):
		return model.RevenueRange{Min: 0, Max: euros(amounts[0])}, true
	default:
		v := euros(amounts[0])
		return model.RevenueRange{Min: v, Max: v}, true
	}
}

func scanAmounts(f string) []amount {
	var out []amount
	for _, m := range amountRe.FindAllStringSubmatch(f, -1) {
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		a := amount{value: v, unit: 1}
		switch m[2] {
		case "k", "keur":
			a.unit, a.hasUnit = 1e3, true
		case "m", "meur", "million", "millions":
			a.unit, a.hasUnit = 1e6, true
		case "md", "mds":
			a.unit, a.hasUnit = 1e9, true
		}
		out = append(out, a)
	}
	return out
}

// parseNumber handles French and English digit grouping.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case thousandsComma.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case thousandsDot.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	default:
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func isRange(f string) bool {
	return hasAny(f, "entre", " et ", " a ", "-")
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ParseCount returns the first integer in s, e.g. "12 salariés" or
// "Entre 10 et 19 salariés".
func ParseCount(s string) (int, bool) {
	m := firstIntRe.FindString(strings.ReplaceAll(Fold(s), " ", ""))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
