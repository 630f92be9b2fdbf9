package actify

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// Listing holds the fields read from one detail page.
type Listing struct {
	Title         string
	Sector        string
	Activity      string
	Revenue       string
	Employees     string
	Location      string
	PostalCode    string
	Department    string
	OfferDeadline string
	Siren         string
}

var (
	deadlineRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)date limite de d[ée]p[oô]t des offres?\s*:\s*(.+?)(?:\s*·|\s*ajouter|$)`),
		regexp.MustCompile(`(?i)jusqu.au\s+(\d{1,2}[\s/]+\S+[\s/]+\d{4}(?:\s+[àa]\s+\d{2}h?\d{0,2})?)`),
		regexp.MustCompile(`(?i)au plus tard[,\s]+le\s+(\d{1,2}\s+\S+\s+\d{4}\s+[àa]\s+\d{2}h?\d{0,2})`),
		regexp.MustCompile(`(?i)date limite.*?(\d{1,2}[\s/]+\S+[\s/]+\d{4}(?:\s+[àa]\s+\d{2}h?\d{0,2})?)`),
	}
	revenueRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)chiffre d.affaires?\s*(?::\s*)?(.+?)(?:r[ée]sultat|effectif|date|localisation|activit|lieu|si[èe]ge|description|$)`),
		regexp.MustCompile(`CA\s*:\s*(.+?)(?:€|[Rr]ésultat|$)`),
	}
	employeeRes = []*regexp.Regexp{
		regexp.MustCompile(`[Ee]ffectifs?\s*(?:au\s+[\d/]+\s*)?:\s*(?:env\.?\s*)?(\d+)\s*salari`),
		regexp.MustCompile(`(\d+)\s*salari[ée]s?`),
		regexp.MustCompile(`[Ee]ffectif\s*(?:global)?\s*:\s*(?:env\.?\s*)?(\d+)`),
	}
	locationRe   = regexp.MustCompile(`(?:Localisation|Siège social|Lieu)\s*:\s*(.+?)(?:Effectif|Date|CA\b|Activit|Chiffre|Description|Adresse|SIREN|$)`)
	activityRe   = regexp.MustCompile(`Activit[ée]\s*(?:de l.entreprise|concernée)?\s*:\s*(.+?)(?:Lieu|Local|Effectif|Chiffre|Date|Description|Adresse|SIREN|$)`)
	sirenRe      = regexp.MustCompile(`(?i)siren\s*:?\s*(\d{3}\s?\d{3}\s?\d{3})`)
	postalRe     = regexp.MustCompile(`\d{5}`)
	departmentRe = regexp.MustCompile(`\((\d{2}|2[AB]|97\d)\)`)
	parenRe      = regexp.MustCompile(`\([^)]*\)`)
)

var breadcrumbSkip = map[string]bool{
	"accueil":                  true,
	"home":                     true,
	"reprendre une entreprise": true,
}

// ParseListing extracts listing fields from a detail page.
func ParseListing(r io.Reader) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "actify: parse detail page")
	}

	l := &Listing{
		Title: collapse(doc.Find("h1").First().Text()),
	}

	doc.Find(".breadcrumb a, .entry-category a, a[rel='tag']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := collapse(s.Text())
		if t == "" || breadcrumbSkip[strings.ToLower(t)] {
			return true
		}
		l.Sector = t
		return false
	})

	var b strings.Builder
	collectText(doc.Find("body"), &b)
	text := collapse(b.String())

	l.OfferDeadline = firstMatch(deadlineRes, text, 80)
	l.Revenue = firstMatch(revenueRes, text, 80)
	l.Employees = firstMatch(employeeRes, text, 10)
	l.Activity = submatch(activityRe, text, 200)
	l.Location = submatch(locationRe, text, 100)
	if m := sirenRe.FindStringSubmatch(text); m != nil {
		l.Siren = strings.ReplaceAll(m[1], " ", "")
	}

	l.PostalCode = findPostalCode(l.Location)
	if l.PostalCode == "" {
		l.PostalCode = findPostalCode(text)
	}
	if m := departmentRe.FindStringSubmatch(l.Location); m != nil {
		l.Department = m[1]
	}
	return l, nil
}

// Record converts the listing into a raw record keyed by its URL.
func (l *Listing) Record(u string, retrieved time.Time) model.RawRecord {
	r := model.NewRawRecord(Name, u, retrieved)
	r.Set(model.FieldName, l.Title)
	r.Set(model.FieldLegalID, l.Siren)
	r.Set(model.FieldSectorLabel, l.Sector)
	r.Set(model.FieldActivity, l.Activity)
	r.Set(model.FieldRevenue, l.Revenue)
	r.Set(model.FieldEmployees, l.Employees)
	r.Set(model.FieldPostalCode, l.PostalCode)
	r.Set(model.FieldDepartment, l.Department)
	r.Set(model.FieldCity, cityOf(l.Location))
	r.Set(model.FieldOfferDeadline, l.OfferDeadline)
	r.Set(model.FieldProcedure, listingProcedure)
	r.Set(model.FieldURL, u)
	return r
}

// collectText appends the text nodes under s in document order, separated by
// spaces. Script and style contents are skipped.
func collectText(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			b.WriteString(c.Text())
			b.WriteByte(' ')
		case "script", "style", "noscript", "#comment":
		default:
			collectText(c, b)
		}
	})
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstMatch(res []*regexp.Regexp, text string, limit int) string {
	for _, re := range res {
		if v := submatch(re, text, limit); v != "" {
			return v
		}
	}
	return ""
}

func submatch(re *regexp.Regexp, text string, limit int) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return truncate(strings.TrimSpace(m[1]), limit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}

// findPostalCode returns the first standalone five-digit group that is not
// an amount.
func findPostalCode(text string) string {
	for _, loc := range postalRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isDigitOrSep(text[start-1]) {
			continue
		}
		if end < len(text) && isDigitOrSep(text[end]) {
			continue
		}
		rest := strings.TrimSpace(text[end:])
		if strings.HasPrefix(rest, "€") || strings.HasPrefix(strings.ToLower(rest), "eur") {
			continue
		}
		return text[start:end]
	}
	return ""
}

func isDigitOrSep(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == ','
}

// cityOf strips postal and department codes from a location string.
func cityOf(location string) string {
	s := parenRe.ReplaceAllString(location, " ")
	s = postalRe.ReplaceAllString(s, " ")
	s = strings.Trim(collapse(s), " ,-")
	if _, err := strconv.Atoi(s); err == nil {
		return ""
	}
	return s
}
