// Package normalize turns raw source records into candidates: sector
// resolution against the allow-list, name folding, date, revenue and
// procedure parsing.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// DropReason explains why a raw record produced no candidate.
type DropReason string

const (
	DropNone             DropReason = ""
	DropMissingName      DropReason = "missing_name"
	DropMissingLegalID   DropReason = "missing_legal_id"
	DropSectorOutOfScope DropReason = "sector_out_of_scope"
)

var (
	digitsRe     = regexp.MustCompile(`\D`)
	postalCodeRe = regexp.MustCompile(`(?:^|\D)(\d{5})(?:\D|$)`)
	deptRe       = regexp.MustCompile(`^(\d{2,3}|2[ab])$`)
)

// Normalizer converts raw records into candidates.
type Normalizer struct {
	sectors        *Sectors
	requireLegalID map[string]bool
}

// New creates a Normalizer. requireLegalID lists the sources whose records
// are dropped when no legal id can be read.
func New(sectors *Sectors, requireLegalID []string) *Normalizer {
	req := make(map[string]bool, len(requireLegalID))
	for _, s := range requireLegalID {
		req[s] = true
	}
	return &Normalizer{sectors: sectors, requireLegalID: req}
}

// Normalize converts raw into a candidate. A nil candidate comes with the
// reason it was dropped.
func (n *Normalizer) Normalize(raw model.RawRecord) (*model.Candidate, DropReason) {
	name, _ := raw.Get(model.FieldName)
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, DropMissingName
	}

	legalID := ""
	if v, ok := raw.Get(model.FieldLegalID); ok {
		legalID, _ = ParseLegalID(v)
	}
	if legalID == "" && n.requireLegalID[raw.Source] {
		return nil, DropMissingLegalID
	}

	sector, ok := n.resolveSector(raw, name)
	if !ok {
		return nil, DropSectorOutOfScope
	}

	c := &model.Candidate{
		LegalID:        legalID,
		Name:           strings.Join(strings.Fields(name), " "),
		NormalizedName: normalized,
		SectorCode:     sector.Code,
		SectorLabel:    sector.Label,
	}

	n.location(raw, c)

	if v, ok := raw.Get(model.FieldLegalForm); ok {
		c.LegalForm = v
	}
	if v, ok := raw.Get(model.FieldFoundingDate); ok {
		if d, ok := ParseDate(v); ok {
			c.FoundingDate = &d
		}
	}
	if v, ok := raw.Get(model.FieldDirectorName); ok {
		c.DirectorName = strings.Join(strings.Fields(v), " ")
	}
	c.DirectorAge = directorAge(raw)
	if v, ok := raw.Get(model.FieldRevenue); ok {
		if r, ok := ParseRevenue(v); ok {
			c.Revenue = &r
		}
	}
	if v, ok := raw.Get(model.FieldEmployees); ok {
		if e, ok := ParseCount(v); ok {
			c.Employees = &e
		}
	}
	if v, ok := raw.Get(model.FieldProcedure); ok {
		c.ProcedureStatus = ParseProcedure(v)
	}
	if c.ProcedureStatus != model.ProcedureNone {
		if v, ok := raw.Get(model.FieldProcedureDate); ok {
			if d, ok := ParseDate(v); ok {
				c.ProcedureDate = &d
			}
		}
	}
	if v, ok := raw.Get(model.FieldOfferDeadline); ok {
		if d, ok := ParseDate(v); ok {
			c.OfferDeadline = &d
		}
	}
	if v, ok := raw.Get(model.FieldURL); ok {
		c.Links = []string{v}
	}

	recordID := raw.RecordID
	if recordID == "" {
		recordID = legalID
	}
	c.SourceRefs = []model.SourceRef{{
		Source:      raw.Source,
		RecordID:    recordID,
		RetrievedAt: raw.RetrievedAt.UTC(),
	}}
	return c, DropNone
}

// resolveSector prefers an explicit code. A valid code outside the allow-list
// is final; keyword matching only applies when no code is readable.
func (n *Normalizer) resolveSector(raw model.RawRecord, name string) (Sector, bool) {
	if v, ok := raw.Get(model.FieldSectorCode); ok {
		if code, ok := CanonicalNAF(v); ok {
			return n.sectors.ByCode(code)
		}
	}
	activity, _ := raw.Get(model.FieldActivity)
	label, _ := raw.Get(model.FieldSectorLabel)
	return n.sectors.Match(activity, label, name)
}

func (n *Normalizer) location(raw model.RawRecord, c *model.Candidate) {
	if v, ok := raw.Get(model.FieldPostalCode); ok {
		compact := strings.ReplaceAll(v, " ", "")
		if m := postalCodeRe.FindStringSubmatch(compact); m != nil {
			c.Location = m[1]
		}
	}
	if v, ok := raw.Get(model.FieldCity); ok {
		c.City = strings.Join(strings.Fields(v), " ")
	}
	if v, ok := raw.Get(model.FieldDepartment); ok {
		if d := strings.ToLower(strings.TrimSpace(v)); deptRe.MatchString(d) {
			c.Department = strings.ToUpper(d)
		}
	}
	if c.Department == "" && c.Location != "" {
		c.Department = DepartmentFromPostalCode(c.Location)
	}
	if c.Location == "" {
		c.Location = c.Department
	}
}

func directorAge(raw model.RawRecord) *int {
	if v, ok := raw.Get(model.FieldDirectorAge); ok {
		if a, err := strconv.Atoi(v); err == nil && a > 0 && a < 120 {
			return &a
		}
	}
	if v, ok := raw.Get(model.FieldDirectorBirthDate); ok {
		if b, ok := ParseDate(v); ok && !raw.RetrievedAt.IsZero() {
			a := AgeAt(b, raw.RetrievedAt)
			if a > 0 && a < 120 {
				return &a
			}
		}
	}
	return nil
}

// ParseLegalID extracts a SIREN from a SIREN or SIRET, ignoring separators.
func ParseLegalID(s string) (string, bool) {
	d := digitsRe.ReplaceAllString(s, "")
	if len(d) != 9 && len(d) != 14 {
		return "", false
	}
	return d[:9], true
}

// DepartmentFromPostalCode derives the department code. Overseas codes use
// three digits and Corsica splits into 2A and 2B.
func DepartmentFromPostalCode(pc string) string {
	if len(pc) != 5 {
		return ""
	}
	switch {
	case strings.HasPrefix(pc, "97"), strings.HasPrefix(pc, "98"):
		return pc[:3]
	case strings.HasPrefix(pc, "20"):
		if pc < "20200" {
			return "2A"
		}
		return "2B"
	default:
		return pc[:2]
	}
}
