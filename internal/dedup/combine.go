package dedup

import (
	"sort"
	"time"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// combine merges two matched candidates. Scalar fields come from the more
// recently retrieved side when present there; absent values never erase
// present ones. Procedure status keeps the most severe value. Source refs and
// links are unioned.
func combine(a, b model.Candidate) model.Candidate {
	older, newer := a, b
	if newerThan(a, b) {
		older, newer = b, a
	}

	out := older.Clone()
	if newer.LegalID != "" {
		out.LegalID = newer.LegalID
	}
	if newer.NormalizedName != "" {
		out.Name = newer.Name
		out.NormalizedName = newer.NormalizedName
	}
	if newer.Location != "" {
		out.Location = newer.Location
	}
	out.City = pickString(out.City, newer.City)
	out.Department = pickString(out.Department, newer.Department)
	if newer.SectorCode != "" {
		out.SectorCode = newer.SectorCode
		out.SectorLabel = newer.SectorLabel
	}
	out.LegalForm = pickString(out.LegalForm, newer.LegalForm)
	out.FoundingDate = pickDate(out.FoundingDate, newer.FoundingDate)
	out.DirectorName = pickString(out.DirectorName, newer.DirectorName)
	out.DirectorAge = pickInt(out.DirectorAge, newer.DirectorAge)
	if newer.Revenue != nil {
		r := *newer.Revenue
		out.Revenue = &r
	}
	out.Employees = pickInt(out.Employees, newer.Employees)
	out.OfferDeadline = pickDate(out.OfferDeadline, newer.OfferDeadline)

	switch {
	case newer.ProcedureStatus > older.ProcedureStatus:
		out.ProcedureStatus = newer.ProcedureStatus
		out.ProcedureDate = pickDate(older.ProcedureDate, newer.ProcedureDate)
	case newer.ProcedureStatus == older.ProcedureStatus:
		out.ProcedureDate = pickDate(older.ProcedureDate, newer.ProcedureDate)
	}

	out.Links = unionLinks(older.Links, newer.Links)
	out.SourceRefs = unionRefs(older.SourceRefs, newer.SourceRefs)
	out.ChannelTags = nil
	out.Score = 0
	return out
}

// newerThan reports whether a ranks strictly above b by latest retrieval.
// Equal times are broken by the greatest (source, record id) retrieved at
// that time, then in favour of b.
func newerThan(a, b model.Candidate) bool {
	ta, tb := a.LatestRetrieval(), b.LatestRetrieval()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return latestRefKey(a, ta) > latestRefKey(b, tb)
}

func latestRefKey(c model.Candidate, at time.Time) string {
	best := ""
	for _, r := range c.SourceRefs {
		if r.RetrievedAt.Equal(at) {
			if k := refKey(r); k > best {
				best = k
			}
		}
	}
	return best
}

func pickString(old, newer string) string {
	if newer != "" {
		return newer
	}
	return old
}

func pickInt(old, newer *int) *int {
	if newer != nil {
		v := *newer
		return &v
	}
	if old != nil {
		v := *old
		return &v
	}
	return nil
}

func pickDate(old, newer *model.Date) *model.Date {
	if newer != nil {
		d := *newer
		return &d
	}
	if old != nil {
		d := *old
		return &d
	}
	return nil
}

func unionLinks(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, l := range append(append([]string(nil), a...), b...) {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// unionRefs keeps one ref per (source, record id), with the latest retrieval.
func unionRefs(a, b []model.SourceRef) []model.SourceRef {
	byKey := make(map[string]model.SourceRef, len(a)+len(b))
	for _, r := range append(append([]model.SourceRef(nil), a...), b...) {
		k := refKey(r)
		if cur, ok := byKey[k]; !ok || r.RetrievedAt.After(cur.RetrievedAt) {
			byKey[k] = r
		}
	}
	out := make([]model.SourceRef, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	model.SortRefs(out)
	return out
}
