package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// Channel is an acquisition channel tag attached to a candidate.
type Channel string

const (
	ChannelSuccession Channel = "SUCCESSION"
	ChannelDistressed Channel = "DISTRESSED"
)

// ProcedureStatus is the insolvency state of a company. Values are ordered by
// severity so that a larger value is always the more severe status.
type ProcedureStatus int

const (
	ProcedureNone ProcedureStatus = iota
	ProcedureRecoveryPlan
	ProcedureCollectiveOpen
	ProcedureJudicialLiquidation
)

var procedureNames = map[ProcedureStatus]string{
	ProcedureNone:                "NONE",
	ProcedureRecoveryPlan:        "RECOVERY_PLAN",
	ProcedureCollectiveOpen:      "COLLECTIVE_PROCEEDING_OPEN",
	ProcedureJudicialLiquidation: "JUDICIAL_LIQUIDATION",
}

// String returns the wire name of the status.
func (p ProcedureStatus) String() string {
	if s, ok := procedureNames[p]; ok {
		return s
	}
	return "NONE"
}

// MarshalText implements encoding.TextMarshaler.
func (p ProcedureStatus) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProcedureStatus) UnmarshalText(b []byte) error {
	s, err := ParseProcedureStatus(string(b))
	if err != nil {
		return err
	}
	*p = s
	return nil
}

// ParseProcedureStatus parses a wire name. The empty string maps to NONE.
func ParseProcedureStatus(s string) (ProcedureStatus, error) {
	if s == "" {
		return ProcedureNone, nil
	}
	for k, v := range procedureNames {
		if v == s {
			return k, nil
		}
	}
	return ProcedureNone, eris.Errorf("model: unknown procedure status %q", s)
}

// MoreSevere returns the more severe of two statuses.
func MoreSevere(a, b ProcedureStatus) ProcedureStatus {
	if b > a {
		return b
	}
	return a
}

// RevenueRange is an annual revenue interval in euros. A zero Max means the
// upper bound is unknown.
type RevenueRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Bounded reports whether the range has a known upper bound.
func (r RevenueRange) Bounded() bool { return r.Max > 0 }

// Mid returns the midpoint of a bounded range, or Min otherwise.
func (r RevenueRange) Mid() float64 {
	if !r.Bounded() {
		return float64(r.Min)
	}
	return float64(r.Min+r.Max) / 2
}

// SourceRef records one upstream record that contributed to a candidate.
type SourceRef struct {
	Source      string    `json:"source"`
	RecordID    string    `json:"record_id"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Candidate is a company considered for acquisition.
type Candidate struct {
	LegalID         string          `json:"legal_id,omitempty"`
	Name            string          `json:"name"`
	NormalizedName  string          `json:"normalized_name"`
	Location        string          `json:"location,omitempty"`
	City            string          `json:"city,omitempty"`
	Department      string          `json:"department,omitempty"`
	SectorCode      string          `json:"sector_code"`
	SectorLabel     string          `json:"sector_label,omitempty"`
	LegalForm       string          `json:"legal_form,omitempty"`
	FoundingDate    *Date           `json:"founding_date,omitempty"`
	DirectorName    string          `json:"director_name,omitempty"`
	DirectorAge     *int            `json:"director_age,omitempty"`
	Revenue         *RevenueRange   `json:"-"`
	Employees       *int            `json:"employees,omitempty"`
	ProcedureStatus ProcedureStatus `json:"procedure_status"`
	ProcedureDate   *Date           `json:"procedure_date,omitempty"`
	OfferDeadline   *Date           `json:"offer_deadline,omitempty"`
	Links           []string        `json:"links,omitempty"`
	SourceRefs      []SourceRef     `json:"source_refs"`
	ChannelTags     []Channel       `json:"channel_tags"`
	Score           float64         `json:"score"`
}

type candidateAlias Candidate

type candidateJSON struct {
	candidateAlias
	RevenueMin *int64 `json:"revenue_min,omitempty"`
	RevenueMax *int64 `json:"revenue_max,omitempty"`
}

// MarshalJSON flattens the revenue range into revenue_min/revenue_max.
func (c Candidate) MarshalJSON() ([]byte, error) {
	out := candidateJSON{candidateAlias: candidateAlias(c)}
	if c.Revenue != nil {
		lo, hi := c.Revenue.Min, c.Revenue.Max
		out.RevenueMin = &lo
		if hi > 0 {
			out.RevenueMax = &hi
		}
	}
	if out.SourceRefs == nil {
		out.SourceRefs = []SourceRef{}
	}
	if out.ChannelTags == nil {
		out.ChannelTags = []Channel{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened revenue fields back into a range.
func (c *Candidate) UnmarshalJSON(b []byte) error {
	var in candidateJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*c = Candidate(in.candidateAlias)
	if in.RevenueMin != nil || in.RevenueMax != nil {
		r := RevenueRange{}
		if in.RevenueMin != nil {
			r.Min = *in.RevenueMin
		}
		if in.RevenueMax != nil {
			r.Max = *in.RevenueMax
		}
		c.Revenue = &r
	}
	return nil
}

// HasTag reports whether the candidate carries the given channel tag.
func (c *Candidate) HasTag(ch Channel) bool {
	for _, t := range c.ChannelTags {
		if t == ch {
			return true
		}
	}
	return false
}

// LatestRetrieval returns the most recent retrieved_at among source refs.
func (c *Candidate) LatestRetrieval() time.Time {
	var latest time.Time
	for _, r := range c.SourceRefs {
		if r.RetrievedAt.After(latest) {
			latest = r.RetrievedAt
		}
	}
	return latest
}

// Clone returns a deep copy of the candidate.
func (c Candidate) Clone() Candidate {
	out := c
	if c.FoundingDate != nil {
		d := *c.FoundingDate
		out.FoundingDate = &d
	}
	if c.DirectorAge != nil {
		a := *c.DirectorAge
		out.DirectorAge = &a
	}
	if c.Revenue != nil {
		r := *c.Revenue
		out.Revenue = &r
	}
	if c.Employees != nil {
		e := *c.Employees
		out.Employees = &e
	}
	if c.ProcedureDate != nil {
		d := *c.ProcedureDate
		out.ProcedureDate = &d
	}
	if c.OfferDeadline != nil {
		d := *c.OfferDeadline
		out.OfferDeadline = &d
	}
	out.Links = append([]string(nil), c.Links...)
	out.SourceRefs = append([]SourceRef(nil), c.SourceRefs...)
	out.ChannelTags = append([]Channel(nil), c.ChannelTags...)
	return out
}

// SortTags orders channel tags deterministically.
func SortTags(tags []Channel) {
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
}

// SortRefs orders source refs by source then record id.
func SortRefs(refs []SourceRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Source != refs[j].Source {
			return refs[i].Source < refs[j].Source
		}
		return refs[i].RecordID < refs[j].RecordID
	})
}
