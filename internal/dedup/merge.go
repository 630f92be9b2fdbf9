// Package dedup folds candidates from successive runs and sources into one
// set, one entry per company.
package dedup

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/classify"
	"github.com/sells-group/repreneur-cli/internal/model"
)

// DefaultFuzzyThreshold is the minimum name similarity for a fuzzy match.
const DefaultFuzzyThreshold = 0.85

// Stats counts how incoming candidates were folded.
type Stats struct {
	Baseline int
	Incoming int
	New      int
	Merged   int
	Total    int
}

// Merger matches and merges candidates.
type Merger struct {
	classifier *classify.Classifier
	threshold  float64
}

// New creates a Merger. A threshold outside (0, 1] falls back to
// DefaultFuzzyThreshold.
func New(cl *classify.Classifier, threshold float64) *Merger {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Merger{classifier: cl, threshold: threshold}
}

// Merge folds existing then incoming into a single deduplicated set. Every
// result is re-classified and the set is returned in classify.Sort order.
func (m *Merger) Merge(existing, incoming []model.Candidate) []model.Candidate {
	out, _ := m.MergeWithStats(existing, incoming)
	return out
}

// MergeWithStats is Merge plus fold counts.
func (m *Merger) MergeWithStats(existing, incoming []model.Candidate) ([]model.Candidate, Stats) {
	s := newState(m.threshold)
	stats := Stats{Baseline: len(existing), Incoming: len(incoming)}

	for i := range existing {
		s.fold(existing[i])
	}
	for i := range incoming {
		if s.fold(incoming[i]) {
			stats.Merged++
		} else {
			stats.New++
		}
	}

	out := make([]model.Candidate, 0, len(s.slots))
	for i, c := range s.slots {
		if s.dead[i] {
			continue
		}
		out = append(out, m.classifier.Classify(*c))
	}
	classify.Sort(out)
	stats.Total = len(out)

	zap.L().Debug("dedup: merge complete",
		zap.Int("baseline", stats.Baseline),
		zap.Int("incoming", stats.Incoming),
		zap.Int("new", stats.New),
		zap.Int("merged", stats.Merged),
		zap.Int("total", stats.Total),
	)
	return out, stats
}

// state is the accumulator of one merge. Index entries may go stale when a
// slot changes or dies; lookups re-check the current slot value.
type state struct {
	threshold float64
	slots     []*model.Candidate
	dead      []bool

	byLegalID map[string][]int
	byRef     map[string][]int
	byNameLoc map[string][]int
	byBucket  map[string][]int
}

func newState(threshold float64) *state {
	return &state{
		threshold: threshold,
		byLegalID: make(map[string][]int),
		byRef:     make(map[string][]int),
		byNameLoc: make(map[string][]int),
		byBucket:  make(map[string][]int),
	}
}

// fold adds c to the accumulator and reports whether it matched an existing
// slot.
func (s *state) fold(c model.Candidate) bool {
	c = c.Clone()
	c.Links = unionLinks(c.Links, nil)
	c.SourceRefs = unionRefs(c.SourceRefs, nil)
	idx := s.findMatch(&c, -1)
	if idx < 0 {
		s.slots = append(s.slots, &c)
		s.dead = append(s.dead, false)
		s.index(len(s.slots) - 1)
		return false
	}

	merged := combine(*s.slots[idx], c)
	s.slots[idx] = &merged
	s.index(idx)
	s.consolidate(idx)
	return true
}

// consolidate merges any other live slot that now matches slot k, until no
// match is left.
func (s *state) consolidate(k int) {
	for {
		j := s.findMatch(s.slots[k], k)
		if j < 0 {
			return
		}
		merged := combine(*s.slots[k], *s.slots[j])
		s.slots[k] = &merged
		s.dead[j] = true
		s.index(k)
	}
}

func (s *state) index(i int) {
	c := s.slots[i]
	if c.LegalID != "" {
		s.byLegalID[c.LegalID] = appendUnique(s.byLegalID[c.LegalID], i)
	}
	for _, r := range c.SourceRefs {
		k := refKey(r)
		s.byRef[k] = appendUnique(s.byRef[k], i)
	}
	if k, ok := nameLocKey(c); ok {
		s.byNameLoc[k] = appendUnique(s.byNameLoc[k], i)
	}
	if k, ok := bucketKey(c); ok {
		s.byBucket[k] = appendUnique(s.byBucket[k], i)
	}
}

// findMatch returns the live slot matching c, or -1. Passes run in order:
// legal id, shared upstream record, normalized name and location, fuzzy name
// within the same location and sector. Only the legal id pass may join
// candidates whose legal ids are both known.
func (s *state) findMatch(c *model.Candidate, self int) int {
	usable := func(i int) bool { return i != self && !s.dead[i] }

	if c.LegalID != "" {
		for _, i := range s.byLegalID[c.LegalID] {
			if usable(i) && s.slots[i].LegalID == c.LegalID {
				return i
			}
		}
	}

	for _, r := range c.SourceRefs {
		for _, i := range s.byRef[refKey(r)] {
			if usable(i) && compatible(s.slots[i], c) && hasRef(s.slots[i], r) {
				return i
			}
		}
	}

	key, ok := nameLocKey(c)
	if ok {
		for _, i := range s.byNameLoc[key] {
			if !usable(i) || !compatible(s.slots[i], c) {
				continue
			}
			if k, _ := nameLocKey(s.slots[i]); k == key {
				return i
			}
		}
	}

	bkey, ok := bucketKey(c)
	if !ok {
		return -1
	}
	best, bestSim := -1, 0.0
	for _, i := range s.byBucket[bkey] {
		if !usable(i) || !compatible(s.slots[i], c) {
			continue
		}
		if k, _ := bucketKey(s.slots[i]); k != bkey {
			continue
		}
		sim := Similarity(c.NormalizedName, s.slots[i].NormalizedName)
		if sim >= s.threshold && sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best
}

// Similarity scores two normalized names in [0, 1], taking the better of the
// raw and word-sorted Levenshtein similarity.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	raw := levenshtein.Similarity(a, b, nil)
	sorted := levenshtein.Similarity(sortWords(a), sortWords(b), nil)
	if sorted > raw {
		return sorted
	}
	return raw
}

func sortWords(s string) string {
	w := strings.Fields(s)
	sort.Strings(w)
	return strings.Join(w, " ")
}

func compatible(a, b *model.Candidate) bool {
	return a.LegalID == "" || b.LegalID == "" || a.LegalID == b.LegalID
}

func refKey(r model.SourceRef) string {
	return r.Source + "\x00" + r.RecordID
}

func hasRef(c *model.Candidate, r model.SourceRef) bool {
	for _, x := range c.SourceRefs {
		if x.Source == r.Source && x.RecordID == r.RecordID {
			return true
		}
	}
	return false
}

func nameLocKey(c *model.Candidate) (string, bool) {
	if c.NormalizedName == "" || c.Location == "" {
		return "", false
	}
	return c.NormalizedName + "\x00" + c.Location, true
}

func bucketKey(c *model.Candidate) (string, bool) {
	if c.NormalizedName == "" || c.Location == "" || c.SectorCode == "" {
		return "", false
	}
	return c.Location + "\x00" + c.SectorCode, true
}

func appendUnique(xs []int, v int) []int {
	for _, x := range xs {
		if x == v {
			return xs
		}
	}
	return append(xs, v)
}
