// Package classify tags candidates with acquisition channels and scores them.
package classify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/model"
)

// Config holds the channel rule thresholds and score weights.
type Config struct {
	MinDirectorAge    int
	FoundedBeforeYear int
	RevenueMin        int64
	RevenueMax        int64
	HalfLifeDays      int
	Weights           map[model.Channel]float64
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{
		MinDirectorAge:    55,
		FoundedBeforeYear: 2000,
		RevenueMin:        500_000,
		RevenueMax:        5_000_000,
		HalfLifeDays:      90,
		Weights: map[model.Channel]float64{
			model.ChannelSuccession: 60,
			model.ChannelDistressed: 40,
		},
	}
}

// FromConfig builds a Config from the application configuration. Weight keys
// are matched case-insensitively against channel names.
func FromConfig(c config.ClassifyConfig) Config {
	out := DefaultConfig()
	if c.Succession.MinDirectorAge > 0 {
		out.MinDirectorAge = c.Succession.MinDirectorAge
	}
	if c.Succession.FoundedBeforeYear > 0 {
		out.FoundedBeforeYear = c.Succession.FoundedBeforeYear
	}
	if c.Succession.RevenueMin > 0 || c.Succession.RevenueMax > 0 {
		out.RevenueMin = c.Succession.RevenueMin
		out.RevenueMax = c.Succession.RevenueMax
	}
	if c.Distressed.HalfLifeDays > 0 {
		out.HalfLifeDays = c.Distressed.HalfLifeDays
	}
	if len(c.Weights) > 0 {
		out.Weights = make(map[model.Channel]float64, len(c.Weights))
		for k, w := range c.Weights {
			out.Weights[model.Channel(strings.ToUpper(k))] = w
		}
	}
	return out
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	var errs []string
	if c.RevenueMin < 0 || c.RevenueMax <= 0 || c.RevenueMin > c.RevenueMax {
		errs = append(errs, fmt.Sprintf("revenue band [%d, %d] is invalid", c.RevenueMin, c.RevenueMax))
	}
	if c.HalfLifeDays <= 0 {
		errs = append(errs, "half_life_days must be > 0")
	}
	var sum float64
	for ch, w := range c.Weights {
		if ch != model.ChannelSuccession && ch != model.ChannelDistressed {
			errs = append(errs, fmt.Sprintf("unknown channel weight %q", ch))
		}
		if w < 0 {
			errs = append(errs, fmt.Sprintf("weight %s must be >= 0", ch))
		}
		sum += w
	}
	if sum <= 0 {
		errs = append(errs, "weights must sum to a positive number")
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("classify: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Classifier applies channel rules and computes scores.
type Classifier struct {
	cfg Config
}

// New creates a Classifier.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns a copy of c with channel tags and score recomputed from
// its current fields.
func (cl *Classifier) Classify(c model.Candidate) model.Candidate {
	out := c.Clone()
	out.ChannelTags = nil

	var score float64
	if cl.IsSuccession(c) {
		out.ChannelTags = append(out.ChannelTags, model.ChannelSuccession)
		score += cl.cfg.Weights[model.ChannelSuccession] * cl.SuccessionStrength(c)
	}
	if cl.IsDistressed(c) {
		out.ChannelTags = append(out.ChannelTags, model.ChannelDistressed)
		score += cl.cfg.Weights[model.ChannelDistressed] * cl.DistressedStrength(c)
	}
	model.SortTags(out.ChannelTags)
	out.Score = math.Round(score*100) / 100
	return out
}

// IsSuccession reports whether c is a healthy business with an ageing
// director, an old founding date and revenue inside the target band. Any
// missing field fails the rule.
func (cl *Classifier) IsSuccession(c model.Candidate) bool {
	if c.ProcedureStatus != model.ProcedureNone {
		return false
	}
	if c.DirectorAge == nil || *c.DirectorAge < cl.cfg.MinDirectorAge {
		return false
	}
	cutoff := time.Date(cl.cfg.FoundedBeforeYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	if c.FoundingDate == nil || !c.FoundingDate.Before(cutoff) {
		return false
	}
	return c.Revenue != nil && cl.revenueInBand(*c.Revenue)
}

// revenueInBand requires the whole range inside the band. An open-ended range
// never qualifies.
func (cl *Classifier) revenueInBand(r model.RevenueRange) bool {
	if !r.Bounded() {
		return false
	}
	return r.Min >= cl.cfg.RevenueMin && r.Max <= cl.cfg.RevenueMax
}

// IsDistressed reports whether c is under an open collective procedure or in
// judicial liquidation.
func (cl *Classifier) IsDistressed(c model.Candidate) bool {
	return c.ProcedureStatus == model.ProcedureCollectiveOpen ||
		c.ProcedureStatus == model.ProcedureJudicialLiquidation
}

// SuccessionStrength averages how centred the revenue is in the band and how
// far the director is past the age threshold. Result is in [0.5, 1].
func (cl *Classifier) SuccessionStrength(c model.Candidate) float64 {
	revenueFit := 0.5
	if c.Revenue != nil {
		center := float64(cl.cfg.RevenueMin+cl.cfg.RevenueMax) / 2
		half := float64(cl.cfg.RevenueMax-cl.cfg.RevenueMin) / 2
		if half > 0 {
			revenueFit = 0.5 + 0.5*clamp(1-math.Abs(c.Revenue.Mid()-center)/half)
		} else {
			revenueFit = 1
		}
	}
	ageFit := 0.5
	if c.DirectorAge != nil {
		ageFit = clamp(0.5 + float64(*c.DirectorAge-cl.cfg.MinDirectorAge)/20)
	}
	return (revenueFit + ageFit) / 2
}

// DistressedStrength weighs procedure severity by recency. Recency halves
// every HalfLifeDays between the procedure date and the latest retrieval of
// the candidate; an unknown date counts as one half-life.
func (cl *Classifier) DistressedStrength(c model.Candidate) float64 {
	var severity float64
	switch c.ProcedureStatus {
	case model.ProcedureJudicialLiquidation:
		severity = 1.0
	case model.ProcedureCollectiveOpen:
		severity = 0.8
	default:
		return 0
	}

	decay := 0.5
	ref := c.LatestRetrieval()
	if c.ProcedureDate != nil && !ref.IsZero() && cl.cfg.HalfLifeDays > 0 {
		days := ref.Sub(c.ProcedureDate.Time).Hours() / 24
		if days < 0 {
			days = 0
		}
		decay = math.Pow(0.5, days/float64(cl.cfg.HalfLifeDays))
	}
	return severity * (0.5 + 0.5*decay)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Sort orders candidates by score descending, then most recent retrieval,
// then legal id, normalized name and location for a stable output.
func Sort(cs []model.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := &cs[i], &cs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		la, lb := a.LatestRetrieval(), b.LatestRetrieval()
		if !la.Equal(lb) {
			return la.After(lb)
		}
		if a.LegalID != b.LegalID {
			return a.LegalID < b.LegalID
		}
		if a.NormalizedName != b.NormalizedName {
			return a.NormalizedName < b.NormalizedName
		}
		return a.Location < b.Location
	})
}
