package sink

import (
	"github.com/sells-group/repreneur-cli/internal/model"
)

// Untagged labels candidates that carry no channel tag.
const Untagged = "UNTAGGED"

// Filter returns the candidates carrying channel (any when empty) with a
// score of at least minScore. Input order is kept.
func Filter(cs []model.Candidate, channel model.Channel, minScore float64) []model.Candidate {
	out := make([]model.Candidate, 0, len(cs))
	for i := range cs {
		c := &cs[i]
		if channel != "" && !c.HasTag(channel) {
			continue
		}
		if c.Score < minScore {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Group splits candidates by channel tag. A candidate with both tags appears
// in both groups; one with none lands under Untagged.
func Group(cs []model.Candidate) map[string][]model.Candidate {
	groups := map[string][]model.Candidate{
		string(model.ChannelSuccession): {},
		string(model.ChannelDistressed): {},
		Untagged:                        {},
	}
	for _, c := range cs {
		if len(c.ChannelTags) == 0 {
			groups[Untagged] = append(groups[Untagged], c)
			continue
		}
		for _, t := range c.ChannelTags {
			groups[string(t)] = append(groups[string(t)], c)
		}
	}
	return groups
}

// Find returns the candidate with the given legal id.
func Find(cs []model.Candidate, legalID string) (model.Candidate, bool) {
	for _, c := range cs {
		if legalID != "" && c.LegalID == legalID {
			return c, true
		}
	}
	return model.Candidate{}, false
}
