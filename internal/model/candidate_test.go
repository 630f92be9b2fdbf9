package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcedureStatusOrdering(t *testing.T) {
	t.Parallel()

	assert.Less(t, int(ProcedureNone), int(ProcedureRecoveryPlan))
	assert.Less(t, int(ProcedureRecoveryPlan), int(ProcedureCollectiveOpen))
	assert.Less(t, int(ProcedureCollectiveOpen), int(ProcedureJudicialLiquidation))

	assert.Equal(t, ProcedureJudicialLiquidation, MoreSevere(ProcedureJudicialLiquidation, ProcedureNone))
	assert.Equal(t, ProcedureCollectiveOpen, MoreSevere(ProcedureRecoveryPlan, ProcedureCollectiveOpen))
}

func TestProcedureStatusText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ProcedureStatus
		want   string
	}{
		{ProcedureNone, "NONE"},
		{ProcedureRecoveryPlan, "RECOVERY_PLAN"},
		{ProcedureCollectiveOpen, "COLLECTIVE_PROCEEDING_OPEN"},
		{ProcedureJudicialLiquidation, "JUDICIAL_LIQUIDATION"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			b, err := tt.status.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))

			var got ProcedureStatus
			require.NoError(t, got.UnmarshalText(b))
			assert.Equal(t, tt.status, got)
		})
	}

	_, err := ParseProcedureStatus("BANKRUPT")
	assert.Error(t, err)
}

func TestCandidateJSON_RevenueFlattened(t *testing.T) {
	t.Parallel()

	founded := NewDate(1985, time.March, 2)
	c := Candidate{
		LegalID:      "123456789",
		Name:         "Atelier Dupont",
		FoundingDate: &founded,
		Revenue:      &RevenueRange{Min: 1_000_000, Max: 2_000_000},
	}
	b, err := json.Marshal(c)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, float64(1_000_000), m["revenue_min"])
	assert.Equal(t, float64(2_000_000), m["revenue_max"])
	assert.Equal(t, "1985-03-02", m["founding_date"])
	assert.Equal(t, "NONE", m["procedure_status"])
	assert.Equal(t, []any{}, m["channel_tags"])

	var back Candidate
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Revenue)
	assert.Equal(t, *c.Revenue, *back.Revenue)
	assert.True(t, back.FoundingDate.Equal(founded.Time))
}

func TestCandidateJSON_OpenRevenue(t *testing.T) {
	t.Parallel()

	c := Candidate{Name: "x", Revenue: &RevenueRange{Min: 500_000}}
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "revenue_max")

	var back Candidate
	require.NoError(t, json.Unmarshal(b, &back))
	assert.False(t, back.Revenue.Bounded())
	assert.Equal(t, float64(500_000), back.Revenue.Mid())
}

func TestCandidateClone_Independent(t *testing.T) {
	t.Parallel()

	age := 60
	c := Candidate{
		DirectorAge: &age,
		SourceRefs:  []SourceRef{{Source: "a", RecordID: "1"}},
		ChannelTags: []Channel{ChannelSuccession},
	}
	cp := c.Clone()
	*cp.DirectorAge = 70
	cp.SourceRefs[0].RecordID = "2"
	cp.ChannelTags[0] = ChannelDistressed

	assert.Equal(t, 60, *c.DirectorAge)
	assert.Equal(t, "1", c.SourceRefs[0].RecordID)
	assert.True(t, c.HasTag(ChannelSuccession))
}

func TestLatestRetrieval(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)
	c := Candidate{SourceRefs: []SourceRef{{RetrievedAt: t2}, {RetrievedAt: t1}}}
	assert.Equal(t, t2, c.LatestRetrieval())
	assert.True(t, (&Candidate{}).LatestRetrieval().IsZero())
}

func TestRawRecordGet(t *testing.T) {
	t.Parallel()

	r := NewRawRecord("registry", "1", time.Now())
	r.Set(FieldName, "  Maison X ")
	r.Set(FieldCity, "   ")
	r.Fields[FieldDepartment] = " "

	v, ok := r.Get(FieldName)
	assert.True(t, ok)
	assert.Equal(t, "Maison X", v)

	_, ok = r.Get(FieldCity)
	assert.False(t, ok)
	_, ok = r.Get(FieldDepartment)
	assert.False(t, ok)
	_, ok = r.Get(FieldLegalID)
	assert.False(t, ok)
}

func TestSourceStatsDroppedTotal(t *testing.T) {
	t.Parallel()

	s := SourceStats{Dropped: map[string]int{"a": 2, "b": 3}}
	assert.Equal(t, 5, s.DroppedTotal())
}
