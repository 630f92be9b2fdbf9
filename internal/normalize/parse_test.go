package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repreneur-cli/internal/model"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1987-04-12", "1987-04-12", true},
		{"2024-03-01T10:00:00+01:00", "2024-03-01", true},
		{"1958-03", "1958-03-01", true},
		{"1995", "1995-01-01", true},
		{"12/04/1987", "1987-04-12", true},
		{"01-01-2000", "2000-01-01", true},
		{"15 mars 2025 à 12h00", "2025-03-15", true},
		{"1er février 2024", "2024-02-01", true},
		{"Jusqu'au 3 août 2025", "2025-08-03", true},
		{"31/02/2020", "", false},
		{"bientôt", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, d.String())
			}
		})
	}
}

func TestAgeAt(t *testing.T) {
	birth := model.NewDate(1960, time.June, 15)
	assert.Equal(t, 64, AgeAt(birth, time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 65, AgeAt(birth, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))
}

func TestParseRevenue(t *testing.T) {
	tests := []struct {
		in       string
		min, max int64
	}{
		{"1250000", 1_250_000, 1_250_000},
		{"1 250 000 €", 1_250_000, 1_250_000},
		{"1.250.000", 1_250_000, 1_250_000},
		{"1,2 M€", 1_200_000, 1_200_000},
		{"850 k€", 850_000, 850_000},
		{"2.5M", 2_500_000, 2_500_000},
		{"Entre 500 k€ et 1 M€", 500_000, 1_000_000},
		{"entre 1 et 2 millions", 1_000_000, 2_000_000},
		{"500 000 - 750 000 €", 500_000, 750_000},
		{"Plus de 2 M€", 2_000_000, 0},
		{"moins de 300 k€", 0, 300_000},
		{"1 200 000 € (2023)", 1_200_000, 1_200_000},
		{"CA 2023 : 980 000 €", 980_000, 980_000},
		{"au 31/12/2023 : 1 M€", 1_000_000, 1_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, ok := ParseRevenue(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.min, r.Min)
			assert.Equal(t, tt.max, r.Max)
		})
	}

	_, ok := ParseRevenue("non communiqué")
	assert.False(t, ok)
	_, ok = ParseRevenue("")
	assert.False(t, ok)
}

func TestParseCount(t *testing.T) {
	n, ok := ParseCount("12 salariés")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	n, ok = ParseCount("Entre 10 et 19 salariés")
	assert.True(t, ok)
	assert.Equal(t, 10, n)

	_, ok = ParseCount("aucun")
	assert.False(t, ok)
}

func TestParseProcedure(t *testing.T) {
	tests := []struct {
		in   string
		want model.ProcedureStatus
	}{
		{"", model.ProcedureNone},
		{"Jugement d'ouverture d'une procédure de redressement judiciaire", model.ProcedureCollectiveOpen},
		{"Jugement d'ouverture de liquidation judiciaire", model.ProcedureJudicialLiquidation},
		{"Jugement prononçant la résolution du plan de redressement et la liquidation judiciaire", model.ProcedureJudicialLiquidation},
		{"Jugement arrêtant le plan de redressement", model.ProcedureRecoveryPlan},
		{"Jugement arrêtant le plan de cession", model.ProcedureCollectiveOpen},
		{"Plan de continuation", model.ProcedureRecoveryPlan},
		{"Jugement d'ouverture d'une procédure de sauvegarde", model.ProcedureCollectiveOpen},
		{"Jugement arrêtant le plan de sauvegarde", model.ProcedureRecoveryPlan},
		{"Clôture de la procédure après exécution du plan", model.ProcedureNone},
		{"Jugement de clôture pour extinction du passif", model.ProcedureNone},
		{"procédure collective en cours", model.ProcedureCollectiveOpen},
		{"Jugement prononçant la résolution du plan de sauvegarde et ouvrant une procédure de redressement judiciaire", model.ProcedureCollectiveOpen},
		{"Jugement prononçant la résolution du plan de redressement et ouvrant une procédure de redressement judiciaire", model.ProcedureCollectiveOpen},
		{"Jugement prononçant la résolution du plan de sauvegarde et l'ouverture d'une procédure de redressement judiciaire", model.ProcedureCollectiveOpen},
		{"Jugement mettant fin à la procédure de redressement judiciaire", model.ProcedureNone},
		{"Jugement mettant fin à la procédure de sauvegarde", model.ProcedureNone},
		{"Vente de fonds de commerce", model.ProcedureNone},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseProcedure(tt.in))
		})
	}
}

func TestParseLegalID(t *testing.T) {
	id, ok := ParseLegalID("123 456 789")
	assert.True(t, ok)
	assert.Equal(t, "123456789", id)

	id, ok = ParseLegalID("123 456 789 00012")
	assert.True(t, ok)
	assert.Equal(t, "123456789", id)

	_, ok = ParseLegalID("12345")
	assert.False(t, ok)
}

func TestDepartmentFromPostalCode(t *testing.T) {
	assert.Equal(t, "75", DepartmentFromPostalCode("75011"))
	assert.Equal(t, "971", DepartmentFromPostalCode("97110"))
	assert.Equal(t, "2A", DepartmentFromPostalCode("20000"))
	assert.Equal(t, "2B", DepartmentFromPostalCode("20200"))
	assert.Equal(t, "", DepartmentFromPostalCode("750"))
}
