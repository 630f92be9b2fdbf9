package bodacc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/fetcher"
	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/source"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC)

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout: 5 * time.Second,
		Rate:    1000,
		Retry: fetcher.RetryPolicy{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	})
}

func newAdapter(baseURL string, cfg config.BodaccConfig) *Adapter {
	cfg.BaseURL = baseURL
	a := New(testFetcher(), cfg)
	a.now = func() time.Time { return fixedNow }
	return a
}

func noticeJSON(id, name, activity string) map[string]any {
	jug, _ := json.Marshal(map[string]string{
		"type":               "initial",
		"famille":            "Jugement d'ouverture",
		"nature":             "Jugement d'ouverture de liquidation judiciaire",
		"date":               "2025-05-12",
		"complementJugement": "Date de cessation des paiements : 1 mars 2025",
	})
	etab, _ := json.Marshal(map[string]any{
		"etablissement": map[string]any{"origineFonds": "Création", "activite": activity},
	})
	return map[string]any{
		"id":                  id,
		"dateparution":        "2025-05-20",
		"familleavis_lib":     "Procédures collectives",
		"typeavis_lib":        "Avis initial",
		"commercant":          name,
		"registre":            []string{"552 100 554", "552100554"},
		"ville":               "Paris",
		"cp":                  "75003",
		"numerodepartement":   "75",
		"jugement":            string(jug),
		"listeetablissements": string(etab),
	}
}

func TestWhere(t *testing.T) {
	a := newAdapter("http://x", config.BodaccConfig{LookbackDays: 10, Departments: []string{"75", "2A"}})
	assert.Equal(t,
		"familleavis_lib = 'Procédures collectives' AND dateparution >= '2025-05-21' AND (numerodepartement = '75' OR numerodepartement = '2A')",
		a.Where())
}

func TestFetch_PaginatesAndParses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, recordsPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "dateparution DESC", q.Get("order_by"))
		assert.Equal(t, "2", q.Get("limit"))
		assert.Contains(t, q.Get("where"), "familleavis_lib = 'Procédures collectives'")

		var results []any
		switch q.Get("offset") {
		case "0":
			results = []any{
				noticeJSON("A1", "Atelier Dupont", "Fabrication de bijoux"),
				noticeJSON("A2", "Garage Central", "Réparation automobile"),
			}
		case "2":
			results = []any{noticeJSON("A3", "Joaillerie Roux", "Commerce de détail")}
		default:
			t.Errorf("unexpected offset %s", q.Get("offset"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": 3, "results": results})
	}))
	defer srv.Close()

	a := newAdapter(srv.URL, config.BodaccConfig{PageSize: 2, MaxResults: 10, Keywords: []string{"Bijou", "joaillerie"}})
	recs, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, recs, 2, "keyword filter drops the garage")

	r := recs[0]
	assert.Equal(t, Name, r.Source)
	assert.Equal(t, "A1", r.RecordID)
	assert.True(t, r.RetrievedAt.Equal(fixedNow))
	get := func(f model.Field) string { v, _ := r.Get(f); return v }
	assert.Equal(t, "552 100 554", get(model.FieldLegalID))
	assert.Equal(t, "Atelier Dupont", get(model.FieldName))
	assert.Equal(t, "75003", get(model.FieldPostalCode))
	assert.Equal(t, "75", get(model.FieldDepartment))
	assert.Equal(t, "Fabrication de bijoux", get(model.FieldActivity))
	assert.Contains(t, get(model.FieldProcedure), "liquidation judiciaire")
	assert.Equal(t, "2025-05-12", get(model.FieldProcedureDate))
	assert.Equal(t, "https://www.bodacc.fr/annonce/detail/A1", get(model.FieldURL))

	assert.Equal(t, "A3", recs[1].RecordID)
}

func TestFetch_MaxResults(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		results := make([]any, 0, limit)
		for i := range limit {
			results = append(results, noticeJSON("N"+strconv.Itoa(i), "Atelier", "bijoux"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": 5000, "results": results})
	}))
	defer srv.Close()

	a := newAdapter(srv.URL, config.BodaccConfig{PageSize: 100, MaxResults: 150})
	recs, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 150)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    source.Kind
	}{
		{"missing envelope", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"total_count": 0}`)) }, source.KindFormatChanged},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"results": "x"}`)) }, source.KindFormatChanged},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }, source.KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newAdapter(srv.URL, config.BodaccConfig{}).Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, source.KindOf(err))
		})
	}
}

func TestNotice_Fallbacks(t *testing.T) {
	raw := `{
		"id_annonce": "B9",
		"dateparution": "2025-04-02",
		"commercant": "Tapisserie Girard",
		"registre": "403 215 678,403215678",
		"jugement": {"nature": "Jugement arrêtant le plan de redressement"},
		"url_complete": "https://www.bodacc.fr/pages/annonces-commerciales-detail/?q.id=id:B9"
	}`
	var n notice
	require.NoError(t, json.Unmarshal([]byte(raw), &n))

	r := n.record(fixedNow)
	assert.Equal(t, "B9", r.RecordID)
	id, _ := r.Get(model.FieldLegalID)
	assert.Equal(t, "403 215 678", id)
	date, _ := r.Get(model.FieldProcedureDate)
	assert.Equal(t, "2025-04-02", date, "publication date when the judgement has none")
	u, _ := r.Get(model.FieldURL)
	assert.Contains(t, u, "q.id=id:B9")
	_, ok := r.Get(model.FieldActivity)
	assert.False(t, ok)
}
