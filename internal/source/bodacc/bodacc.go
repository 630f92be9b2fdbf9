// Package bodacc fetches collective-procedure notices from the BODACC
// open-data API.
package bodacc

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/fetcher"
	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/normalize"
	"github.com/sells-group/repreneur-cli/internal/source"
)

// Name is the source identifier.
const Name = "bodacc"

const (
	defaultBaseURL = "https://bodacc-datadila.opendatasoft.com/api/explore/v2.1"
	recordsPath    = "/catalog/datasets/annonces-commerciales/records"
	noticeURL      = "https://www.bodacc.fr/annonce/detail/"
	maxPageSize    = 100
	family         = "Procédures collectives"
)

// Adapter implements source.Adapter for BODACC.
type Adapter struct {
	fetcher      fetcher.Fetcher
	baseURL      string
	lookbackDays int
	departments  []string
	keywords     []string
	pageSize     int
	maxResults   int
	now          func() time.Time
}

var _ source.Adapter = (*Adapter)(nil)

// New builds the adapter from configuration.
func New(f fetcher.Fetcher, cfg config.BodaccConfig) *Adapter {
	a := &Adapter{
		fetcher:      f,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		lookbackDays: cfg.LookbackDays,
		departments:  cfg.Departments,
		pageSize:     cfg.PageSize,
		maxResults:   cfg.MaxResults,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if a.baseURL == "" {
		a.baseURL = defaultBaseURL
	}
	if a.lookbackDays <= 0 {
		a.lookbackDays = 30
	}
	if a.pageSize <= 0 || a.pageSize > maxPageSize {
		a.pageSize = maxPageSize
	}
	if a.maxResults <= 0 {
		a.maxResults = 500
	}
	for _, k := range cfg.Keywords {
		if kw := normalize.Fold(k); kw != "" {
			a.keywords = append(a.keywords, kw)
		}
	}
	return a
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Where returns the ODSQL filter for the configured window and departments.
func (a *Adapter) Where() string {
	since := a.now().AddDate(0, 0, -a.lookbackDays).Format("2006-01-02")
	clauses := []string{
		"familleavis_lib = " + quote(family),
		"dateparution >= " + quote(since),
	}
	if len(a.departments) > 0 {
		ors := make([]string, 0, len(a.departments))
		for _, d := range a.departments {
			ors = append(ors, "numerodepartement = "+quote(d))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	return strings.Join(clauses, " AND ")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Fetch pages through the notices, newest first, until the API total or
// maxResults.
func (a *Adapter) Fetch(ctx context.Context) ([]model.RawRecord, error) {
	where := a.Where()
	limit := min(a.pageSize, a.maxResults)
	retrieved := a.now()

	var out []model.RawRecord
	fetched, skipped := 0, 0
	for offset := 0; offset < a.maxResults; {
		q := url.Values{}
		q.Set("where", where)
		q.Set("order_by", "dateparution DESC")
		q.Set("limit", strconv.Itoa(min(limit, a.maxResults-offset)))
		q.Set("offset", strconv.Itoa(offset))
		u := a.baseURL + recordsPath + "?" + q.Encode()

		resp, _, err := fetcher.GetJSON[recordsResponse](ctx, a.fetcher, u)
		if err != nil {
			return nil, source.FromFetch(Name, eris.Wrapf(err, "offset %d", offset))
		}
		if resp.Results == nil {
			return nil, source.FormatChanged(Name, eris.Errorf("offset %d: no results envelope", offset))
		}
		page := *resp.Results
		if len(page) == 0 {
			break
		}

		for _, n := range page {
			fetched++
			if !a.matchesKeywords(n) {
				skipped++
				continue
			}
			out = append(out, n.record(retrieved))
		}

		offset += len(page)
		if offset >= resp.TotalCount {
			break
		}
	}

	zap.L().Info("bodacc: notices fetched",
		zap.Int("fetched", fetched),
		zap.Int("kept", len(out)),
		zap.Int("keyword_skipped", skipped),
	)
	return out, nil
}

func (a *Adapter) matchesKeywords(n notice) bool {
	if len(a.keywords) == 0 {
		return true
	}
	text := normalize.Fold(n.activity() + " " + n.Commercant)
	for _, k := range a.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

type recordsResponse struct {
	TotalCount int       `json:"total_count"`
	Results    *[]notice `json:"results"`
}

type notice struct {
	ID                  string          `json:"id"`
	IDAnnonce           string          `json:"id_annonce"`
	DateParution        string          `json:"dateparution"`
	TypeAvis            string          `json:"typeavis_lib"`
	Commercant          string          `json:"commercant"`
	Registre            flexList        `json:"registre"`
	Ville               string          `json:"ville"`
	CP                  string          `json:"cp"`
	NumeroDepartement   string          `json:"numerodepartement"`
	Jugement            json.RawMessage `json:"jugement"`
	ListeEtablissements json.RawMessage `json:"listeetablissements"`
	URLComplete         string          `json:"url_complete"`
}

type jugement struct {
	Famille            string `json:"famille"`
	Nature             string `json:"nature"`
	Date               string `json:"date"`
	ComplementJugement string `json:"complementJugement"`
}

// flexList accepts a string or an array of strings.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexList{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return eris.Wrapf(err, "bodacc: unexpected registre %s", string(b))
	}
	*f = ss
	return nil
}

func (n notice) id() string {
	if n.ID != "" {
		return n.ID
	}
	return n.IDAnnonce
}

// legalID returns the first registry number. The API lists the formatted and
// compact forms separated by commas.
func (n notice) legalID() string {
	for _, r := range n.Registre {
		for _, part := range strings.Split(r, ",") {
			if p := strings.TrimSpace(part); p != "" {
				return p
			}
		}
	}
	return ""
}

func (n notice) jugement() jugement {
	var j jugement
	if err := decodeEmbedded(n.Jugement, &j); err != nil {
		zap.L().Debug("bodacc: unreadable jugement", zap.String("id", n.id()), zap.Error(err))
	}
	return j
}

// activity collects the "activite" values of the listed establishments.
func (n notice) activity() string {
	var v any
	if err := decodeEmbedded(n.ListeEtablissements, &v); err != nil {
		return ""
	}
	return strings.Join(findStrings(v, "activite"), " ; ")
}

func (n notice) record(retrieved time.Time) model.RawRecord {
	id := n.id()
	j := n.jugement()
	r := model.NewRawRecord(Name, id, retrieved)

	r.Set(model.FieldLegalID, n.legalID())
	r.Set(model.FieldName, n.Commercant)
	r.Set(model.FieldPostalCode, n.CP)
	r.Set(model.FieldCity, n.Ville)
	r.Set(model.FieldDepartment, n.NumeroDepartement)
	r.Set(model.FieldActivity, n.activity())

	text := strings.Join(nonEmpty(j.Famille, j.Nature, j.ComplementJugement, n.TypeAvis), " ; ")
	r.Set(model.FieldProcedure, text)
	date := j.Date
	if strings.TrimSpace(date) == "" {
		date = n.DateParution
	}
	r.Set(model.FieldProcedureDate, date)

	switch {
	case n.URLComplete != "":
		r.Set(model.FieldURL, n.URLComplete)
	case id != "":
		r.Set(model.FieldURL, noticeURL+id)
	}
	return r
}

// decodeEmbedded decodes raw as v, unwrapping a JSON document carried inside
// a string first.
func decodeEmbedded(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return json.Unmarshal([]byte(s), v)
	}
	return json.Unmarshal(raw, v)
}

// findStrings returns every string value stored under key, at any depth.
func findStrings(v any, key string) []string {
	var out []string
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val := t[k]
			if s, ok := val.(string); ok && k == key && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
				continue
			}
			out = append(out, findStrings(val, key)...)
		}
	case []any:
		for _, val := range t {
			out = append(out, findStrings(val, key)...)
		}
	}
	return out
}

func nonEmpty(ss ...string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
