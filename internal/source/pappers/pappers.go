// Package pappers fetches candidate companies from the Pappers company
// registry search API.
package pappers

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
	"github.com/sells-group/repreneur-cli/internal/source"
)

// Name is the source identifier.
const Name = "pappers"

const (
	defaultBaseURL = "https://api.pappers.fr/v2"
	maxPageSize    = 100
	companyURL     = "https://www.pappers.fr/entreprise/"
)

// Procedure filters applied to search results.
const (
	ProcedureAny  = "any"
	ProcedureNone = "none"
	ProcedureOpen = "open"
)

// Search is one named query against /recherche.
type Search struct {
	Name      string
	Params    url.Values
	Procedure string
}

// Adapter implements source.Adapter for Pappers.
type Adapter struct {
	fetcher    fetcher.Fetcher
	baseURL    string
	token      string
	pageSize   int
	maxResults int
	searches   []Search
	now        func() time.Time
}

var _ source.Adapter = (*Adapter)(nil)

// New builds the adapter from configuration. nafCodes is the sector
// allow-list sent as the code_naf filter.
func New(f fetcher.Fetcher, cfg config.PappersConfig, nafCodes []string) *Adapter {
	a := &Adapter{
		fetcher:    f,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.APIToken,
		pageSize:   cfg.PageSize,
		maxResults: cfg.MaxResults,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if a.baseURL == "" {
		a.baseURL = defaultBaseURL
	}
	if a.pageSize <= 0 || a.pageSize > maxPageSize {
		a.pageSize = maxPageSize
	}
	if a.maxResults <= 0 {
		a.maxResults = 500
	}

	if cfg.Succession.Enabled {
		a.searches = append(a.searches, buildSearch("succession", cfg.Succession, cfg, nafCodes))
	}
	if cfg.Distressed.Enabled {
		a.searches = append(a.searches, buildSearch("distressed", cfg.Distressed, cfg, nafCodes))
	}
	return a
}

func buildSearch(name string, s config.PappersSearch, cfg config.PappersConfig, nafCodes []string) Search {
	p := url.Values{}
	if len(nafCodes) > 0 {
		p.Set("code_naf", strings.Join(nafCodes, ","))
	}
	if s.AgeMin > 0 {
		p.Set("age_dirigeant_min", strconv.Itoa(s.AgeMin))
	}
	if s.AgeMax > 0 {
		p.Set("age_dirigeant_max", strconv.Itoa(s.AgeMax))
	}
	p.Set("entreprise_cessee", "false")
	if s.CreatedBefore != "" {
		p.Set("date_creation_max", s.CreatedBefore)
	}
	if s.RevenueMin > 0 {
		p.Set("chiffre_affaires_min", strconv.FormatInt(s.RevenueMin, 10))
	}
	if s.RevenueMax > 0 {
		p.Set("chiffre_affaires_max", strconv.FormatInt(s.RevenueMax, 10))
	}
	if len(cfg.Departments) > 0 {
		p.Set("departement", strings.Join(cfg.Departments, ","))
	}
	if len(cfg.Regions) > 0 {
		p.Set("region", strings.Join(cfg.Regions, ","))
	}

	proc := s.Procedure
	if proc == "" {
		proc = ProcedureAny
	}
	return Search{Name: name, Params: p, Procedure: proc}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Searches returns the configured queries.
func (a *Adapter) Searches() []Search { return a.searches }

// Fetch runs every configured search in order.
func (a *Adapter) Fetch(ctx context.Context) ([]model.RawRecord, error) {
	if a.token == "" {
		return nil, source.Unavailable(Name, eris.New("api token not configured"))
	}

	var out []model.RawRecord
	for _, s := range a.searches {
		companies, err := a.search(ctx, s)
		if err != nil {
			return nil, err
		}
		kept := 0
		retrieved := a.now()
		for _, c := range companies {
			if !s.keeps(c) {
				continue
			}
			out = append(out, c.record(retrieved))
			kept++
		}
		zap.L().Info("pappers: search complete",
			zap.String("search", s.Name),
			zap.Int("results", len(companies)),
			zap.Int("kept", kept),
		)
	}
	return out, nil
}

func (s Search) keeps(c company) bool {
	switch s.Procedure {
	case ProcedureNone:
		return !c.ProcedureOpen
	case ProcedureOpen:
		return c.ProcedureOpen
	default:
		return true
	}
}

// search pages through /recherche until an empty or short page, the API
// total, or maxResults.
func (a *Adapter) search(ctx context.Context, s Search) ([]company, error) {
	var all []company
	for page := 1; len(all) < a.maxResults; page++ {
		resp, _, err := fetcher.GetJSON[searchResponse](ctx, a.fetcher, a.pageURL(s, page))
		if err != nil {
			return nil, source.FromFetch(Name, eris.Wrapf(err, "search %s page %d", s.Name, page))
		}

		results, ok := resp.results()
		if !ok {
			return nil, source.FormatChanged(Name, eris.Errorf("search %s page %d: no resultats envelope", s.Name, page))
		}
		if len(results) == 0 {
			break
		}
		if !anySiren(results) {
			return nil, source.FormatChanged(Name, eris.Errorf("search %s page %d: no record carries a siren", s.Name, page))
		}

		all = append(all, results...)
		if (resp.Total > 0 && len(all) >= resp.Total) || len(results) < a.pageSize {
			break
		}
	}
	if len(all) > a.maxResults {
		all = all[:a.maxResults]
	}
	return all, nil
}

func (a *Adapter) pageURL(s Search, page int) string {
	q := url.Values{}
	for k, v := range s.Params {
		q[k] = v
	}
	q.Set("api_token", a.token)
	q.Set("page", strconv.Itoa(page))
	q.Set("par_page", strconv.Itoa(a.pageSize))
	return a.baseURL + "/recherche?" + q.Encode()
}

func anySiren(cs []company) bool {
	for _, c := range cs {
		if strings.TrimSpace(c.Siren) != "" {
			return true
		}
	}
	return false
}

type searchResponse struct {
	Resultats *[]company `json:"resultats"`
	Results   *[]company `json:"results"`
	Total     int        `json:"total"`
}

func (r *searchResponse) results() ([]company, bool) {
	switch {
	case r.Resultats != nil:
		return *r.Resultats, true
	case r.Results != nil:
		return *r.Results, true
	default:
		return nil, false
	}
}

type company struct {
	Siren                 string        `json:"siren"`
	NomEntreprise         string        `json:"nom_entreprise"`
	Denomination          string        `json:"denomination"`
	CodeNAF               string        `json:"code_naf"`
	LibelleCodeNAF        string        `json:"libelle_code_naf"`
	DateCreation          string        `json:"date_creation"`
	FormeJuridique        string        `json:"forme_juridique"`
	Siege                 *siege        `json:"siege"`
	ChiffreAffaires       flexString    `json:"chiffre_affaires"`
	DerniersComptes       *comptes      `json:"derniers_comptes"`
	Effectif              flexString    `json:"effectif"`
	TrancheEffectif       flexString    `json:"tranche_effectif"`
	Dirigeants            []dirigeant   `json:"dirigeants"`
	ProcedureOpen         bool          `json:"procedure_collective_en_cours"`
	ProceduresCollectives []procedureCo `json:"procedures_collectives"`
}

type siege struct {
	CodePostal  string `json:"code_postal"`
	Ville       string `json:"ville"`
	Departement string `json:"departement"`
}

type comptes struct {
	ChiffreAffaires flexString `json:"chiffre_affaires"`
}

type dirigeant struct {
	Nom             string `json:"nom"`
	Prenom          string `json:"prenom"`
	Age             *int   `json:"age"`
	DateDeNaissance string `json:"date_de_naissance"`
}

type procedureCo struct {
	Type      string `json:"type"`
	DateDebut string `json:"date_debut"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Wrapf(err, "pappers: unexpected value %s", string(b))
	}
	*f = flexString(n.String())
	return nil
}

// oldestDirector returns the director with the highest known age. Directors
// without an age rank last.
func (c company) oldestDirector() (dirigeant, bool) {
	if len(c.Dirigeants) == 0 {
		return dirigeant{}, false
	}
	ds := append([]dirigeant(nil), c.Dirigeants...)
	sort.SliceStable(ds, func(i, j int) bool {
		return ageOf(ds[i]) > ageOf(ds[j])
	})
	return ds[0], true
}

func ageOf(d dirigeant) int {
	if d.Age == nil {
		return -1
	}
	return *d.Age
}

func (c company) record(retrieved time.Time) model.RawRecord {
	siren := strings.TrimSpace(c.Siren)
	r := model.NewRawRecord(Name, siren, retrieved)
	r.Set(model.FieldLegalID, siren)

	name := c.NomEntreprise
	if strings.TrimSpace(name) == "" {
		name = c.Denomination
	}
	r.Set(model.FieldName, name)
	r.Set(model.FieldSectorCode, c.CodeNAF)
	r.Set(model.FieldSectorLabel, c.LibelleCodeNAF)
	r.Set(model.FieldFoundingDate, c.DateCreation)
	r.Set(model.FieldLegalForm, c.FormeJuridique)
	if c.Siege != nil {
		r.Set(model.FieldPostalCode, c.Siege.CodePostal)
		r.Set(model.FieldCity, c.Siege.Ville)
		r.Set(model.FieldDepartment, c.Siege.Departement)
	}

	revenue := string(c.ChiffreAffaires)
	if strings.TrimSpace(revenue) == "" && c.DerniersComptes != nil {
		revenue = string(c.DerniersComptes.ChiffreAffaires)
	}
	r.Set(model.FieldRevenue, revenue)

	employees := string(c.Effectif)
	if strings.TrimSpace(employees) == "" {
		employees = string(c.TrancheEffectif)
	}
	r.Set(model.FieldEmployees, employees)

	if d, ok := c.oldestDirector(); ok {
		r.Set(model.FieldDirectorName, strings.TrimSpace(d.Prenom+" "+d.Nom))
		if d.Age != nil {
			r.Set(model.FieldDirectorAge, strconv.Itoa(*d.Age))
		}
		r.Set(model.FieldDirectorBirthDate, d.DateDeNaissance)
	}

	if c.ProcedureOpen {
		text, date := c.procedure()
		r.Set(model.FieldProcedure, text)
		r.Set(model.FieldProcedureDate, date)
	}

	if siren != "" {
		r.Set(model.FieldURL, companyURL+siren)
	}
	return r
}

// procedure describes the open collective procedures. The date is the
// latest start date seen.
func (c company) procedure() (string, string) {
	var types []string
	latest := ""
	for _, p := range c.ProceduresCollectives {
		if t := strings.TrimSpace(p.Type); t != "" {
			types = append(types, t)
		}
		if p.DateDebut > latest {
			latest = p.DateDebut
		}
	}
	if len(types) == 0 {
		return "procédure collective en cours", latest
	}
	return strings.Join(types, "; "), latest
}
