package sink

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// SheetOrder is the sheet layout of exported workbooks.
var SheetOrder = []string{
	string(model.ChannelSuccession),
	string(model.ChannelDistressed),
	Untagged,
}

var xlsxHeader = []string{
	"Score", "SIREN", "Nom", "Secteur", "Code NAF", "Code postal", "Ville",
	"Département", "Forme juridique", "Création", "Dirigeant", "Âge dirigeant",
	"CA min", "CA max", "Effectif", "Procédure", "Date procédure",
	"Date limite offres", "Sources", "Liens",
}

// WriteXLSX exports candidates to a workbook at path with one sheet per
// channel plus Untagged. Rows keep the order of cs, which is score order for
// a snapshot.
func WriteXLSX(path string, cs []model.Candidate) error {
	f := xlsx.NewFile()
	groups := Group(cs)

	for _, name := range SheetOrder {
		sheet, err := f.AddSheet(name)
		if err != nil {
			return eris.Wrapf(err, "sink: add sheet %s", name)
		}
		addRow(sheet, xlsxHeader)
		for _, c := range groups[name] {
			addRow(sheet, candidateRow(c))
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "sink: save workbook %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func candidateRow(c model.Candidate) []string {
	sources := make([]string, 0, len(c.SourceRefs))
	for _, r := range c.SourceRefs {
		sources = append(sources, r.Source+":"+r.RecordID)
	}

	var revMin, revMax string
	if c.Revenue != nil {
		revMin = strconv.FormatInt(c.Revenue.Min, 10)
		if c.Revenue.Max > 0 {
			revMax = strconv.FormatInt(c.Revenue.Max, 10)
		}
	}

	procedure := ""
	if c.ProcedureStatus != model.ProcedureNone {
		procedure = c.ProcedureStatus.String()
	}

	return []string{
		strconv.FormatFloat(c.Score, 'f', 2, 64),
		c.LegalID,
		c.Name,
		c.SectorLabel,
		c.SectorCode,
		c.Location,
		c.City,
		c.Department,
		c.LegalForm,
		dateString(c.FoundingDate),
		c.DirectorName,
		intString(c.DirectorAge),
		revMin,
		revMax,
		intString(c.Employees),
		procedure,
		dateString(c.ProcedureDate),
		dateString(c.OfferDeadline),
		strings.Join(sources, ", "),
		strings.Join(c.Links, " "),
	}
}

func dateString(d *model.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
