package model

import (
	"strings"
	"time"
)

// Field names a value carried by a raw source record.
type Field string

const (
	FieldLegalID           Field = "legal_id"
	FieldName              Field = "name"
	FieldPostalCode        Field = "postal_code"
	FieldCity              Field = "city"
	FieldDepartment        Field = "department"
	FieldSectorCode        Field = "sector_code"
	FieldSectorLabel       Field = "sector_label"
	FieldActivity          Field = "activity"
	FieldLegalForm         Field = "legal_form"
	FieldFoundingDate      Field = "founding_date"
	FieldDirectorName      Field = "director_name"
	FieldDirectorAge       Field = "director_age"
	FieldDirectorBirthDate Field = "director_birth_date"
	FieldRevenue           Field = "revenue"
	FieldEmployees         Field = "employees"
	FieldProcedure         Field = "procedure"
	FieldProcedureDate     Field = "procedure_date"
	FieldOfferDeadline     Field = "offer_deadline"
	FieldURL               Field = "url"
)

// RawRecord is one record as returned by a source adapter, before any
// normalization. Values are kept as upstream text.
type RawRecord struct {
	Source      string           `json:"source"`
	RecordID    string           `json:"record_id"`
	RetrievedAt time.Time        `json:"retrieved_at"`
	Fields      map[Field]string `json:"fields"`
}

// NewRawRecord creates an empty record for the given source.
func NewRawRecord(source, recordID string, retrievedAt time.Time) RawRecord {
	return RawRecord{
		Source:      source,
		RecordID:    recordID,
		RetrievedAt: retrievedAt,
		Fields:      make(map[Field]string),
	}
}

// Get returns the trimmed value of f. ok is false when the field is missing
// or blank.
func (r RawRecord) Get(f Field) (string, bool) {
	v, ok := r.Fields[f]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// Set stores v under f. Blank values are ignored.
func (r *RawRecord) Set(f Field, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[Field]string)
	}
	r.Fields[f] = v
}
