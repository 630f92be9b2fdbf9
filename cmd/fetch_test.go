package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/source"
)

func TestWriteRecords(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	a := model.NewRawRecord("pappers", "552100554", at)
	a.Set(model.FieldName, "Boulangerie Martin")
	b := model.NewRawRecord("bodacc", "A20250001", at)
	b.Set(model.FieldProcedure, "Jugement d'ouverture de liquidation judiciaire")

	results := []source.Result{
		{Source: "pappers", Records: []model.RawRecord{a}},
		{Source: "actify", Err: source.Unavailable("actify", errors.New("boom"))},
		{Source: "bodacc", Records: []model.RawRecord{b}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeRecords(&buf, results))

	var got []model.RawRecord
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var rec model.RawRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		got = append(got, rec)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "pappers", got[0].Source)
	assert.Equal(t, "Boulangerie Martin", got[0].Fields[model.FieldName])
	assert.Equal(t, "A20250001", got[1].RecordID)
}

func TestReportFetchErrors(t *testing.T) {
	results := []source.Result{
		{Source: "pappers", Records: make([]model.RawRecord, 3), Duration: 1500 * time.Millisecond},
		{Source: "actify", Err: source.FormatChanged("actify", errors.New("no listing links"))},
	}

	var buf bytes.Buffer
	require.NoError(t, reportFetchErrors(&buf, results))
	assert.Contains(t, buf.String(), "pappers: 3 records in 1.5s")
	assert.Contains(t, buf.String(), "actify: source_format_changed")
}

func TestReportFetchErrors_AllFailed(t *testing.T) {
	results := []source.Result{
		{Source: "pappers", Err: source.Unavailable("pappers", errors.New("timeout"))},
		{Source: "bodacc", Err: source.Unavailable("bodacc", errors.New("timeout"))},
	}

	var buf bytes.Buffer
	err := reportFetchErrors(&buf, results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every source failed")
}

func TestReportFetchErrors_NoSources(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, reportFetchErrors(&buf, nil))
	assert.Empty(t, buf.String())
}
