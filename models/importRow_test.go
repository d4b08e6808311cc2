package models

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "" && sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	} else {
		sheet = "Sheet1"
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestNormalizeHeaderAndNoise(t *testing.T) {
	assert.Equal(t, "gl account", NormalizeHeader("  GL   Account "))
	for _, h := range []string{"", "unnamed: 0", "Unnamed: 3", "index", "id", "_id", "row id", "#", "level_0"} {
		assert.True(t, IsNoiseColumn(NormalizeHeader(h)), h)
	}
	assert.False(t, IsNoiseColumn("gl account"))
}

func TestBuildRecordRows(t *testing.T) {
	data := buildWorkbook(t, "", [][]any{
		{"Unnamed: 0", " GL Account ", "GL Name", "País", "Entity", "Saldo", "Team", "Done", "Completion Date"},
		{0, 45, "Cash", "Mexico", "MX01", "1,200.50", "AP", "yes", "2026-08-04"},
		{1, "ABC", "Bad", "Mexico", "MX01", "", "", "", ""},
		{},
		{2, "99.0", "Payables", "Canada", "CA01", "(300)", "AR", "", ""},
	})
	sheet, err := ReadSheet(ImportSource{FileName: "records.xlsx", Data: data})
	require.NoError(t, err)
	assert.NotContains(t, sheet.Headers, "unnamed: 0")

	rows, skipped, err := BuildRecordRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0000000045", rows[0].GLAccount)
	assert.Equal(t, "Mexico", rows[0].Country)
	assert.Equal(t, "MX01", rows[0].EntityCode)
	assert.Equal(t, "AP", rows[0].Stream)
	assert.True(t, rows[0].Completed)
	assert.Equal(t, "2026-08-04", rows[0].CompletedAt)
	assert.Equal(t, "0000000099", rows[1].GLAccount)
	assert.Equal(t, 5, rows[1].Row)

	require.Len(t, skipped, 1)
	assert.Equal(t, 3, skipped[0].Row)
}

func TestBuildRecordRows_MissingAccountColumn(t *testing.T) {
	data := buildWorkbook(t, "", [][]any{{"Name", "Country"}, {"Cash", "Mexico"}})
	sheet, err := ReadSheet(ImportSource{Data: data})
	require.NoError(t, err)
	_, _, err = BuildRecordRows(sheet)
	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "glAccount", ie.Field)
}

func TestReadSheet_Rejects(t *testing.T) {
	cases := map[string]ImportSource{
		"empty":     {Data: nil},
		"not xlsx":  {Data: []byte("gl account,country\n45,Mexico\n")},
		"no header": {Data: buildWorkbook(t, "", nil)},
		"bad sheet": {Data: buildWorkbook(t, "", [][]any{{"GL"}}), Sheet: "Missing"},
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSheet(src)
			var ie *InputError
			assert.True(t, errors.As(err, &ie), "got %v", err)
		})
	}
}

func TestReadSheet_NamedSheet(t *testing.T) {
	data := buildWorkbook(t, "Balances", [][]any{{"Account"}, {"12"}})
	sheet, err := ReadSheet(ImportSource{Data: data, Sheet: "Balances"})
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "12", sheet.Rows[0].Cells["account"])
}

func TestBuildMappingRows_LastWins(t *testing.T) {
	data := buildWorkbook(t, "", [][]any{
		{"GL Account", "Review Group"},
		{"45", "Treasury"},
		{"46", "Payroll"},
		{"45.0", "Cash Ops"},
		{"x", "Nope"},
		{"47", ""},
	})
	sheet, err := ReadSheet(ImportSource{Data: data})
	require.NoError(t, err)
	entries, skipped, dups, err := BuildMappingRows(sheet)
	require.NoError(t, err)
	assert.Equal(t, []MappingEntry{
		{GLAccount: "0000000045", ReviewGroup: "Cash Ops"},
		{GLAccount: "0000000046", ReviewGroup: "Payroll"},
	}, entries)
	assert.Equal(t, []string{"0000000045"}, dups)
	assert.Len(t, skipped, 2)
}
