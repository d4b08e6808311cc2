package models

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ImportSource is an uploaded workbook.
type ImportSource struct {
	FileName string
	Data     []byte
	// Sheet selects a worksheet by name; empty means the first one.
	Sheet string
}

// Sheet is a parsed worksheet with normalized headers.
type Sheet struct {
	Headers []string
	Rows    []SheetRow
}

type SheetRow struct {
	Number int
	Cells  map[string]string
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	noiseHeader   = regexp.MustCompile(`^(unnamed:?\s*\d+|level_\d+)$`)
)

// NormalizeHeader trims, collapses inner whitespace and lowercases.
func NormalizeHeader(h string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(strings.TrimSpace(h), " "))
}

// IsNoiseColumn reports index-like columns left over from exports.
func IsNoiseColumn(normalized string) bool {
	switch normalized {
	case "", "index", "id", "_id", "row id", "#":
		return true
	}
	return noiseHeader.MatchString(normalized)
}

// ReadSheet parses an xlsx payload. Any failure is an InputError so nothing
// downstream runs on a bad file.
func ReadSheet(src ImportSource) (*Sheet, error) {
	if len(src.Data) == 0 {
		return nil, NewInputError("file", "file is empty")
	}
	f, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return nil, NewInputError("file", "cannot read workbook: %v", err)
	}
	defer f.Close()

	name := src.Sheet
	if name == "" {
		name = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(name); name == "" || err != nil || idx < 0 {
		return nil, NewInputError("sheet", "sheet %q not found", src.Sheet)
	}
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, NewInputError("sheet", "cannot read sheet %q: %v", name, err)
	}
	if len(rows) == 0 {
		return nil, NewInputError("file", "missing header row")
	}

	headers := make([]string, len(rows[0]))
	keep := false
	for i, h := range rows[0] {
		headers[i] = NormalizeHeader(h)
		if !IsNoiseColumn(headers[i]) {
			keep = true
		}
	}
	if !keep {
		return nil, NewInputError("file", "missing header row")
	}

	sheet := &Sheet{}
	for _, h := range headers {
		if !IsNoiseColumn(h) {
			sheet.Headers = append(sheet.Headers, h)
		}
	}
	for i, row := range rows[1:] {
		cells := map[string]string{}
		blank := true
		for c, v := range row {
			if c >= len(headers) || IsNoiseColumn(headers[c]) {
				continue
			}
			v = strings.TrimSpace(v)
			if v != "" {
				blank = false
			}
			// first column wins on duplicate headers
			if _, exists := cells[headers[c]]; !exists {
				cells[headers[c]] = v
			}
		}
		if blank {
			continue
		}
		sheet.Rows = append(sheet.Rows, SheetRow{Number: i + 2, Cells: cells})
	}
	return sheet, nil
}

var recordAliases = map[string][]string{
	"glAccount":   {"gl account", "gl", "account", "gl account number", "account number"},
	"glName":      {"gl account name", "gl name", "account name"},
	"country":     {"country", "pais", "país"},
	"entityCode":  {"entity", "entity code", "company code"},
	"balance":     {"balance", "amount", "saldo"},
	"stream":      {"stream", "preparer stream", "team"},
	"completed":   {"completed", "done"},
	"completedAt": {"completed at", "completion date"},
}

var mappingAliases = map[string][]string{
	"glAccount":   {"gl account", "gl", "account", "gl account number", "account number"},
	"reviewGroup": {"review group", "group"},
}

// resolveColumns picks, per field, the first alias present in headers.
func resolveColumns(headers []string, aliases map[string][]string) map[string]string {
	present := map[string]bool{}
	for _, h := range headers {
		present[h] = true
	}
	out := map[string]string{}
	for field, names := range aliases {
		for _, n := range names {
			if present[n] {
				out[field] = n
				break
			}
		}
	}
	return out
}

type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportRow is a typed, normalized spreadsheet row.
type ImportRow struct {
	Row         int
	GLAccount   string
	GLName      string
	Country     string
	EntityCode  string
	Balance     string
	Stream      string
	Completed   bool
	CompletedAt string
}

func BuildRecordRows(sheet *Sheet) ([]ImportRow, []SkippedRow, error) {
	cols := resolveColumns(sheet.Headers, recordAliases)
	if _, ok := cols["glAccount"]; !ok {
		return nil, nil, NewInputError("glAccount", "no GL account column found (expected one of: %s)", strings.Join(recordAliases["glAccount"], ", "))
	}
	get := func(r SheetRow, field string) string {
		col, ok := cols[field]
		if !ok {
			return ""
		}
		return r.Cells[col]
	}

	var rows []ImportRow
	var skipped []SkippedRow
	for _, r := range sheet.Rows {
		raw := get(r, "glAccount")
		acct, ok := NormalizeGLAccount(raw)
		if !ok {
			skipped = append(skipped, SkippedRow{Row: r.Number, Reason: fmt.Sprintf("invalid GL account %q", raw)})
			continue
		}
		rows = append(rows, ImportRow{
			Row:         r.Number,
			GLAccount:   acct,
			GLName:      get(r, "glName"),
			Country:     get(r, "country"),
			EntityCode:  get(r, "entityCode"),
			Balance:     get(r, "balance"),
			Stream:      get(r, "stream"),
			Completed:   ParseBool(get(r, "completed")),
			CompletedAt: get(r, "completedAt"),
		})
	}
	return rows, skipped, nil
}

// BuildMappingRows reads the review group table. Later rows win on duplicate
// accounts; the overridden accounts are returned for reporting.
func BuildMappingRows(sheet *Sheet) ([]MappingEntry, []SkippedRow, []string, error) {
	cols := resolveColumns(sheet.Headers, mappingAliases)
	acctCol, ok := cols["glAccount"]
	if !ok {
		return nil, nil, nil, NewInputError("glAccount", "no GL account column found")
	}
	groupCol, ok := cols["reviewGroup"]
	if !ok {
		return nil, nil, nil, NewInputError("reviewGroup", "no review group column found")
	}

	index := map[string]int{}
	var out []MappingEntry
	var skipped []SkippedRow
	var duplicates []string
	for _, r := range sheet.Rows {
		acct, ok := NormalizeGLAccount(r.Cells[acctCol])
		if !ok {
			skipped = append(skipped, SkippedRow{Row: r.Number, Reason: fmt.Sprintf("invalid GL account %q", r.Cells[acctCol])})
			continue
		}
		group := strings.TrimSpace(r.Cells[groupCol])
		if group == "" {
			skipped = append(skipped, SkippedRow{Row: r.Number, Reason: "empty review group"})
			continue
		}
		if i, seen := index[acct]; seen {
			out[i].ReviewGroup = group
			duplicates = append(duplicates, acct)
			continue
		}
		index[acct] = len(out)
		out = append(out, MappingEntry{GLAccount: acct, ReviewGroup: group})
	}
	return out, skipped, duplicates, nil
}

type ImportSummary struct {
	FileName          string       `json:"fileName"`
	InsertedCount     int          `json:"insertedCount"`
	SkippedCount      int          `json:"skippedCount"`
	UnmatchedAccounts []string     `json:"unmatchedAccounts"`
	SkippedRows       []SkippedRow `json:"skippedRows"`
	Warnings          []string     `json:"warnings,omitempty"`
	DryRun            bool         `json:"dryRun"`
}
