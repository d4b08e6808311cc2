package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRecords_ClassifiesAgainstMappings(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	f.importMappings(t, []any{"0000000045", "Treasury"})

	summary := f.importRecords(t,
		[]any{"45", "Mexico"},
		[]any{"99", "Canada"},
	)
	assert.Equal(t, 2, summary.InsertedCount)
	assert.Equal(t, 0, summary.SkippedCount)
	assert.Equal(t, []string{"0000000099"}, summary.UnmatchedAccounts)

	recs := f.list(t, admin)
	require.Len(t, recs, 2)
	assert.Equal(t, "0000000045", recs[0].GLAccount)
	assert.Equal(t, "Treasury", recs[0].ReviewGroup)
	assert.Equal(t, "0000000099", recs[1].GLAccount)
	assert.Equal(t, "Others", recs[1].ReviewGroup)
	for _, r := range recs {
		assert.Equal(t, models.StatusPending, r.Status)
		require.NotNil(t, r.DeadlineUsed)
		assert.Equal(t, "2026-08-05", r.DeadlineUsed.String())
		assert.Equal(t, int64(1), r.Version)
	}
}

func TestImportRecords_Idempotent(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	f.importMappings(t, []any{"45", "Treasury"})

	shape := func() [][3]string {
		var out [][3]string
		for _, r := range f.list(t, admin) {
			out = append(out, [3]string{r.GLAccount, r.ReviewGroup, string(r.Status)})
		}
		return out
	}
	rows := [][]any{{"45", "Mexico"}, {"99", "Canada"}, {"12", "Peru", "AP", "yes", "2026-08-04"}}

	f.importRecords(t, rows...)
	first := shape()
	firstIDs := f.list(t, admin)
	f.importRecords(t, rows...)
	second := shape()

	assert.Equal(t, first, second)
	assert.NotEqual(t, firstIDs[0].ID, f.list(t, admin)[0].ID)
}

func TestImportRecords_BadInputKeepsExistingRecords(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	f.importRecords(t, []any{"45", "Mexico"}, []any{"99", "Canada"})

	cases := map[string][]byte{
		"not a workbook":    []byte("gl account,country\n1,Mexico\n"),
		"no account column": workbook(t, [][]any{{"Name", "Country"}, {"Cash", "Mexico"}}),
		"no valid rows":     workbook(t, [][]any{{"GL Account"}, {"abc"}}),
		"empty":             nil,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ImportRecords(context.Background(), admin, models.ImportSource{FileName: "bad.xlsx", Data: data}, ImportOptions{})
			var ie *models.InputError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Len(t, f.list(t, admin), 2)
		})
	}
}

func TestImportRecords_SkipsInvalidAccounts(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	summary := f.importRecords(t,
		[]any{"45", "Mexico"},
		[]any{"12345678901", "Mexico"},
		[]any{"n/a", "Mexico"},
	)
	assert.Equal(t, 1, summary.InsertedCount)
	assert.Equal(t, 2, summary.SkippedCount)
	require.Len(t, summary.SkippedRows, 2)
	assert.Equal(t, 3, summary.SkippedRows[0].Row)
	assert.Equal(t, 4, summary.SkippedRows[1].Row)
}

func TestImportRecords_UnparseableCompletionIsAbsent(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	summary := f.importRecords(t,
		[]any{"45", "Mexico", "", "yes", "sometime last week"},
		[]any{"46", "Mexico", "", "yes", "2026-08-04"},
		[]any{"47", "Mexico", "", "yes", "2026-08-07"},
	)
	assert.NotEmpty(t, summary.Warnings)

	r45 := f.byAccount(t, "0000000045")
	assert.True(t, r45.Completed)
	assert.Nil(t, r45.CompletedAt)
	assert.Equal(t, models.StatusPending, r45.Status)

	assert.Equal(t, models.StatusOnTime, f.byAccount(t, "0000000046").Status)
	assert.Equal(t, models.StatusCompletedDelayed, f.byAccount(t, "0000000047").Status)
}

func TestImportRecords_SideEffects(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	f.importMappings(t, []any{"45", "Treasury"})
	f.importRecords(t, []any{"45", "Mexico"})

	archived, err := f.blobs.List(context.Background(), "imports/")
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	assert.Equal(t, []string{models.EventMappingsImported, models.EventRecordsImported}, f.events.types())

	log, err := f.svc.ListUploadLog(context.Background(), admin)
	require.NoError(t, err)
	kinds := []models.UploadKind{}
	for _, e := range log {
		kinds = append(kinds, e.Kind)
		assert.Equal(t, "admin", e.UploadedBy)
	}
	assert.ElementsMatch(t, []models.UploadKind{models.UploadKindMappingImport, models.UploadKindRecordImport}, kinds)
}

func TestImportRecords_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	data := workbook(t, [][]any{{"GL"}, {"45"}, {"46"}})
	summary, err := f.svc.ImportRecords(context.Background(), admin, models.ImportSource{FileName: "r.xlsx", Data: data}, ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.InsertedCount)
	assert.Empty(t, f.list(t, admin))
	assert.Empty(t, f.events.types())
}

func TestImportRecords_AdminOnly(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	data := workbook(t, [][]any{{"GL"}, {"45"}})
	_, err := f.svc.ImportRecords(context.Background(), filler, models.ImportSource{Data: data}, ImportOptions{})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.svc.ImportMappings(context.Background(), mexican, models.ImportSource{Data: data}, ImportOptions{})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestImportMappings_LastRowWins(t *testing.T) {
	f := newFixture(t, date(2026, time.August, 3))
	data := workbook(t, [][]any{
		{"GL Account", "Group"},
		{"45", "Treasury"},
		{"45", "Cash Ops"},
	})
	summary, err := f.svc.ImportMappings(context.Background(), admin, models.ImportSource{FileName: "m.xlsx", Data: data}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InsertedCount)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "0000000045")

	f.importRecords(t, []any{"45", "Mexico"})
	assert.Equal(t, "Cash Ops", f.byAccount(t, "0000000045").ReviewGroup)
}
