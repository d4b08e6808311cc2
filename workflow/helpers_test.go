package workflow

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RecordEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc    *Service
	docs   *store.MemoryStore
	blobs  *store.MemoryBlobStore
	events *recordingPublisher
	now    time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		docs:   store.NewMemoryStore(),
		blobs:  store.NewMemoryBlobStore(""),
		events: &recordingPublisher{},
		now:    now,
	}
	f.svc = NewService(f.docs, f.blobs, logger)
	f.svc.Events = f.events
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

var (
	admin    = models.SystemActor("admin")
	allScope = models.AccessScope{AllCountries: true, AllStreams: true}
	filler   = models.Actor{Username: "fran", Role: models.RoleFiller, Scope: allScope}
	reviewer = models.Actor{Username: "rita", Role: models.RoleReviewer, Scope: allScope}
	mexican  = models.Actor{
		Username: "mateo",
		Role:     models.RoleApprover,
		Scope:    models.AccessScope{Countries: []string{"Mexico"}, AllStreams: true},
	}
)

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func (f *fixture) importMappings(t *testing.T, rows ...[]any) {
	t.Helper()
	data := workbook(t, append([][]any{{"GL Account", "Review Group"}}, rows...))
	_, err := f.svc.ImportMappings(context.Background(), admin, models.ImportSource{FileName: "mappings.xlsx", Data: data}, ImportOptions{})
	require.NoError(t, err)
}

func (f *fixture) importRecords(t *testing.T, rows ...[]any) *models.ImportSummary {
	t.Helper()
	data := workbook(t, append([][]any{{"GL Account", "Country", "Stream", "Completed", "Completed At"}}, rows...))
	summary, err := f.svc.ImportRecords(context.Background(), admin, models.ImportSource{FileName: "records.xlsx", Data: data}, ImportOptions{})
	require.NoError(t, err)
	return summary
}

func (f *fixture) list(t *testing.T, actor models.Actor) []models.ReconciliationRecord {
	t.Helper()
	recs, err := f.svc.ListRecords(context.Background(), actor, RecordQuery{})
	require.NoError(t, err)
	return recs
}

func (f *fixture) byAccount(t *testing.T, acct string) models.ReconciliationRecord {
	t.Helper()
	for _, r := range f.list(t, admin) {
		if r.GLAccount == acct {
			return r
		}
	}
	t.Fatalf("no record for %s", acct)
	return models.ReconciliationRecord{}
}
