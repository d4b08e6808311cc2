package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ImportOptions struct {
	// DryRun parses and classifies without touching the store.
	DryRun bool
}

// ImportRecords replaces the whole record collection with the rows of an
// uploaded workbook. Nothing is written unless the file parses and yields at
// least one valid row; the swap itself is a single ReplaceAll.
func (s *Service) ImportRecords(ctx context.Context, actor models.Actor, src models.ImportSource, opts ImportOptions) (summary *models.ImportSummary, err error) {
	if !actor.Role.IsAdmin() {
		return nil, models.ErrForbidden
	}
	ctx, span := tracer.Start(ctx, "workflow.ImportRecords")
	span.SetAttributes(attribute.String("file.name", src.FileName), attribute.Bool("dry_run", opts.DryRun))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sheet, err := models.ReadSheet(src)
	if err != nil {
		return nil, err
	}
	rows, skipped, err := models.BuildRecordRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.NewInputError("file", "no rows with a valid GL account")
	}

	mappings, err := s.loadMappings(ctx)
	if err != nil {
		return nil, err
	}
	deadline, err := s.CurrentDeadline(ctx, s.now())
	if err != nil {
		return nil, err
	}

	summary = &models.ImportSummary{
		FileName:          src.FileName,
		SkippedCount:      len(skipped),
		SkippedRows:       skipped,
		UnmatchedAccounts: []string{},
		DryRun:            opts.DryRun,
	}
	if summary.SkippedRows == nil {
		summary.SkippedRows = []models.SkippedRow{}
	}
	seenUnmatched := map[string]bool{}
	entries := make([]store.Entry, 0, len(rows))
	for _, row := range rows {
		rec, warning := s.newRecord(row, mappings, deadline, actor)
		if warning != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("row %d: %v", row.Row, warning))
		}
		if _, ok := mappings[row.GLAccount]; !ok && !seenUnmatched[row.GLAccount] {
			seenUnmatched[row.GLAccount] = true
			summary.UnmatchedAccounts = append(summary.UnmatchedAccounts, row.GLAccount)
			summary.Warnings = append(summary.Warnings, models.MatchWarning{GLAccount: row.GLAccount}.String())
		}
		doc, derr := rec.ToDocument()
		if derr != nil {
			return nil, derr
		}
		entries = append(entries, store.Entry{ID: rec.ID, Doc: doc})
	}
	summary.InsertedCount = len(entries)
	if opts.DryRun {
		return summary, nil
	}

	err = s.Lock.Do(ctx, "import records", func(ctx context.Context) error {
		return s.Store.ReplaceAll(ctx, models.CollectionRecords, entries)
	})
	if err != nil {
		return nil, err
	}

	s.archiveImport(ctx, "records", src)
	s.logUpload(ctx, models.UploadLogEntry{FileName: src.FileName, UploadedBy: actor.Username, Kind: models.UploadKindRecordImport})
	s.publish(ctx, models.RecordEvent{Type: models.EventRecordsImported, Count: summary.InsertedCount, Actor: actor.Username})
	config.LogInfo(s.Logger, "workflow", "ImportRecords", "records imported", logrus.Fields{
		"file":      src.FileName,
		"inserted":  summary.InsertedCount,
		"skipped":   summary.SkippedCount,
		"unmatched": len(summary.UnmatchedAccounts),
	})
	return summary, nil
}

// ImportMappings replaces the GL account to review group table. Records keep
// their current group until the next record import.
func (s *Service) ImportMappings(ctx context.Context, actor models.Actor, src models.ImportSource, opts ImportOptions) (summary *models.ImportSummary, err error) {
	if !actor.Role.IsAdmin() {
		return nil, models.ErrForbidden
	}
	ctx, span := tracer.Start(ctx, "workflow.ImportMappings")
	span.SetAttributes(attribute.String("file.name", src.FileName), attribute.Bool("dry_run", opts.DryRun))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sheet, err := models.ReadSheet(src)
	if err != nil {
		return nil, err
	}
	mappings, skipped, duplicates, err := models.BuildMappingRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, models.NewInputError("file", "no rows with a valid GL account")
	}

	summary = &models.ImportSummary{
		FileName:          src.FileName,
		InsertedCount:     len(mappings),
		SkippedCount:      len(skipped),
		SkippedRows:       skipped,
		UnmatchedAccounts: []string{},
		DryRun:            opts.DryRun,
	}
	if summary.SkippedRows == nil {
		summary.SkippedRows = []models.SkippedRow{}
	}
	for _, acct := range duplicates {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("duplicate GL account %s, last row wins", acct))
	}
	if opts.DryRun {
		return summary, nil
	}

	entries := make([]store.Entry, 0, len(mappings))
	for _, m := range mappings {
		doc, derr := models.EncodeDocument(m)
		if derr != nil {
			return nil, derr
		}
		entries = append(entries, store.Entry{ID: m.GLAccount, Doc: doc})
	}
	err = s.Lock.Do(ctx, "import mappings", func(ctx context.Context) error {
		return s.Store.ReplaceAll(ctx, models.CollectionMappings, entries)
	})
	if err != nil {
		return nil, err
	}

	s.archiveImport(ctx, "mappings", src)
	s.logUpload(ctx, models.UploadLogEntry{FileName: src.FileName, UploadedBy: actor.Username, Kind: models.UploadKindMappingImport})
	s.publish(ctx, models.RecordEvent{Type: models.EventMappingsImported, Count: summary.InsertedCount, Actor: actor.Username})
	return summary, nil
}

// archiveImport keeps a copy of the source workbook under imports/.
func (s *Service) archiveImport(ctx context.Context, kind string, src models.ImportSource) {
	if s.Blobs == nil {
		return
	}
	name := fmt.Sprintf("imports/%s/%s_%s", kind, s.now().UTC().Format("20060102T150405Z"), models.SanitizeFileName(src.FileName))
	if _, err := s.Blobs.Put(ctx, name, src.Data, xlsxContentType); err != nil {
		config.LogError(s.Logger, "workflow", "archiveImport", name, nil, err)
	}
}
