package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type documentRow struct {
	Collection string    `gorm:"primaryKey;size:100"`
	ID         string    `gorm:"primaryKey;size:64"`
	Body       string    `gorm:"type:json;not null"`
	Version    int64     `gorm:"not null;default:1"`
	CreatedAt  time.Time `gorm:"type:datetime(6);index"`
	UpdatedAt  time.Time `gorm:"type:datetime(6)"`
}

func (documentRow) TableName() string { return "documents" }

type documentEntryRow struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	Collection string    `gorm:"size:100;not null;index:idx_document_entries_parent"`
	DocumentID string    `gorm:"size:64;not null;index:idx_document_entries_parent"`
	Sublist    string    `gorm:"size:64;not null;index:idx_document_entries_parent"`
	Body       string    `gorm:"type:json;not null"`
	PostedAt   time.Time `gorm:"type:datetime(6);not null"`
}

func (documentEntryRow) TableName() string { return "document_entries" }

type configRow struct {
	Key       string    `gorm:"column:config_key;primaryKey;size:100"`
	Value     string    `gorm:"type:json;not null"`
	UpdatedAt time.Time `gorm:"type:datetime(6)"`
}

func (configRow) TableName() string { return "app_configs" }

// GormStore keeps documents as JSON bodies in MySQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Migrate(ctx context.Context) error {
	return unavailable("migrate", s.db.WithContext(ctx).AutoMigrate(&documentRow{}, &documentEntryRow{}, &configRow{}))
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	return unavailable("ping", sqlDB.PingContext(ctx))
}

func (s *GormStore) Get(ctx context.Context, collection, id string) (*Entry, error) {
	var row documentRow
	err := s.db.WithContext(ctx).Where("collection = ? AND id = ?", collection, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return row.entry()
}

func (s *GormStore) Put(ctx context.Context, collection, id string, doc Document) (*Entry, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out *Entry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = documentRow{Collection: collection, ID: id, Body: string(body), Version: 1}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			row.Body = string(body)
			row.Version++
			if err := tx.Model(&documentRow{}).
				Where("collection = ? AND id = ?", collection, id).
				Updates(map[string]interface{}{"body": row.Body, "version": row.Version}).Error; err != nil {
				return err
			}
		}
		e, err := row.entry()
		out = e
		return err
	})
	if err != nil {
		return nil, unavailable("put", err)
	}
	return out, nil
}

func (s *GormStore) Update(ctx context.Context, collection, id string, fields Document, expectedVersion int64) (*Entry, error) {
	norm, err := normalizeDocument(fields)
	if err != nil {
		return nil, err
	}
	var out *Entry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if expectedVersion > 0 && row.Version != expectedVersion {
			return ErrVersionConflict
		}
		current := Document{}
		if err := json.Unmarshal([]byte(row.Body), &current); err != nil {
			return err
		}
		for k, v := range norm {
			current[k] = v
		}
		body, err := json.Marshal(current)
		if err != nil {
			return err
		}
		row.Body = string(body)
		row.Version++
		if err := tx.Model(&documentRow{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]interface{}{"body": row.Body, "version": row.Version}).Error; err != nil {
			return err
		}
		out = &Entry{ID: id, Version: row.Version, Doc: current}
		return nil
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("update", err)
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).Where("collection = ? AND id = ?", collection, id).Delete(&documentRow{})
	if res.Error != nil {
		return unavailable("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, collection string, filter Filter) ([]Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Empty() {
		return []Entry{}, nil
	}
	q := s.db.WithContext(ctx).Where("collection = ?", collection)
	for _, c := range filter.Conditions {
		path := "$." + c.Field
		expr := "LOWER(JSON_UNQUOTE(JSON_EXTRACT(body, ?)))"
		switch c.Op {
		case OpIn:
			q = q.Where(expr+" IN ?", path, lowerAll(c.Values))
		case OpNotIn:
			if len(c.Values) == 0 {
				continue
			}
			q = q.Where("("+expr+" IS NULL OR "+expr+" NOT IN ?)", path, path, lowerAll(c.Values))
		}
	}
	var rows []documentRow
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, unavailable("list", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *GormStore) ReplaceAll(ctx context.Context, collection string, entries []Entry) error {
	rows := make([]documentRow, 0, len(entries))
	now := time.Now().UTC()
	for i, e := range entries {
		body, err := json.Marshal(e.Doc)
		if err != nil {
			return err
		}
		// keep input order stable under created_at ordering
		ts := now.Add(time.Duration(i) * time.Microsecond)
		rows = append(rows, documentRow{Collection: collection, ID: e.ID, Body: string(body), Version: 1, CreatedAt: ts, UpdatedAt: ts})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", collection).Delete(&documentRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	return unavailable("replace_all", err)
}

func (s *GormStore) AppendToSublist(ctx context.Context, collection, id, sublist string, entry Document) (time.Time, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return time.Time{}, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("collection = ? AND id = ?", collection, id).Count(&count).Error; err != nil {
		return time.Time{}, unavailable("append", err)
	}
	if count == 0 {
		return time.Time{}, ErrNotFound
	}
	row := documentEntryRow{
		Collection: collection,
		DocumentID: id,
		Sublist:    sublist,
		Body:       string(body),
		PostedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return time.Time{}, unavailable("append", err)
	}
	return row.PostedAt, nil
}

func (s *GormStore) Sublist(ctx context.Context, collection, id, sublist string) ([]SublistEntry, error) {
	var rows []documentEntryRow
	if err := s.db.WithContext(ctx).
		Where("collection = ? AND document_id = ? AND sublist = ?", collection, id, sublist).
		Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, unavailable("sublist", err)
	}
	out := make([]SublistEntry, 0, len(rows))
	for _, r := range rows {
		doc := Document{}
		if err := json.Unmarshal([]byte(r.Body), &doc); err != nil {
			return nil, err
		}
		out = append(out, SublistEntry{Seq: r.Seq, PostedAt: r.PostedAt, Doc: doc})
	}
	return out, nil
}

func (s *GormStore) GetConfig(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var row configRow
	err := s.db.WithContext(ctx).Where("config_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get_config", err)
	}
	return json.RawMessage(row.Value), true, nil
}

func (s *GormStore) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return errInvalidConfig
	}
	row := configRow{Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	return unavailable("set_config", err)
}

func (r documentRow) entry() (*Entry, error) {
	doc := Document{}
	if err := json.Unmarshal([]byte(r.Body), &doc); err != nil {
		return nil, err
	}
	return &Entry{ID: r.ID, Version: r.Version, Doc: doc}, nil
}
