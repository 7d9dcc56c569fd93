package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SchemaStore keeps collections in _collections and applied step names in
// _migrations. Renaming or removing a field rewrites the stored record data
// so records follow the schema.
type SchemaStore struct {
	db *gorm.DB
}

func NewSchemaStore(db *gorm.DB) *SchemaStore {
	return &SchemaStore{db: db}
}

func (s *SchemaStore) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows := make([]CollectionModel, 0)
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Collection, 0, len(rows))
	for _, m := range rows {
		c, err := toCollection(m)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *SchemaStore) FindCollection(ctx context.Context, nameOrID string) (domain.Collection, error) {
	var m CollectionModel
	err := s.db.WithContext(ctx).Where("id = ?", nameOrID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).Where("name = ?", nameOrID).First(&m).Error
	}
	if err != nil {
		return domain.Collection{}, notFound(err, "collection "+nameOrID)
	}
	return toCollection(m)
}

func (s *SchemaStore) SaveCollection(ctx context.Context, value domain.Collection) error {
	m, err := fromCollection(value)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing CollectionModel
		err := tx.Where("id = ?", value.ID).First(&existing).Error
		switch {
		case err == nil:
			before, err := toCollection(existing)
			if err != nil {
				return err
			}
			if err := syncRecordData(tx, before, value); err != nil {
				return err
			}
			m.CreatedAt = existing.CreatedAt
			return tx.Save(&m).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&m).Error
		default:
			return err
		}
	})
}

// DeleteCollection drops the collection and every record stored in it.
func (s *SchemaStore) DeleteCollection(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&CollectionModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
		}
		return tx.Where("collection_id = ?", id).Delete(&RecordModel{}).Error
	})
}

func (s *SchemaStore) AppliedMigrations(ctx context.Context) ([]domain.AppliedMigration, error) {
	rows := make([]AppliedMigrationModel, 0)
	if err := s.db.WithContext(ctx).Order("file ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.AppliedMigration, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.AppliedMigration{File: m.File, Applied: m.Applied})
	}
	return result, nil
}

func (s *SchemaStore) MarkApplied(ctx context.Context, file string) error {
	m := AppliedMigrationModel{File: file, Applied: time.Now().UTC()}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *SchemaStore) UnmarkApplied(ctx context.Context, file string) error {
	return s.db.WithContext(ctx).Where("file = ?", file).Delete(&AppliedMigrationModel{}).Error
}

func (s *SchemaStore) WithinTx(ctx context.Context, fn func(domain.SchemaStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SchemaStore{db: tx})
	})
}

// syncRecordData carries field renames and removals over to the JSON data of
// the collection's records. Fields are matched by id.
func syncRecordData(tx *gorm.DB, before, after domain.Collection) error {
	renames := map[string]string{}
	var removed []string
	for _, old := range before.Fields {
		idx := after.FieldIndex(old.ID)
		switch {
		case idx < 0:
			removed = append(removed, old.Name)
		case after.Fields[idx].Name != old.Name:
			renames[old.Name] = after.Fields[idx].Name
		}
	}
	if len(renames) == 0 && len(removed) == 0 {
		return nil
	}

	rows := make([]RecordModel, 0)
	if err := tx.Where("collection_id = ?", before.ID).Find(&rows).Error; err != nil {
		return err
	}
	for _, m := range rows {
		data := map[string]any{}
		if err := json.Unmarshal(m.Data, &data); err != nil {
			return fmt.Errorf("decode record %s: %w", m.ID, err)
		}
		moved := make(map[string]any, len(renames))
		for from, to := range renames {
			if v, ok := data[from]; ok {
				moved[to] = v
				delete(data, from)
			}
		}
		for _, name := range removed {
			delete(data, name)
		}
		for k, v := range moved {
			data[k] = v
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if err := tx.Model(&RecordModel{}).Where("id = ?", m.ID).Update("data", datatypes.JSON(raw)).Error; err != nil {
			return err
		}
	}
	return nil
}

func fromCollection(c domain.Collection) (CollectionModel, error) {
	fields := c.Fields
	if fields == nil {
		fields = []domain.Field{}
	}
	indexes := c.Indexes
	if indexes == nil {
		indexes = []string{}
	}
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return CollectionModel{}, err
	}
	rawIndexes, err := json.Marshal(indexes)
	if err != nil {
		return CollectionModel{}, err
	}
	return CollectionModel{
		ID:         c.ID,
		Name:       c.Name,
		Type:       defaultString(c.Type, domain.CollectionTypeBase),
		System:     c.System,
		Fields:     datatypes.JSON(rawFields),
		Indexes:    datatypes.JSON(rawIndexes),
		ListRule:   c.ListRule,
		ViewRule:   c.ViewRule,
		CreateRule: c.CreateRule,
		UpdateRule: c.UpdateRule,
		DeleteRule: c.DeleteRule,
	}, nil
}

func toCollection(m CollectionModel) (domain.Collection, error) {
	c := domain.Collection{
		ID:      m.ID,
		Name:    m.Name,
		Type:    m.Type,
		System:  m.System,
		Fields:  []domain.Field{},
		Indexes: []string{},
		Rules: domain.Rules{
			ListRule:   m.ListRule,
			ViewRule:   m.ViewRule,
			CreateRule: m.CreateRule,
			UpdateRule: m.UpdateRule,
			DeleteRule: m.DeleteRule,
		},
	}
	if err := json.Unmarshal(m.Fields, &c.Fields); err != nil {
		return domain.Collection{}, fmt.Errorf("decode fields of %s: %w", m.ID, err)
	}
	if err := json.Unmarshal(m.Indexes, &c.Indexes); err != nil {
		return domain.Collection{}, fmt.Errorf("decode indexes of %s: %w", m.ID, err)
	}
	return c, nil
}
