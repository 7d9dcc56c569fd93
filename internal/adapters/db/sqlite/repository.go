package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type LedgerRepository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) CreateUser(ctx context.Context, value domain.User) (domain.User, error) {
	m := UserModel{
		ID:           value.ID,
		Email:        strings.ToLower(strings.TrimSpace(value.Email)),
		Name:         strings.TrimSpace(value.Name),
		Role:         defaultString(value.Role, domain.RoleVolunteer),
		PasswordHash: value.PasswordHash,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.User{}, err
	}
	return toUser(m), nil
}

func (r *LedgerRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error
	return count, err
}

func (r *LedgerRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&m).Error; err != nil {
		return domain.User{}, notFound(err, "user")
	}
	return toUser(m), nil
}

func (r *LedgerRepository) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return domain.User{}, notFound(err, "user")
	}
	return toUser(m), nil
}

func (r *LedgerRepository) ListUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	q := r.db.WithContext(ctx).Model(&UserModel{})
	if strings.TrimSpace(query) != "" {
		like := "%" + strings.TrimSpace(query) + "%"
		q = q.Where("email LIKE ? OR name LIKE ?", like, like)
	}
	rows := make([]UserModel, 0)
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.User, 0, len(rows))
	for _, m := range rows {
		result = append(result, toUser(m))
	}
	return result, nil
}

func (r *LedgerRepository) CreateRecord(ctx context.Context, value domain.Record) (domain.Record, error) {
	data, err := json.Marshal(value.Data)
	if err != nil {
		return domain.Record{}, err
	}
	m := RecordModel{ID: value.ID, CollectionID: value.CollectionID, Data: datatypes.JSON(data)}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Record{}, err
	}
	return toRecord(m)
}

func (r *LedgerRepository) GetRecord(ctx context.Context, collectionID, id string) (domain.Record, error) {
	var m RecordModel
	if err := r.db.WithContext(ctx).Where("collection_id = ? AND id = ?", collectionID, id).First(&m).Error; err != nil {
		return domain.Record{}, notFound(err, "record")
	}
	return toRecord(m)
}

func (r *LedgerRepository) UpdateRecord(ctx context.Context, value domain.Record) (domain.Record, error) {
	data, err := json.Marshal(value.Data)
	if err != nil {
		return domain.Record{}, err
	}
	res := r.db.WithContext(ctx).Model(&RecordModel{}).
		Where("collection_id = ? AND id = ?", value.CollectionID, value.ID).
		Update("data", datatypes.JSON(data))
	if res.Error != nil {
		return domain.Record{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Record{}, fmt.Errorf("record %s: %w", value.ID, domain.ErrNotFound)
	}
	return r.GetRecord(ctx, value.CollectionID, value.ID)
}

func (r *LedgerRepository) DeleteRecord(ctx context.Context, collectionID, id string) error {
	res := r.db.WithContext(ctx).Where("collection_id = ? AND id = ?", collectionID, id).Delete(&RecordModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *LedgerRepository) ListRecords(ctx context.Context, query domain.RecordQuery) ([]domain.Record, error) {
	q := r.recordScope(ctx, query)
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}

	rows := make([]RecordModel, 0)
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Record, 0, len(rows))
	for _, m := range rows {
		rec, err := toRecord(m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// CountRecords ignores query.Limit.
func (r *LedgerRepository) CountRecords(ctx context.Context, query domain.RecordQuery) (int64, error) {
	var count int64
	err := r.recordScope(ctx, query).Count(&count).Error
	return count, err
}

func (r *LedgerRepository) recordScope(ctx context.Context, query domain.RecordQuery) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&RecordModel{}).Where("collection_id = ?", query.CollectionID)
	for key, value := range query.FieldEquals {
		q = q.Where(datatypes.JSONQuery("data").Equals(value, key))
	}
	return q
}

func (r *LedgerRepository) CreateAuditLog(ctx context.Context, value domain.AuditLog) error {
	m := AuditLogModel{ActorUserID: value.ActorUserID, Action: value.Action, TargetType: value.TargetType, TargetID: value.TargetID, Metadata: value.Metadata}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *LedgerRepository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	rows := make([]AuditLogModel, 0)
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.AuditLog, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.AuditLog{
			ID:          m.ID,
			ActorUserID: m.ActorUserID,
			Action:      m.Action,
			TargetType:  m.TargetType,
			TargetID:    m.TargetID,
			Metadata:    m.Metadata,
			CreatedAt:   m.CreatedAt,
		})
	}
	return result, nil
}

func toUser(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		Role:         m.Role,
		PasswordHash: m.PasswordHash,
		Created:      m.CreatedAt,
		Updated:      m.UpdatedAt,
	}
}

func toRecord(m RecordModel) (domain.Record, error) {
	data := map[string]any{}
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &data); err != nil {
			return domain.Record{}, fmt.Errorf("decode record %s: %w", m.ID, err)
		}
	}
	return domain.Record{
		ID:           m.ID,
		CollectionID: m.CollectionID,
		Data:         data,
		Created:      m.CreatedAt,
		Updated:      m.UpdatedAt,
	}, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}

	return input
}
