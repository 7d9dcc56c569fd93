package application

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
)

// ListRecords returns the newest records of a collection. Principals that
// may only read their own records see the ones they recorded when the
// collection tracks a recorder.
func (s *LedgerService) ListRecords(ctx context.Context, actor *domain.Principal, collection string, limit int) ([]domain.Record, error) {
	c, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	query := domain.RecordQuery{CollectionID: c.ID, Limit: clampLimit(limit)}
	switch {
	case s.Can(actor, PermRecordsRead):
	case s.Can(actor, PermRecordsReadOwn):
		if _, ok := c.FieldByName(domain.FieldRecordedBy); ok {
			query.FieldEquals = map[string]string{domain.FieldRecordedBy: actor.ID}
		}
	default:
		return nil, domain.ErrForbidden
	}

	items, err := s.repo.ListRecords(ctx, query)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Collection = c.Name
	}
	return items, nil
}

func (s *LedgerService) GetRecord(ctx context.Context, actor *domain.Principal, collection, id string) (domain.Record, error) {
	c, err := s.collection(ctx, collection)
	if err != nil {
		return domain.Record{}, err
	}
	rec, err := s.repo.GetRecord(ctx, c.ID, id)
	if err != nil {
		return domain.Record{}, err
	}
	if !s.canRead(actor, c, rec) {
		return domain.Record{}, domain.ErrForbidden
	}
	rec.Collection = c.Name
	return rec, nil
}

func (s *LedgerService) CreateRecord(ctx context.Context, actor *domain.Principal, collection string, data map[string]any) (domain.Record, error) {
	if !s.Can(actor, PermRecordsCreate) {
		return domain.Record{}, domain.ErrForbidden
	}
	c, err := s.collection(ctx, collection)
	if err != nil {
		return domain.Record{}, err
	}

	input := make(map[string]any, len(data)+1)
	for k, v := range data {
		input[k] = v
	}
	if _, ok := c.FieldByName(domain.FieldRecordedBy); ok {
		input[domain.FieldRecordedBy] = actor.ID
	}
	if !s.Can(actor, PermRecordsReview) {
		delete(input, domain.FieldApprovedBy)
		delete(input, domain.FieldStatus)
	}
	clean, err := s.validateRecord(ctx, c, input)
	if err != nil {
		return domain.Record{}, err
	}
	if f, ok := c.FieldByName(domain.FieldStatus); ok && f.Type == domain.FieldSelect && clean[domain.FieldStatus] == nil {
		clean[domain.FieldStatus] = domain.StatusPending
	}

	rec, err := s.repo.CreateRecord(ctx, domain.Record{ID: newRecordID(), CollectionID: c.ID, Data: clean})
	if err != nil {
		return domain.Record{}, err
	}
	rec.Collection = c.Name
	metrics.RecordWritesTotal.WithLabelValues(c.Name, "create").Inc()
	s.WriteAudit(ctx, actor.ID, "record.create", c.Name, rec.ID, "")
	return rec, nil
}

// UpdateRecord merges patch into the stored data and validates the result.
func (s *LedgerService) UpdateRecord(ctx context.Context, actor *domain.Principal, collection, id string, patch map[string]any) (domain.Record, error) {
	if !s.Can(actor, PermRecordsUpdate) {
		return domain.Record{}, domain.ErrForbidden
	}
	c, err := s.collection(ctx, collection)
	if err != nil {
		return domain.Record{}, err
	}
	rec, err := s.repo.GetRecord(ctx, c.ID, id)
	if err != nil {
		return domain.Record{}, err
	}

	merged := make(map[string]any, len(rec.Data)+len(patch))
	for k, v := range rec.Data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	clean, err := s.validateRecord(ctx, c, merged)
	if err != nil {
		return domain.Record{}, err
	}

	rec.Data = clean
	updated, err := s.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return domain.Record{}, err
	}
	updated.Collection = c.Name
	metrics.RecordWritesTotal.WithLabelValues(c.Name, "update").Inc()
	s.WriteAudit(ctx, actor.ID, "record.update", c.Name, id, "")
	return updated, nil
}

func (s *LedgerService) DeleteRecord(ctx context.Context, actor *domain.Principal, collection, id string) error {
	if !s.Can(actor, PermRecordsDelete) {
		return domain.ErrForbidden
	}
	c, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetRecord(ctx, c.ID, id); err != nil {
		return err
	}
	cols, err := s.schema.ListCollections(ctx)
	if err != nil {
		return err
	}
	return s.deleteWithReferences(ctx, actor, cols, c, id, map[string]bool{})
}

// deleteWithReferences removes a record after dealing with the relation
// fields that point at it: cascading fields delete the referencing record,
// optional ones are cleared and required ones block the delete.
func (s *LedgerService) deleteWithReferences(ctx context.Context, actor *domain.Principal, cols []domain.Collection, c domain.Collection, id string, seen map[string]bool) error {
	key := c.ID + "/" + id
	if seen[key] {
		return nil
	}
	seen[key] = true

	type reference struct {
		collection domain.Collection
		field      domain.Field
		records    []domain.Record
	}
	var refs []reference
	for _, other := range cols {
		if other.Type != domain.CollectionTypeBase {
			continue
		}
		for _, f := range other.Fields {
			if f.Type != domain.FieldRelation || f.CollectionID != c.ID {
				continue
			}
			found, err := s.repo.ListRecords(ctx, domain.RecordQuery{
				CollectionID: other.ID,
				FieldEquals:  map[string]string{f.Name: id},
				Limit:        1000,
			})
			if err != nil {
				return err
			}
			if len(found) == 0 {
				continue
			}
			if f.Required && !f.CascadeDelete {
				return fmt.Errorf("%w: %s record %s is still referenced by %s.%s", domain.ErrValidation, c.Name, id, other.Name, f.Name)
			}
			refs = append(refs, reference{collection: other, field: f, records: found})
		}
	}

	for _, ref := range refs {
		for _, rec := range ref.records {
			if ref.field.CascadeDelete {
				if err := s.deleteWithReferences(ctx, actor, cols, ref.collection, rec.ID, seen); err != nil {
					return err
				}
				continue
			}
			delete(rec.Data, ref.field.Name)
			if _, err := s.repo.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			s.WriteAudit(ctx, actor.ID, "record.unlink", ref.collection.Name, rec.ID, ref.field.Name+"="+id)
		}
	}

	if err := s.repo.DeleteRecord(ctx, c.ID, id); err != nil {
		return err
	}
	metrics.RecordWritesTotal.WithLabelValues(c.Name, "delete").Inc()
	s.WriteAudit(ctx, actor.ID, "record.delete", c.Name, id, "")
	return nil
}

// SetStatus reviews a record. Collections with a status select get the new
// value; collections with an approved_by relation get the reviewer on
// approval and lose it otherwise.
func (s *LedgerService) SetStatus(ctx context.Context, actor *domain.Principal, collection, id, status string) (domain.Record, error) {
	if !s.Can(actor, PermRecordsReview) {
		return domain.Record{}, domain.ErrForbidden
	}
	c, err := s.collection(ctx, collection)
	if err != nil {
		return domain.Record{}, err
	}

	allowed := []string{domain.StatusPending, domain.StatusApproved, domain.StatusRejected}
	statusField, hasStatus := c.FieldByName(domain.FieldStatus)
	if hasStatus && len(statusField.Values) > 0 {
		allowed = statusField.Values
	}
	if !slices.Contains(allowed, status) {
		return domain.Record{}, fmt.Errorf("status %q: %w", status, domain.ErrValidation)
	}
	_, hasApprover := c.FieldByName(domain.FieldApprovedBy)
	if !hasStatus && !hasApprover {
		return domain.Record{}, fmt.Errorf("collection %s has no review fields: %w", c.Name, domain.ErrValidation)
	}

	rec, err := s.repo.GetRecord(ctx, c.ID, id)
	if err != nil {
		return domain.Record{}, err
	}
	if hasStatus {
		rec.Data[domain.FieldStatus] = status
	}
	if hasApprover {
		if status == domain.StatusApproved {
			rec.Data[domain.FieldApprovedBy] = actor.ID
		} else {
			delete(rec.Data, domain.FieldApprovedBy)
		}
	}

	updated, err := s.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return domain.Record{}, err
	}
	updated.Collection = c.Name
	metrics.RecordWritesTotal.WithLabelValues(c.Name, "status").Inc()
	s.WriteAudit(ctx, actor.ID, "record.status", c.Name, id, "status="+status)
	return updated, nil
}

// Summary counts records per collection for the dashboard. Principals that
// may only read their own records get counts of what they recorded.
func (s *LedgerService) Summary(ctx context.Context, actor *domain.Principal) (map[string]int64, error) {
	readAll := s.Can(actor, PermRecordsRead)
	if !readAll && !s.Can(actor, PermRecordsReadOwn) {
		return nil, domain.ErrForbidden
	}
	cols, err := s.schema.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(cols))
	for _, c := range cols {
		if c.Type != domain.CollectionTypeBase {
			continue
		}
		query := domain.RecordQuery{CollectionID: c.ID}
		if _, ok := c.FieldByName(domain.FieldRecordedBy); ok && !readAll {
			query.FieldEquals = map[string]string{domain.FieldRecordedBy: actor.ID}
		}
		n, err := s.repo.CountRecords(ctx, query)
		if err != nil {
			return nil, err
		}
		out[c.Name] = n
	}
	return out, nil
}

// Collection returns a record collection's schema for rendering forms and
// tables.
func (s *LedgerService) Collection(ctx context.Context, actor *domain.Principal, nameOrID string) (domain.Collection, error) {
	if actor == nil {
		return domain.Collection{}, domain.ErrUnauthorized
	}
	return s.collection(ctx, nameOrID)
}

func (s *LedgerService) collection(ctx context.Context, nameOrID string) (domain.Collection, error) {
	c, err := s.schema.FindCollection(ctx, nameOrID)
	if err != nil {
		return domain.Collection{}, err
	}
	if c.Type == domain.CollectionTypeAuth {
		return domain.Collection{}, fmt.Errorf("collection %s holds users: %w", c.Name, domain.ErrForbidden)
	}
	return c, nil
}

func (s *LedgerService) canRead(actor *domain.Principal, c domain.Collection, rec domain.Record) bool {
	if s.Can(actor, PermRecordsRead) {
		return true
	}
	if !s.Can(actor, PermRecordsReadOwn) {
		return false
	}
	if _, ok := c.FieldByName(domain.FieldRecordedBy); !ok {
		return true
	}
	return rec.String(domain.FieldRecordedBy) == actor.ID
}

// validateRecord checks data against the collection's fields and returns
// the writable subset. Unknown keys and system fields are dropped.
func (s *LedgerService) validateRecord(ctx context.Context, c domain.Collection, data map[string]any) (map[string]any, error) {
	clean := make(map[string]any, len(c.Fields))
	var problems []string
	for _, f := range c.Fields {
		if f.System || f.PrimaryKey || f.Type == domain.FieldAutodate || f.Type == domain.FieldPassword {
			continue
		}
		value, err := coerceField(f, data[f.Name])
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		if isBlank(value) {
			if f.Required && f.Name != domain.FieldRecordedBy && f.Name != domain.FieldStatus {
				problems = append(problems, f.Name+": required")
			}
			continue
		}
		if f.Type == domain.FieldRelation && f.CollectionID == domain.UsersCollectionID {
			if _, err := s.repo.GetUserByID(ctx, value.(string)); err != nil {
				problems = append(problems, f.Name+": unknown user")
				continue
			}
		}
		clean[f.Name] = value
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return clean, nil
}

func coerceField(f domain.Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Type {
	case domain.FieldText:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected text")
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		if f.Min != nil && *f.Min > 0 && float64(len([]rune(v))) < *f.Min {
			return nil, fmt.Errorf("shorter than %v", *f.Min)
		}
		if f.Max != nil && *f.Max > 0 && float64(len([]rune(v))) > *f.Max {
			return nil, fmt.Errorf("longer than %v", *f.Max)
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("bad pattern: %v", err)
			}
			if !re.MatchString(v) {
				return nil, fmt.Errorf("does not match %s", f.Pattern)
			}
		}
		return v, nil
	case domain.FieldNumber:
		n, err := toNumber(raw)
		if err != nil {
			return nil, err
		}
		if f.OnlyInt && n != math.Trunc(n) {
			return nil, fmt.Errorf("expected an integer")
		}
		if f.Min != nil && n < *f.Min {
			return nil, fmt.Errorf("below %v", *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return nil, fmt.Errorf("above %v", *f.Max)
		}
		if n == 0 {
			return nil, nil
		}
		return n, nil
	case domain.FieldSelect:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected one value")
		}
		if v == "" {
			return nil, nil
		}
		if !slices.Contains(f.Values, v) {
			return nil, fmt.Errorf("%q is not one of %s", v, strings.Join(f.Values, ", "))
		}
		return v, nil
	case domain.FieldRelation:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a record id")
		}
		return strings.TrimSpace(v), nil
	case domain.FieldEmail:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected an email")
		}
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		addr, err := mail.ParseAddress(v)
		if err != nil {
			return nil, fmt.Errorf("invalid email")
		}
		return addr.Address, nil
	case domain.FieldBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("expected a boolean")
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected a boolean")
	}
	return raw, nil
}

func toNumber(raw any) (float64, error) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number")
		}
		n = parsed
	default:
		return 0, fmt.Errorf("expected a number")
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("expected a finite number")
	}
	return n, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	}
	return false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
