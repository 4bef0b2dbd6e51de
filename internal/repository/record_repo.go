package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"carecircle/internal/database"
	"carecircle/internal/models"
)

// recordTable describes where one record kind lives. The owner column and
// the timestamp columns differ per table.
type recordTable struct {
	name       string
	owner      string
	columns    []string
	timestamps map[string]bool
	updatedAt  bool
}

var recordTables = map[models.Kind]recordTable{
	models.KindTask: {
		name:       "tasks",
		owner:      "senior_id",
		columns:    []string{"id", "senior_id", "title", "description", "status", "due_date", "created_at", "updated_at"},
		timestamps: map[string]bool{"due_date": true, "created_at": true, "updated_at": true},
		updatedAt:  true,
	},
	models.KindReminder: {
		name:       "reminders",
		owner:      "user_id",
		columns:    []string{"id", "user_id", "title", "description", "scheduled_time", "status", "created_at", "updated_at"},
		timestamps: map[string]bool{"scheduled_time": true, "created_at": true, "updated_at": true},
		updatedAt:  true,
	},
	models.KindRoutine: {
		name:       "routines",
		owner:      "user_id",
		columns:    []string{"id", "user_id", "name", "description", "time", "status", "created_at", "updated_at"},
		timestamps: map[string]bool{"time": true, "created_at": true, "updated_at": true},
		updatedAt:  true,
	},
	models.KindAlert: {
		name:       "alerts",
		owner:      "senior_id",
		columns:    []string{"id", "senior_id", "type", "message", "status", "created_at", "updated_at"},
		timestamps: map[string]bool{"created_at": true, "updated_at": true},
		updatedAt:  true,
	},
	models.KindCheckIn: {
		name:       "check_ins",
		owner:      "senior_id",
		columns:    []string{"id", "senior_id", "mood", "notes", "status", "created_at"},
		timestamps: map[string]bool{"created_at": true},
	},
	models.KindHealthLog: {
		name:       "health_logs",
		owner:      "senior_id",
		columns:    []string{"id", "senior_id", "type", "value", "unit", "notes", "status", "logged_at"},
		timestamps: map[string]bool{"logged_at": true},
	},
}

// RecordRepository reads and writes the care record tables as raw records.
// Rows are returned as column name to value maps so each kind keeps its own
// shape until it is normalized.
type RecordRepository struct {
	db database.DBTX
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db database.DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// OwnerColumn returns the column holding the senior id for kind
func OwnerColumn(kind models.Kind) (string, error) {
	t, err := tableFor(kind)
	if err != nil {
		return "", err
	}
	return t.owner, nil
}

func tableFor(kind models.Kind) (recordTable, error) {
	t, ok := recordTables[kind]
	if !ok {
		return recordTable{}, fmt.Errorf("unknown record kind: %q", kind)
	}
	return t, nil
}

// ListByOwners returns every record of kind owned by one of ownerIDs,
// ordered by id. An empty ownerIDs returns no records without a query.
func (r *RecordRepository) ListByOwners(ctx context.Context, kind models.Kind, ownerIDs []string) ([]models.RawRecord, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if len(ownerIDs) == 0 {
		return []models.RawRecord{}, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY id",
		strings.Join(t.columns, ", "), t.name, t.owner, database.Placeholders(len(ownerIDs)))
	args := make([]interface{}, len(ownerIDs))
	for i, id := range ownerIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListAll returns every record of kind ordered by id
func (r *RecordRepository) ListAll(ctx context.Context, kind models.Kind) ([]models.RawRecord, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(t.columns, ", "), t.name)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetRecord returns one record, or nil, nil when it does not exist
func (r *RecordRepository) GetRecord(ctx context.Context, kind models.Kind, id string) (models.RawRecord, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(t.columns, ", "), t.name)
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// InsertRecord writes rec into kind's table. Only known columns present in
// rec are written so the table defaults apply to the rest. Timestamp
// columns given as RFC 3339 strings are parsed first.
func (r *RecordRepository) InsertRecord(ctx context.Context, kind models.Kind, rec models.RawRecord) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	if s, _ := rec["id"].(string); s == "" {
		return fmt.Errorf("failed to insert into %s: missing id", t.name)
	}

	var (
		columns []string
		args    []interface{}
	)
	for _, col := range t.columns {
		v, ok := rec[col]
		if !ok || v == nil {
			continue
		}
		if t.timestamps[col] {
			v = timestampArg(v)
		}
		columns = append(columns, col)
		args = append(args, v)
	}

	query := r.db.GetDialect().InsertIgnore(t.name, columns...)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}
	return nil
}

// UpdateStatus sets the status of one record and reports whether it existed
func (r *RecordRepository) UpdateStatus(ctx context.Context, kind models.Kind, id, status string) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("UPDATE %s SET status = ? WHERE id = ?", t.name)
	args := []interface{}{status, id}
	if t.updatedAt {
		query = fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE id = ?", t.name)
		args = []interface{}{status, time.Now().UTC(), id}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s status: %w", t.name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update %s status: %w", t.name, err)
	}
	return n > 0, nil
}

// scanRecords reads every row into a column name to value map. Byte slices
// are copied into strings since the driver reuses their backing arrays.
func scanRecords(rows *sql.Rows) ([]models.RawRecord, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	records := []models.RawRecord{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec := make(models.RawRecord, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				rec[col] = string(v)
			default:
				rec[col] = v
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

func timestampArg(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return v
}
