package repository

import (
	"context"
	"fmt"
	"time"

	"carecircle/internal/database"
	"carecircle/internal/models"
)

// AssignmentRepository links care managers to the seniors they look after
type AssignmentRepository struct {
	db database.DBTX
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db database.DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Assign links a senior to a care manager. Assigning twice is a no-op.
func (r *AssignmentRepository) Assign(ctx context.Context, careManagerID int64, seniorID string) error {
	query := r.db.GetDialect().InsertIgnore("assignments", "care_manager_id", "senior_id", "assigned_at")
	if _, err := r.db.ExecContext(ctx, query, careManagerID, seniorID, time.Now()); err != nil {
		return fmt.Errorf("failed to assign senior: %w", err)
	}
	return nil
}

// Restore re-creates an exported assignment
func (r *AssignmentRepository) Restore(ctx context.Context, a models.Assignment) error {
	query := r.db.GetDialect().InsertIgnore("assignments", "care_manager_id", "senior_id", "assigned_at")
	if _, err := r.db.ExecContext(ctx, query, a.CareManagerID, a.SeniorID, a.AssignedAt); err != nil {
		return fmt.Errorf("failed to restore assignment: %w", err)
	}
	return nil
}

// Unassign removes the link and reports whether one existed
func (r *AssignmentRepository) Unassign(ctx context.Context, careManagerID int64, seniorID string) (bool, error) {
	query := "DELETE FROM assignments WHERE care_manager_id = ? AND senior_id = ?"
	result, err := r.db.ExecContext(ctx, query, careManagerID, seniorID)
	if err != nil {
		return false, fmt.Errorf("failed to unassign senior: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to unassign senior: %w", err)
	}
	return n > 0, nil
}

// ListSeniorIDs returns the ids of the seniors assigned to a care manager,
// oldest assignment first.
func (r *AssignmentRepository) ListSeniorIDs(ctx context.Context, careManagerID int64) ([]string, error) {
	query := `
		SELECT senior_id
		FROM assignments
		WHERE care_manager_id = ?
		ORDER BY assigned_at ASC, senior_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, careManagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// IsAssigned checks whether a senior is assigned to a care manager
func (r *AssignmentRepository) IsAssigned(ctx context.Context, careManagerID int64, seniorID string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM assignments WHERE care_manager_id = ? AND senior_id = ?"
	if err := r.db.QueryRowContext(ctx, query, careManagerID, seniorID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return count > 0, nil
}

// ListAssignments returns every assignment
func (r *AssignmentRepository) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	query := `
		SELECT care_manager_id, senior_id, assigned_at
		FROM assignments
		ORDER BY care_manager_id ASC, assigned_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.CareManagerID, &a.SeniorID, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}
