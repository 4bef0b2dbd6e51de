package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carecircle/internal/database"
	"carecircle/internal/models"
)

// SeniorRepository handles database operations for senior profiles
type SeniorRepository struct {
	db database.DBTX
}

// NewSeniorRepository creates a new senior repository
func NewSeniorRepository(db database.DBTX) *SeniorRepository {
	return &SeniorRepository{db: db}
}

// CreateSenior inserts a senior profile. A zero CreatedAt is set to now.
func (r *SeniorRepository) CreateSenior(ctx context.Context, senior *models.Senior) error {
	if senior.CreatedAt.IsZero() {
		senior.CreatedAt = time.Now()
	}
	query := "INSERT INTO seniors (id, name, phone, created_at) VALUES (?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, senior.ID, senior.Name, senior.Phone, senior.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create senior: %w", err)
	}
	return nil
}

// RestoreSenior inserts a senior unless its id already exists
func (r *SeniorRepository) RestoreSenior(ctx context.Context, senior models.Senior) error {
	query := r.db.GetDialect().InsertIgnore("seniors", "id", "name", "phone", "created_at")
	if _, err := r.db.ExecContext(ctx, query, senior.ID, senior.Name, senior.Phone, senior.CreatedAt); err != nil {
		return fmt.Errorf("failed to restore senior: %w", err)
	}
	return nil
}

// GetSenior retrieves a senior by ID. It returns nil, nil when none exists.
func (r *SeniorRepository) GetSenior(ctx context.Context, id string) (*models.Senior, error) {
	query := "SELECT id, name, phone, created_at FROM seniors WHERE id = ?"
	senior := &models.Senior{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&senior.ID,
		&senior.Name,
		&senior.Phone,
		&senior.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get senior: %w", err)
	}

	return senior, nil
}

// ListSeniors retrieves every senior ordered by name
func (r *SeniorRepository) ListSeniors(ctx context.Context) ([]models.Senior, error) {
	query := `
		SELECT id, name, phone, created_at
		FROM seniors
		ORDER BY name ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query seniors: %w", err)
	}
	defer rows.Close()

	var seniors []models.Senior
	for rows.Next() {
		var senior models.Senior
		if err := rows.Scan(&senior.ID, &senior.Name, &senior.Phone, &senior.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan senior: %w", err)
		}
		seniors = append(seniors, senior)
	}

	return seniors, rows.Err()
}
