package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carecircle/internal/database"
	"carecircle/internal/models"
	"carecircle/internal/normalize"
	"carecircle/internal/repository"
	"carecircle/internal/security"
	"carecircle/internal/validation"
)

var (
	ErrSeniorNotFound = errors.New("senior not found")
	ErrRecordNotFound = errors.New("record not found")
)

// TaskInput is what a care manager submits to create a task
type TaskInput struct {
	SeniorID    string     `json:"senior_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
}

// CareService writes care records on behalf of a care manager. Every write
// checks that the senior it touches is assigned to that manager. Dashboards
// pick the changes up through their live feeds.
type CareService struct {
	db          *database.DB
	seniors     *repository.SeniorRepository
	assignments *repository.AssignmentRepository
	records     *repository.RecordRepository
}

// NewCareService creates a new care service
func NewCareService(db *database.DB) *CareService {
	return &CareService{
		db:          db,
		seniors:     repository.NewSeniorRepository(db),
		assignments: repository.NewAssignmentRepository(db),
		records:     repository.NewRecordRepository(db),
	}
}

// CreateSenior adds a senior profile
func (s *CareService) CreateSenior(ctx context.Context, name, phone string) (*models.Senior, error) {
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	senior := &models.Senior{ID: security.NewID(), Name: strings.TrimSpace(name), Phone: strings.TrimSpace(phone)}
	if err := s.seniors.CreateSenior(ctx, senior); err != nil {
		return nil, err
	}
	return senior, nil
}

// Assign puts seniorID under userID's care. Assigning twice is a no-op.
func (s *CareService) Assign(ctx context.Context, userID int64, seniorID string) error {
	if err := validation.ValidateID("senior_id", seniorID); err != nil {
		return err
	}
	senior, err := s.seniors.GetSenior(ctx, seniorID)
	if err != nil {
		return fmt.Errorf("failed to get senior: %w", err)
	}
	if senior == nil {
		return ErrSeniorNotFound
	}
	return s.assignments.Assign(ctx, userID, seniorID)
}

// Unassign removes seniorID from userID's care
func (s *CareService) Unassign(ctx context.Context, userID int64, seniorID string) error {
	removed, err := s.assignments.Unassign(ctx, userID, seniorID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrSeniorNotAssigned
	}
	return nil
}

// CreateTask adds a pending task for an assigned senior and returns it in
// normalized form
func (s *CareService) CreateTask(ctx context.Context, userID int64, in TaskInput) (models.Item, error) {
	if err := validation.ValidateID("senior_id", in.SeniorID); err != nil {
		return models.Item{}, err
	}
	if err := validation.ValidateTitle(in.Title); err != nil {
		return models.Item{}, err
	}

	now := time.Now().UTC()
	rec := models.RawRecord{
		"id":          security.NewID(),
		"senior_id":   in.SeniorID,
		"title":       strings.TrimSpace(in.Title),
		"description": strings.TrimSpace(in.Description),
		"status":      models.StatusPending,
		"created_at":  now,
		"updated_at":  now,
	}
	if in.DueDate != nil {
		rec["due_date"] = in.DueDate.UTC()
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := checkAssigned(ctx, repository.NewAssignmentRepository(tx), userID, in.SeniorID); err != nil {
			return err
		}
		return repository.NewRecordRepository(tx).InsertRecord(ctx, models.KindTask, rec)
	})
	if err != nil {
		return models.Item{}, err
	}
	return normalize.Normalize(models.KindTask, rec), nil
}

// SetTaskStatus moves a task to a new status
func (s *CareService) SetTaskStatus(ctx context.Context, userID int64, taskID, status string) error {
	if err := validation.ValidateTaskStatus(status); err != nil {
		return err
	}
	return s.updateStatus(ctx, userID, models.KindTask, taskID, status)
}

// ResolveAlert marks an alert as handled
func (s *CareService) ResolveAlert(ctx context.Context, userID int64, alertID string) error {
	return s.updateStatus(ctx, userID, models.KindAlert, alertID, models.StatusResolved)
}

func (s *CareService) updateStatus(ctx context.Context, userID int64, kind models.Kind, id, status string) error {
	if err := validation.ValidateID("id", id); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		records := repository.NewRecordRepository(tx)
		rec, err := records.GetRecord(ctx, kind, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrRecordNotFound
		}
		owner := normalize.Normalize(kind, rec).SeniorID
		if err := checkAssigned(ctx, repository.NewAssignmentRepository(tx), userID, owner); err != nil {
			return err
		}
		if _, err := records.UpdateStatus(ctx, kind, id, status); err != nil {
			return err
		}
		return nil
	})
}

func checkAssigned(ctx context.Context, assignments *repository.AssignmentRepository, userID int64, seniorID string) error {
	ok, err := assignments.IsAssigned(ctx, userID, seniorID)
	if err != nil {
		return fmt.Errorf("failed to check assignment: %w", err)
	}
	if !ok {
		return ErrSeniorNotAssigned
	}
	return nil
}
