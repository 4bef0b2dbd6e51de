package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carecircle/internal/database"
	"carecircle/internal/models"
	"carecircle/internal/repository"
	"carecircle/internal/security"
)

// Demo account created by Seed
const (
	DemoEmail    = "manager@example.com"
	DemoPassword = "carecircle"
)

// SeedService fills an empty database with demo data
type SeedService struct {
	db     *database.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSeedService creates a new seed service
func NewSeedService(db *database.DB, logger *zap.Logger) *SeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedService{db: db, logger: logger, now: time.Now}
}

// Seed creates a demo care manager with three seniors and a day of care
// records. It does nothing and returns false if any user exists.
func (s *SeedService) Seed(ctx context.Context) (bool, error) {
	count, err := repository.NewUserRepository(s.db).CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		s.logger.Info("database already populated, skipping seed", zap.Int("users", count))
		return false, nil
	}

	hash, err := security.HashPassword(DemoPassword)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC().Truncate(time.Minute)
	at := func(d time.Duration) time.Time { return now.Add(d) }

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		user, err := repository.NewUserRepository(tx).CreateUser(ctx, DemoEmail, hash, "Morgan Reyes")
		if err != nil {
			return err
		}

		seniors := repository.NewSeniorRepository(tx)
		assignments := repository.NewAssignmentRepository(tx)
		ids := make([]string, 0, 3)
		for _, name := range []string{"Rose Alvarez", "Walter Chen", "Edith Okafor"} {
			senior := &models.Senior{ID: security.NewID(), Name: name, CreatedAt: at(-30 * 24 * time.Hour)}
			if err := seniors.CreateSenior(ctx, senior); err != nil {
				return err
			}
			if err := assignments.Assign(ctx, user.ID, senior.ID); err != nil {
				return err
			}
			ids = append(ids, senior.ID)
		}
		rose, walter, edith := ids[0], ids[1], ids[2]

		records := map[models.Kind][]models.RawRecord{
			models.KindTask: {
				{"senior_id": rose, "title": "Pick up prescription", "status": models.StatusCompleted, "created_at": at(-5 * time.Hour), "due_date": at(-2 * time.Hour)},
				{"senior_id": rose, "title": "Book eye appointment", "status": models.StatusPending, "created_at": at(-3 * time.Hour), "due_date": at(26 * time.Hour)},
				{"senior_id": walter, "title": "Grocery delivery", "status": models.StatusInProgress, "created_at": at(-90 * time.Minute), "due_date": at(3 * time.Hour)},
				{"senior_id": edith, "title": "Physiotherapy session", "status": models.StatusMissed, "created_at": at(-26 * time.Hour), "due_date": at(-20 * time.Hour)},
			},
			models.KindReminder: {
				{"user_id": rose, "title": "Blood pressure tablet", "status": models.StatusPending, "created_at": at(-6 * time.Hour), "scheduled_time": at(2 * time.Hour)},
				{"user_id": walter, "title": "Drink water", "description": "At least one glass", "status": models.StatusCompleted, "created_at": at(-4 * time.Hour), "scheduled_time": at(-1 * time.Hour)},
			},
			models.KindRoutine: {
				{"user_id": edith, "name": "Morning walk", "status": models.StatusCompleted, "created_at": at(-7 * time.Hour), "time": at(-6 * time.Hour)},
				{"user_id": walter, "name": "Evening stretches", "status": models.StatusPending, "created_at": at(-7 * time.Hour), "time": at(5 * time.Hour)},
			},
			models.KindAlert: {
				{"senior_id": walter, "type": "fall", "message": "Possible fall detected in the kitchen", "created_at": at(-20 * time.Minute)},
				{"senior_id": rose, "type": "missed_medication", "message": "Missed evening medication", "status": models.StatusResolved, "created_at": at(-28 * time.Hour)},
			},
			models.KindCheckIn: {
				{"senior_id": rose, "mood": "cheerful", "notes": "Enjoyed the garden", "created_at": at(-45 * time.Minute)},
				{"senior_id": edith, "mood": "tired", "created_at": at(-8 * time.Hour)},
			},
			models.KindHealthLog: {
				{"senior_id": walter, "type": "heart_rate", "value": "72", "unit": "bpm", "logged_at": at(-2 * time.Hour)},
				{"senior_id": edith, "type": "blood_pressure", "value": "128/82", "unit": "mmHg", "logged_at": at(-9 * time.Hour)},
			},
		}

		repo := repository.NewRecordRepository(tx)
		for _, kind := range models.AllKinds {
			for _, rec := range records[kind] {
				rec["id"] = security.NewID()
				if err := repo.InsertRecord(ctx, kind, rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to seed database: %w", err)
	}

	s.logger.Info("seeded demo data", zap.String("email", DemoEmail))
	return true, nil
}
