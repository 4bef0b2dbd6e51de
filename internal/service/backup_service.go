package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"carecircle/internal/database"
	"carecircle/internal/models"
	"carecircle/internal/repository"
)

const backupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version      string                             `json:"version"`
	ExportedAt   time.Time                          `json:"exported_at"`
	DatabaseType string                             `json:"database_type"`
	Users        []models.User                      `json:"users"`
	Seniors      []models.Senior                    `json:"seniors"`
	Assignments  []models.Assignment                `json:"assignments"`
	Records      map[models.Kind][]models.RawRecord `json:"records"`
}

// BackupService handles database backup and restore operations. Backups
// are dialect-neutral JSON, so a SQLite export imports into PostgreSQL or
// MySQL.
type BackupService struct {
	db     *database.DB
	logger *zap.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, logger *zap.Logger) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{db: db, logger: logger}
}

// Export creates a complete backup of the database to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}
	s.logger.Info("database exported", zap.String("path", outputPath))
	return nil
}

// ExportToWriter writes a complete backup as indented JSON
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	backup, err := s.collect(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

func (s *BackupService) collect(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:      backupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.Dialect.DriverName(),
		Records:      make(map[models.Kind][]models.RawRecord),
	}

	users, err := repository.NewUserRepository(s.db).ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	backup.Users = users

	if backup.Seniors, err = repository.NewSeniorRepository(s.db).ListSeniors(ctx); err != nil {
		return nil, fmt.Errorf("failed to export seniors: %w", err)
	}
	if backup.Assignments, err = repository.NewAssignmentRepository(s.db).ListAssignments(ctx); err != nil {
		return nil, fmt.Errorf("failed to export assignments: %w", err)
	}

	records := repository.NewRecordRepository(s.db)
	for _, kind := range models.AllKinds {
		recs, err := records.ListAll(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to export %s records: %w", kind, err)
		}
		backup.Records[kind] = recs
	}

	s.logger.Info("collected backup",
		zap.Int("users", len(backup.Users)),
		zap.Int("seniors", len(backup.Seniors)),
		zap.Int("assignments", len(backup.Assignments)))
	return backup, nil
}

// Import restores a database from a backup file
func (s *BackupService) Import(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores a backup in one transaction. Rows whose key
// already exists are left untouched, so importing twice is harmless.
func (s *BackupService) ImportFromReader(ctx context.Context, r io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != backupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		users := repository.NewUserRepository(tx)
		for _, u := range backup.Users {
			if err := users.RestoreUser(ctx, u); err != nil {
				return err
			}
		}

		seniors := repository.NewSeniorRepository(tx)
		for _, senior := range backup.Seniors {
			if err := seniors.RestoreSenior(ctx, senior); err != nil {
				return err
			}
		}

		assignments := repository.NewAssignmentRepository(tx)
		for _, a := range backup.Assignments {
			if err := assignments.Restore(ctx, a); err != nil {
				return err
			}
		}

		records := repository.NewRecordRepository(tx)
		for _, kind := range models.AllKinds {
			for _, rec := range backup.Records[kind] {
				if err := records.InsertRecord(ctx, kind, rec); err != nil {
					return err
				}
			}
		}

		if query := tx.GetDialect().SyncSequenceQuery("users"); query != "" {
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("failed to sync users sequence: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to import backup: %w", err)
	}

	s.logger.Info("database imported",
		zap.Int("users", len(backup.Users)),
		zap.Int("seniors", len(backup.Seniors)),
		zap.Int("assignments", len(backup.Assignments)))
	return nil
}

// clearOrder lists tables children first
var clearOrder = []string{
	"health_logs",
	"check_ins",
	"alerts",
	"routines",
	"reminders",
	"tasks",
	"assignments",
	"seniors",
	"users",
}

// Clear deletes every row in one transaction
func (s *BackupService) Clear(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, table := range clearOrder {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear table %s: %w", table, err)
			}
			s.logger.Info("cleared table", zap.String("table", table))
		}
		return nil
	})
}
