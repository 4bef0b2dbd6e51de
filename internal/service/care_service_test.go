package service

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecircle/internal/database"
	"carecircle/internal/models"
	"carecircle/internal/repository"
	"carecircle/internal/security"
	"carecircle/internal/validation"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db, err := database.Initialize(filepath.Join(t.TempDir(), "care.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), "../../migrations", nil))
	return db
}

func TestAuthService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	auth := NewAuthService(repository.NewUserRepository(db), security.NewTokenIssuer("test-secret", time.Hour))

	user, err := auth.Register(ctx, " Morgan@Example.com ", "long enough", "Morgan")
	require.NoError(t, err)
	assert.Equal(t, "morgan@example.com", user.Email)

	_, err = auth.Register(ctx, "morgan@example.com", "long enough", "Morgan")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = auth.Register(ctx, "other@example.com", "short", "Other")
	var verr validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "morgan@example.com", "long enough", nil},
		{"case insensitive email", "MORGAN@example.com", "long enough", nil},
		{"wrong password", "morgan@example.com", "not it at all", ErrInvalidCredentials},
		{"unknown email", "nobody@example.com", "long enough", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, got, err := auth.Login(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)

			authed, err := auth.Authenticate(ctx, token.Value)
			require.NoError(t, err)
			assert.Equal(t, user.ID, authed.ID)
		})
	}

	_, err = auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, security.ErrInvalidToken)
}

func setupCare(t *testing.T) (*database.DB, *CareService, int64, *models.Senior) {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()
	user, err := repository.NewUserRepository(db).CreateUser(ctx, "m@example.com", "hash", "Morgan")
	require.NoError(t, err)

	care := NewCareService(db)
	senior, err := care.CreateSenior(ctx, "Rose Alvarez", "")
	require.NoError(t, err)
	require.NoError(t, care.Assign(ctx, user.ID, senior.ID))
	return db, care, user.ID, senior
}

func TestCareServiceTasks(t *testing.T) {
	db, care, userID, senior := setupCare(t)
	ctx := context.Background()
	records := repository.NewRecordRepository(db)

	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	item, err := care.CreateTask(ctx, userID, TaskInput{SeniorID: senior.ID, Title: " Call pharmacy ", DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, "Call pharmacy", item.Description)
	assert.Equal(t, models.StatusPending, item.Status)
	require.NotNil(t, item.ScheduledAt)
	assert.True(t, due.Equal(*item.ScheduledAt))

	stored, err := records.GetRecord(ctx, models.KindTask, item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, senior.ID, stored["senior_id"])

	require.NoError(t, care.SetTaskStatus(ctx, userID, item.ID, models.StatusCompleted))
	stored, err = records.GetRecord(ctx, models.KindTask, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored["status"])

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"unknown status", care.SetTaskStatus(ctx, userID, item.ID, "finished"), validation.Error{Field: "status", Message: `unknown task status "finished"`}},
		{"unknown task", care.SetTaskStatus(ctx, userID, "nope", models.StatusMissed), ErrRecordNotFound},
		{"other manager", care.SetTaskStatus(ctx, userID+1, item.ID, models.StatusMissed), ErrSeniorNotAssigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.wantErr)
		})
	}

	_, err = care.CreateTask(ctx, userID+1, TaskInput{SeniorID: senior.ID, Title: "Sneaky"})
	assert.ErrorIs(t, err, ErrSeniorNotAssigned)
	_, err = care.CreateTask(ctx, userID, TaskInput{SeniorID: senior.ID})
	assert.Error(t, err)

	all, err := records.ListAll(ctx, models.KindTask)
	require.NoError(t, err)
	assert.Len(t, all, 1, "rejected writes leave nothing behind")
}

func TestCareServiceAlertsAndAssignments(t *testing.T) {
	db, care, userID, senior := setupCare(t)
	ctx := context.Background()
	records := repository.NewRecordRepository(db)

	require.NoError(t, records.InsertRecord(ctx, models.KindAlert, models.RawRecord{"id": "al-1", "senior_id": senior.ID, "message": "Fall"}))
	require.NoError(t, care.ResolveAlert(ctx, userID, "al-1"))
	stored, err := records.GetRecord(ctx, models.KindAlert, "al-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, stored["status"])

	assert.ErrorIs(t, care.Assign(ctx, userID, "missing"), ErrSeniorNotFound)
	require.NoError(t, care.Assign(ctx, userID, senior.ID), "assigning twice is a no-op")

	require.NoError(t, care.Unassign(ctx, userID, senior.ID))
	assert.ErrorIs(t, care.Unassign(ctx, userID, senior.ID), ErrSeniorNotAssigned)
	assert.ErrorIs(t, care.ResolveAlert(ctx, userID, "al-1"), ErrSeniorNotAssigned)
}

func TestSeedAndBackupRoundTrip(t *testing.T) {
	src := setupTestDB(t)
	ctx := context.Background()

	seeded, err := NewSeedService(src, nil).Seed(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)
	seeded, err = NewSeedService(src, nil).Seed(ctx)
	require.NoError(t, err)
	assert.False(t, seeded, "seeding a populated database is skipped")

	var buf bytes.Buffer
	require.NoError(t, NewBackupService(src, nil).ExportToWriter(ctx, &buf))

	var backup BackupData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &backup))
	assert.Equal(t, "sqlite3", backup.DatabaseType)
	require.Len(t, backup.Users, 1)
	assert.NotEmpty(t, backup.Users[0].PasswordHash)
	assert.Len(t, backup.Seniors, 3)
	assert.Len(t, backup.Assignments, 3)
	assert.Len(t, backup.Records[models.KindTask], 4)

	dst := setupTestDB(t)
	restore := NewBackupService(dst, nil)
	require.NoError(t, restore.ImportFromReader(ctx, bytes.NewReader(buf.Bytes())))
	require.NoError(t, restore.ImportFromReader(ctx, bytes.NewReader(buf.Bytes())), "importing twice is harmless")

	auth := NewAuthService(repository.NewUserRepository(dst), security.NewTokenIssuer("", time.Hour))
	_, user, err := auth.Login(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err, "restored password hash still verifies")

	ids, err := repository.NewAssignmentRepository(dst).ListSeniorIDs(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	for _, kind := range models.AllKinds {
		want, err := repository.NewRecordRepository(src).ListAll(ctx, kind)
		require.NoError(t, err)
		got, err := repository.NewRecordRepository(dst).ListAll(ctx, kind)
		require.NoError(t, err)
		assert.Len(t, got, len(want), string(kind))
	}

	err = restore.ImportFromReader(ctx, bytes.NewReader([]byte(`{"version":"9"}`)))
	assert.ErrorContains(t, err, "unsupported backup version")

	require.NoError(t, restore.Clear(ctx))
	count, err := repository.NewUserRepository(dst).CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	require.NoError(t, restore.ImportFromReader(ctx, bytes.NewReader(buf.Bytes())), "restores into a cleared database")
}
