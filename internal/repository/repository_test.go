package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecircle/internal/database"
	"carecircle/internal/models"
	"carecircle/internal/normalize"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	db, err := database.Initialize(filepath.Join(t.TempDir(), "care.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), "../../migrations", nil))
	return db
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)

	created, err := repo.CreateUser(ctx, "manager@example.com", "hash", "Morgan")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	byEmail, err := repo.GetUserByEmail(ctx, "manager@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "Morgan", byEmail.Name)

	byID, err := repo.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "manager@example.com", byID.Email)

	missing, err := repo.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.CreateUser(ctx, "manager@example.com", "hash", "Dup")
	assert.Error(t, err, "email is unique")

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSeniorRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSeniorRepository(db)

	require.NoError(t, repo.CreateSenior(ctx, &models.Senior{ID: "s2", Name: "Walter"}))
	require.NoError(t, repo.CreateSenior(ctx, &models.Senior{ID: "s1", Name: "Rose", Phone: "555-0101"}))

	got, err := repo.GetSenior(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Rose", got.Name)
	assert.Equal(t, "555-0101", got.Phone)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := repo.GetSenior(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := repo.ListSeniors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Rose", all[0].Name)

	require.NoError(t, repo.RestoreSenior(ctx, models.Senior{ID: "s1", Name: "Overwritten"}))
	got, err = repo.GetSenior(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Rose", got.Name, "restore does not overwrite")
}

func TestAssignmentRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	seniors := NewSeniorRepository(db)
	repo := NewAssignmentRepository(db)

	user, err := users.CreateUser(ctx, "manager@example.com", "hash", "Morgan")
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, seniors.CreateSenior(ctx, &models.Senior{ID: id, Name: id}))
	}

	ids, err := repo.ListSeniorIDs(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)

	require.NoError(t, repo.Assign(ctx, user.ID, "a"))
	require.NoError(t, repo.Assign(ctx, user.ID, "b"))
	require.NoError(t, repo.Assign(ctx, user.ID, "a"))

	ids, err = repo.ListSeniorIDs(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	ok, err := repo.IsAssigned(ctx, user.ID, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := repo.Unassign(ctx, user.ID, "a")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Unassign(ctx, user.ID, "a")
	require.NoError(t, err)
	assert.False(t, removed)

	all, err := repo.ListAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].SeniorID)
}

func TestRecordRepositoryListByOwners(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)

	due := time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)
	require.NoError(t, repo.InsertRecord(ctx, models.KindTask, models.RawRecord{"id": "t1", "senior_id": "a", "title": "Walk", "due_date": due}))
	require.NoError(t, repo.InsertRecord(ctx, models.KindTask, models.RawRecord{"id": "t2", "senior_id": "b", "title": "Lunch", "status": "in_progress"}))
	require.NoError(t, repo.InsertRecord(ctx, models.KindTask, models.RawRecord{"id": "t3", "senior_id": "c", "title": "Other"}))
	require.NoError(t, repo.InsertRecord(ctx, models.KindReminder, models.RawRecord{"id": "r1", "user_id": "a", "title": "Take pills", "scheduled_time": "2026-05-01T08:00:00Z"}))

	tasks, err := repo.ListByOwners(ctx, models.KindTask, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0]["id"])
	assert.Equal(t, "pending", tasks[0]["status"], "table default applies")

	item := normalize.Normalize(models.KindTask, tasks[0])
	require.NotNil(t, item.ScheduledAt)
	assert.True(t, due.Equal(*item.ScheduledAt))
	require.NotNil(t, item.CreatedAt)

	reminders, err := repo.ListByOwners(ctx, models.KindReminder, []string{"a"})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	r := normalize.Normalize(models.KindReminder, reminders[0])
	assert.Equal(t, "a", r.SeniorID)
	assert.Equal(t, "Reminder: Take pills", r.Description)
	require.NotNil(t, r.ScheduledAt)

	none, err := repo.ListByOwners(ctx, models.KindTask, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.ListByOwners(ctx, models.Kind("bogus"), []string{"a"})
	assert.Error(t, err)
}

func TestRecordRepositoryAlertsWithoutStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)

	require.NoError(t, repo.InsertRecord(ctx, models.KindAlert, models.RawRecord{"id": "al1", "senior_id": "a", "message": "Fall detected"}))

	rec, err := repo.GetRecord(ctx, models.KindAlert, "al1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec["status"])

	ok, err := repo.UpdateStatus(ctx, models.KindAlert, "al1", models.StatusResolved)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err = repo.GetRecord(ctx, models.KindAlert, "al1")
	require.NoError(t, err)
	assert.Equal(t, "resolved", rec["status"])

	ok, err = repo.UpdateStatus(ctx, models.KindAlert, "missing", models.StatusResolved)
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := repo.GetRecord(ctx, models.KindAlert, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordRepositoryCheckInDefaults(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)

	require.NoError(t, repo.InsertRecord(ctx, models.KindCheckIn, models.RawRecord{"id": "c1", "senior_id": "a", "mood": "happy"}))
	require.NoError(t, repo.InsertRecord(ctx, models.KindHealthLog, models.RawRecord{"id": "h1", "senior_id": "a", "type": "heart_rate", "value": "72", "unit": "bpm"}))

	all, err := repo.ListAll(ctx, models.KindCheckIn)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "completed", all[0]["status"])

	logs, err := repo.ListByOwners(ctx, models.KindHealthLog, []string{"a"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "heart_rate: 72 bpm", normalize.Normalize(models.KindHealthLog, logs[0]).Description)

	assert.Error(t, repo.InsertRecord(ctx, models.KindCheckIn, models.RawRecord{"senior_id": "a"}), "id is required")
}

func TestOwnerColumn(t *testing.T) {
	col, err := OwnerColumn(models.KindRoutine)
	require.NoError(t, err)
	assert.Equal(t, "user_id", col)

	col, err = OwnerColumn(models.KindAlert)
	require.NoError(t, err)
	assert.Equal(t, "senior_id", col)

	_, err = OwnerColumn(models.Kind("nope"))
	assert.Error(t, err)
}
