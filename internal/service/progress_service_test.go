package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
)

func openProgressTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:progress_service_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Class{},
		&models.Material{}, &models.Lesson{},
		&models.Assignment{}, &models.ChoiceOption{}, &models.TestCase{}, &models.Target{},
		&models.Submission{},
	))

	t.Cleanup(func() {
		db.Exec("DELETE FROM submissions")
		db.Exec("DELETE FROM targets")
		db.Exec("DELETE FROM test_cases")
		db.Exec("DELETE FROM choice_options")
		db.Exec("DELETE FROM assignments")
		db.Exec("DELETE FROM lessons")
		db.Exec("DELETE FROM materials")
		db.Exec("DELETE FROM users")
		db.Exec("DELETE FROM classes")
	})

	return db
}

func seedProgressFixtures(t *testing.T, db *gorm.DB) {
	t.Helper()

	classID := uint(1)
	require.NoError(t, db.Create(&models.Class{ID: classID, Name: "1-A"}).Error)
	require.NoError(t, db.Create(&models.User{ID: 1, Username: "alice", Role: models.RoleStudent, ClassID: &classID}).Error)
	require.NoError(t, db.Create(&models.User{ID: 2, Username: "bob", Role: models.RoleStudent, ClassID: &classID}).Error)
	require.NoError(t, db.Create(&models.User{ID: 3, Username: "tanaka", Role: models.RoleTeacher}).Error)

	require.NoError(t, db.Create(&models.Material{ID: 1, Title: "Algebra"}).Error)
	require.NoError(t, db.Create(&models.Lesson{ID: 1, MaterialID: 1, Title: "Linear equations"}).Error)

	assignments := []models.Assignment{
		{ID: 1, LessonID: 1, Title: "Warmup quiz", ProblemType: models.ProblemTypeChoice},
		{ID: 2, LessonID: 1, Title: "Solve for x", ProblemType: models.ProblemTypeCode},
		{ID: 3, LessonID: 1, Title: "Explain your method", ProblemType: models.ProblemTypeEssay},
	}
	for i := range assignments {
		require.NoError(t, db.Create(&assignments[i]).Error)
	}

	targets := []models.Target{
		{AssignmentID: 1, TargetType: models.TargetTypeAll},
		{AssignmentID: 2, TargetType: models.TargetTypeClass, TargetID: ptrUint(classID)},
		{AssignmentID: 3, TargetType: models.TargetTypeUser, TargetID: ptrUint(1)},
	}
	for i := range targets {
		require.NoError(t, db.Create(&targets[i]).Error)
	}

	now := time.Now()
	submissions := []models.Submission{
		{UserID: 1, AssignmentID: 1, ProblemType: models.ProblemTypeChoice, IsCorrect: ptrInt(1), SubmittedAt: now.Add(-2 * time.Hour)},
		// An early pass on assignment 2 superseded by a failing retry.
		{UserID: 1, AssignmentID: 2, ProblemType: models.ProblemTypeCode, IsCorrect: ptrInt(1), SubmittedAt: now.Add(-26 * time.Hour)},
		{UserID: 1, AssignmentID: 2, ProblemType: models.ProblemTypeCode, IsCorrect: ptrInt(0), SubmittedAt: now.Add(-1 * time.Hour)},
		{UserID: 1, AssignmentID: 3, ProblemType: models.ProblemTypeEssay, SubmittedAt: now.Add(-30 * time.Minute)},
	}
	for i := range submissions {
		require.NoError(t, db.Create(&submissions[i]).Error)
	}
}

func newProgressServiceForTest(t *testing.T, db *gorm.DB, redisClient *redis.Client) ProgressService {
	t.Helper()

	return NewProgressService(
		repository.NewTargetRepository(db),
		repository.NewSubmissionRepository(db),
		repository.NewUserRepository(db),
		repository.NewClassRepository(db),
		repository.NewCatalogRepository(db),
		redisClient,
		time.Minute,
		testLogger(),
	)
}

func TestProgressForUserBucketsAndCaching(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db := openProgressTestDB(t)
	seedProgressFixtures(t, db)

	svc := newProgressServiceForTest(t, db, redisClient)

	ctx := context.Background()
	first, err := svc.ForUser(ctx, 1)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	require.Equal(t, 3, first.TotalAssignments)
	require.Equal(t, 1, first.Correct)
	// The latest attempt on assignment 2 failed, the earlier pass no
	// longer counts.
	require.Equal(t, 1, first.Incorrect)
	require.Equal(t, 1, first.Pending)
	require.Equal(t, 0, first.Unsubmitted)
	require.Equal(t, first.TotalAssignments, first.Correct+first.Incorrect+first.Pending+first.Unsubmitted)

	require.Len(t, first.LessonProgress, 1)
	require.Equal(t, 3, first.LessonProgress[0].Total)
	require.Equal(t, 1, first.LessonProgress[0].Completed)
	require.Len(t, first.MaterialProgress, 1)
	require.Equal(t, "Algebra", first.MaterialProgress[0].Title)

	totalActivity := 0
	for _, day := range first.DailyCounts {
		totalActivity += day.Count
	}
	require.Equal(t, 4, totalActivity)

	second, err := svc.ForUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.TotalAssignments, second.TotalAssignments)
}

func TestProgressForUserUnknown(t *testing.T) {
	db := openProgressTestDB(t)

	svc := newProgressServiceForTest(t, db, nil)

	_, err := svc.ForUser(context.Background(), 999)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestProgressForClassSumsMembers(t *testing.T) {
	db := openProgressTestDB(t)
	seedProgressFixtures(t, db)

	svc := newProgressServiceForTest(t, db, nil)

	snapshot, err := svc.ForClass(context.Background(), 1)
	require.NoError(t, err)

	// Alice sees all three assignments, Bob only the all and class
	// targeted ones.
	require.Equal(t, 5, snapshot.TotalAssignments)
	require.Equal(t, 1, snapshot.Correct)
	require.Equal(t, 1, snapshot.Incorrect)
	require.Equal(t, 1, snapshot.Pending)
	require.Equal(t, 2, snapshot.Unsubmitted)
	require.Equal(t, snapshot.TotalAssignments, snapshot.Correct+snapshot.Incorrect+snapshot.Pending+snapshot.Unsubmitted)
}

func TestProgressForSystemCoversEveryStudent(t *testing.T) {
	db := openProgressTestDB(t)
	seedProgressFixtures(t, db)

	svc := newProgressServiceForTest(t, db, nil)

	snapshot, err := svc.ForSystem(context.Background())
	require.NoError(t, err)

	// Only alice and bob count; tanaka is staff.
	require.Equal(t, 5, snapshot.TotalAssignments)
	require.Equal(t, 1, snapshot.Correct)
	require.Equal(t, 1, snapshot.Incorrect)
	require.Equal(t, 1, snapshot.Pending)
	require.Equal(t, 2, snapshot.Unsubmitted)
	require.Equal(t, snapshot.TotalAssignments, snapshot.Correct+snapshot.Incorrect+snapshot.Pending+snapshot.Unsubmitted)
}

func TestResolveAssignmentsSkipsStaff(t *testing.T) {
	db := openProgressTestDB(t)
	seedProgressFixtures(t, db)

	repo := repository.NewTargetRepository(db)

	visible, err := repo.ResolveAssignments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, visible, 3)

	// The all-type rule on assignment 1 reaches students only.
	visible, err = repo.ResolveAssignments(context.Background(), 3)
	require.NoError(t, err)
	require.Empty(t, visible)
}

func TestProgressForClassUnknown(t *testing.T) {
	db := openProgressTestDB(t)

	svc := newProgressServiceForTest(t, db, nil)

	_, err := svc.ForClass(context.Background(), 999)
	require.ErrorIs(t, err, ErrClassNotFound)
}

func TestProgressClassRollups(t *testing.T) {
	db := openProgressTestDB(t)
	seedProgressFixtures(t, db)

	svc := newProgressServiceForTest(t, db, nil)

	rollups, err := svc.ClassRollups(context.Background())
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	require.Equal(t, "1-A", rollups[0].Name)
	require.Equal(t, 2, rollups[0].Members)
	require.Equal(t, 4, rollups[0].Submissions)
	require.Equal(t, 2, rollups[0].Correct)
	require.InDelta(t, 0.5, rollups[0].Accuracy, 1e-9)
}

func TestProgressUserAccuracyLeaderboard(t *testing.T) {
	db := openProgressTestDB(t)
	seedProgressFixtures(t, db)

	svc := newProgressServiceForTest(t, db, nil)

	rows, err := svc.UserAccuracy(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "alice", rows[0].Username)
	require.Equal(t, 4, rows[0].Submissions)
	require.InDelta(t, 0.5, rows[0].Accuracy, 1e-9)
	require.Equal(t, "bob", rows[1].Username)
	require.Equal(t, 0, rows[1].Submissions)
}
