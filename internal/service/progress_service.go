package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/observability"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
)

const dailyWindowDays = 30

// ProgressService aggregates submission state into snapshots. Snapshots
// are cached briefly in Redis; everything underneath is computed live
// so class membership changes show up on the next cache expiry at the
// latest.
type ProgressService interface {
	// ForSystem aggregates across every student currently enrolled.
	ForSystem(ctx context.Context) (dto.ProgressSnapshot, error)
	ForUser(ctx context.Context, userID uint) (dto.ProgressSnapshot, error)
	ForClass(ctx context.Context, classID uint) (dto.ProgressSnapshot, error)
	ClassRollups(ctx context.Context) ([]dto.ClassRollupResponse, error)
	UserAccuracy(ctx context.Context, classID *uint) ([]dto.UserAccuracyResponse, error)
}

type progressService struct {
	targets     repository.TargetRepository
	submissions repository.SubmissionRepository
	users       repository.UserRepository
	classes     repository.ClassRepository
	catalog     repository.CatalogRepository
	redis       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewProgressService constructs a ProgressService instance. The Redis
// client may be nil, which disables caching.
func NewProgressService(targetRepo repository.TargetRepository, submissionRepo repository.SubmissionRepository, userRepo repository.UserRepository, classRepo repository.ClassRepository, catalogRepo repository.CatalogRepository, redisClient *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) ProgressService {
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &progressService{
		targets:     targetRepo,
		submissions: submissionRepo,
		users:       userRepo,
		classes:     classRepo,
		catalog:     catalogRepo,
		redis:       redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger.With().Str("component", "progress_service").Logger(),
		tracer:      otel.Tracer("github.com/mizuki-lab/shukudai-api/internal/service/progress"),
		now:         time.Now,
	}
}

func (s *progressService) ForSystem(ctx context.Context) (dto.ProgressSnapshot, error) {
	spanCtx, span := s.tracer.Start(ctx, "progress.for_system")
	defer span.End()

	key := "shukudai:progress:system"
	if snapshot, ok := s.fromCache(spanCtx, key); ok {
		return snapshot, nil
	}

	studentRole := models.RoleStudent
	students, err := s.users.List(spanCtx, repository.UserFilter{Role: &studentRole})
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}

	studentIDs := make([]uint, 0, len(students))
	for _, student := range students {
		studentIDs = append(studentIDs, student.ID)
	}

	snapshot, err := s.computeForUsers(spanCtx, studentIDs)
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}

	s.toCache(spanCtx, key, snapshot)

	return snapshot, nil
}

func (s *progressService) ForUser(ctx context.Context, userID uint) (dto.ProgressSnapshot, error) {
	spanCtx, span := s.tracer.Start(ctx, "progress.for_user", trace.WithAttributes(
		attribute.Int("user.id", int(userID)),
	))
	defer span.End()

	key := fmt.Sprintf("shukudai:progress:user:%d", userID)
	if snapshot, ok := s.fromCache(spanCtx, key); ok {
		return snapshot, nil
	}

	if _, err := s.users.GetByID(spanCtx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProgressSnapshot{}, ErrUserNotFound
		}
		return dto.ProgressSnapshot{}, err
	}

	snapshot, err := s.computeForUsers(spanCtx, []uint{userID})
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}

	s.toCache(spanCtx, key, snapshot)

	return snapshot, nil
}

func (s *progressService) ForClass(ctx context.Context, classID uint) (dto.ProgressSnapshot, error) {
	spanCtx, span := s.tracer.Start(ctx, "progress.for_class", trace.WithAttributes(
		attribute.Int("class.id", int(classID)),
	))
	defer span.End()

	key := fmt.Sprintf("shukudai:progress:class:%d", classID)
	if snapshot, ok := s.fromCache(spanCtx, key); ok {
		return snapshot, nil
	}

	if _, err := s.classes.GetByID(spanCtx, classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProgressSnapshot{}, ErrClassNotFound
		}
		return dto.ProgressSnapshot{}, err
	}

	studentRole := models.RoleStudent
	members, err := s.users.List(spanCtx, repository.UserFilter{Role: &studentRole, ClassID: &classID})
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}

	memberIDs := make([]uint, 0, len(members))
	for _, member := range members {
		memberIDs = append(memberIDs, member.ID)
	}

	snapshot, err := s.computeForUsers(spanCtx, memberIDs)
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}

	s.toCache(spanCtx, key, snapshot)

	return snapshot, nil
}

// computeForUsers builds one snapshot across the given users. Each
// user's buckets come from their latest submission per visible
// assignment, so the four buckets always add up to the combined number
// of visible assignments.
func (s *progressService) computeForUsers(ctx context.Context, userIDs []uint) (dto.ProgressSnapshot, error) {
	snapshot := dto.ProgressSnapshot{
		DailyCounts:      []dto.DailyCount{},
		MaterialProgress: []dto.UnitProgress{},
		LessonProgress:   []dto.UnitProgress{},
	}

	if len(userIDs) == 0 {
		return snapshot, nil
	}

	submissions, err := s.submissions.ListForUsers(ctx, userIDs)
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}

	// Rows arrive newest first, so the first row per user and
	// assignment is the latest attempt.
	type attempt struct {
		userID       uint
		assignmentID uint
	}
	latest := make(map[attempt]models.Submission)
	for _, submission := range submissions {
		key := attempt{submission.UserID, submission.AssignmentID}
		if _, seen := latest[key]; !seen {
			latest[key] = submission
		}
	}

	lessonTotals := make(map[uint]*dto.UnitProgress)
	materialTotals := make(map[uint]*dto.UnitProgress)

	lessons, err := s.catalog.ListLessons(ctx)
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}
	lessonByID := make(map[uint]models.Lesson, len(lessons))
	for _, lesson := range lessons {
		lessonByID[lesson.ID] = lesson
	}

	materials, err := s.catalog.ListMaterials(ctx)
	if err != nil {
		return dto.ProgressSnapshot{}, err
	}
	materialByID := make(map[uint]models.Material, len(materials))
	for _, material := range materials {
		materialByID[material.ID] = material
	}

	for _, userID := range userIDs {
		visible, err := s.targets.ResolveAssignments(ctx, userID)
		if err != nil {
			return dto.ProgressSnapshot{}, err
		}

		snapshot.TotalAssignments += len(visible)

		for _, assignment := range visible {
			lesson, hasLesson := lessonByID[assignment.LessonID]

			var lessonUnit, materialUnit *dto.UnitProgress
			if hasLesson {
				lessonUnit = unitFor(lessonTotals, lesson.ID, lesson.Title)
				if material, ok := materialByID[lesson.MaterialID]; ok {
					materialUnit = unitFor(materialTotals, material.ID, material.Title)
				}
			}
			if lessonUnit != nil {
				lessonUnit.Total++
			}
			if materialUnit != nil {
				materialUnit.Total++
			}

			submission, attempted := latest[attempt{userID, assignment.ID}]
			if !attempted {
				snapshot.Unsubmitted++
				continue
			}

			switch submission.Verdict() {
			case models.VerdictCorrect:
				snapshot.Correct++
				if lessonUnit != nil {
					lessonUnit.Completed++
				}
				if materialUnit != nil {
					materialUnit.Completed++
				}
			case models.VerdictIncorrect:
				snapshot.Incorrect++
			default:
				snapshot.Pending++
			}
		}
	}

	snapshot.DailyCounts = buildDailyCounts(submissions, s.now())
	snapshot.LessonProgress = flattenUnits(lessonTotals)
	snapshot.MaterialProgress = flattenUnits(materialTotals)

	return snapshot, nil
}

func unitFor(units map[uint]*dto.UnitProgress, id uint, title string) *dto.UnitProgress {
	if unit, ok := units[id]; ok {
		return unit
	}
	unit := &dto.UnitProgress{ID: id, Title: title}
	units[id] = unit
	return unit
}

func flattenUnits(units map[uint]*dto.UnitProgress) []dto.UnitProgress {
	out := make([]dto.UnitProgress, 0, len(units))
	for _, unit := range units {
		out = append(out, *unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// buildDailyCounts buckets every submission of the window by its
// server-local calendar date, oldest first. Dates with no activity are
// omitted.
func buildDailyCounts(submissions []models.Submission, now time.Time) []dto.DailyCount {
	cutoff := now.AddDate(0, 0, -dailyWindowDays)
	buckets := make(map[string]*dto.DailyCount)

	for _, submission := range submissions {
		local := submission.SubmittedAt.Local()
		if local.Before(cutoff) {
			continue
		}

		date := local.Format("2006-01-02")
		bucket, ok := buckets[date]
		if !ok {
			bucket = &dto.DailyCount{Date: date}
			buckets[date] = bucket
		}

		bucket.Count++
		switch submission.Verdict() {
		case models.VerdictCorrect:
			bucket.Correct++
		case models.VerdictIncorrect:
			bucket.Incorrect++
		default:
			bucket.Pending++
		}
	}

	out := make([]dto.DailyCount, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (s *progressService) ClassRollups(ctx context.Context) ([]dto.ClassRollupResponse, error) {
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, err
	}

	rollups := make([]dto.ClassRollupResponse, 0, len(classes))
	for _, class := range classes {
		classID := class.ID
		rows, err := s.submissions.AccuracyByUser(ctx, &classID)
		if err != nil {
			return nil, err
		}

		rollup := dto.ClassRollupResponse{ClassID: class.ID, Name: class.Name, Members: len(rows)}
		for _, row := range rows {
			rollup.Submissions += row.Submissions
			rollup.Correct += row.Correct
		}
		if rollup.Submissions > 0 {
			rollup.Accuracy = float64(rollup.Correct) / float64(rollup.Submissions)
		}

		rollups = append(rollups, rollup)
	}

	return rollups, nil
}

func (s *progressService) UserAccuracy(ctx context.Context, classID *uint) ([]dto.UserAccuracyResponse, error) {
	rows, err := s.submissions.AccuracyByUser(ctx, classID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.UserAccuracyResponse, 0, len(rows))
	for _, row := range rows {
		response := dto.UserAccuracyResponse{
			UserID:      row.UserID,
			Username:    row.Username,
			Submissions: row.Submissions,
			Correct:     row.Correct,
		}
		if row.Submissions > 0 {
			response.Accuracy = float64(row.Correct) / float64(row.Submissions)
		}
		responses = append(responses, response)
	}

	// Leaderboard order: accuracy first, volume breaks ties.
	sort.SliceStable(responses, func(i, j int) bool {
		if responses[i].Accuracy != responses[j].Accuracy {
			return responses[i].Accuracy > responses[j].Accuracy
		}
		return responses[i].Submissions > responses[j].Submissions
	})

	return responses, nil
}

func (s *progressService) fromCache(ctx context.Context, key string) (dto.ProgressSnapshot, bool) {
	if s.redis == nil {
		observability.ProgressCache().WithLabelValues("bypass").Inc()
		return dto.ProgressSnapshot{}, false
	}

	payload, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("progress cache read failed")
		}
		observability.ProgressCache().WithLabelValues("miss").Inc()
		return dto.ProgressSnapshot{}, false
	}

	var snapshot dto.ProgressSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("progress cache entry corrupt")
		observability.ProgressCache().WithLabelValues("miss").Inc()
		return dto.ProgressSnapshot{}, false
	}

	observability.ProgressCache().WithLabelValues("hit").Inc()
	snapshot.CacheHit = true

	return snapshot, true
}

func (s *progressService) toCache(ctx context.Context, key string, snapshot dto.ProgressSnapshot) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("progress cache write failed")
	}
}
