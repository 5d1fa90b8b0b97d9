package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// SubmissionFilter narrows submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	UserID       *uint
}

// UserAccuracyRow is the raw aggregate for per-user accuracy listings.
type UserAccuracyRow struct {
	UserID      uint
	Username    string
	Submissions int
	Correct     int
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	ListForUsers(ctx context.Context, userIDs []uint) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	LatestByUserAssignment(ctx context.Context, userID, assignmentID uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	// UpdateVerdict records a grading decision in a single UPDATE so
	// concurrent overrides resolve last-write-wins without a lost split
	// read-modify-write.
	UpdateVerdict(ctx context.Context, id uint, isCorrect *int, feedback string) (int64, error)
	// UpdateAnswer replaces an essay's answer text in place and reopens
	// the verdict, again as a single UPDATE.
	UpdateAnswer(ctx context.Context, id uint, answerText string) (int64, error)
	AccuracyByUser(ctx context.Context, classID *uint) ([]UserAccuracyRow, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("User").
		Preload("Assignment")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListForUsers(ctx context.Context, userIDs []uint) ([]models.Submission, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) LatestByUserAssignment(ctx context.Context, userID, assignmentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND assignment_id = ?", userID, assignmentID).
		Order("submitted_at DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) UpdateVerdict(ctx context.Context, id uint, isCorrect *int, feedback string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_correct": isCorrect,
			"feedback":   feedback,
		})

	return result.RowsAffected, result.Error
}

func (r *submissionRepository) UpdateAnswer(ctx context.Context, id uint, answerText string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"answer_text": answerText,
			"is_correct":  nil,
			"feedback":    "",
		})

	return result.RowsAffected, result.Error
}

func (r *submissionRepository) AccuracyByUser(ctx context.Context, classID *uint) ([]UserAccuracyRow, error) {
	query := r.db.WithContext(ctx).
		Table("users u").
		Select("u.id AS user_id, u.username, COUNT(s.id) AS submissions, SUM(CASE WHEN s.is_correct = 1 THEN 1 ELSE 0 END) AS correct").
		Joins("LEFT JOIN submissions s ON u.id = s.user_id").
		Where("u.role = ?", models.RoleStudent).
		Group("u.id, u.username").
		Order("u.id ASC")

	if classID != nil {
		query = query.Where("u.class_id = ?", *classID)
	}

	var rows []UserAccuracyRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}
