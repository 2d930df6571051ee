package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/models"
	appErrors "github.com/classdesk/classdesk-api/pkg/errors"
)

type submissionRepository interface {
	Create(ctx context.Context, s *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	Grade(ctx context.Context, id string, grade int, feedback string, gradedAt time.Time) error
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
}

type downloadSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
}

// SubmissionService provides submission use cases.
type SubmissionService struct {
	repo      submissionRepository
	events    snapshotPublisher
	store     fileStore
	signer    downloadSigner
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(repo submissionRepository, events snapshotPublisher, store fileStore, signer downloadSigner, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{repo: repo, events: events, store: store, signer: signer, validator: validate, logger: logger, now: time.Now}
}

// Submit records a submission for the acting student. The referenced
// assignment is not checked for existence and prior submissions for the same
// assignment are not rejected. When file is nil only metadata is recorded.
func (s *SubmissionService) Submit(ctx context.Context, assignmentID string, req models.SubmitAssignmentRequest, file io.Reader, actor *models.JWTClaims) (*models.Submission, error) {
	if assignmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment id required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	sub := &models.Submission{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		StudentID:    actor.UserID,
		StudentEmail: actor.Email,
		FileName:     req.FileName,
		FileSize:     req.FileSize,
		SubmittedAt:  s.now().UTC(),
		Status:       models.SubmissionStatusSubmitted,
	}

	if file != nil && s.store != nil {
		relPath := filepath.Join("submissions", fmt.Sprintf("%s_%s", sub.ID, filepath.Base(req.FileName)))
		stored, err := s.store.SaveStream(relPath, file)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission file")
		}
		sub.FilePath = stored
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}

	s.logger.Info("submission recorded",
		zap.String("submission_id", sub.ID),
		zap.String("assignment_id", assignmentID),
		zap.String("student_id", actor.UserID))

	if s.events != nil {
		s.events.PublishSubmissions(ctx)
	}

	return sub, nil
}

// Grade applies a grade to a submission. Regrading an already graded
// submission silently overwrites grade, feedback and graded_at.
func (s *SubmissionService) Grade(ctx context.Context, submissionID string, req models.GradeSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	gradedAt := s.now().UTC()
	if err := s.repo.Grade(ctx, submissionID, *req.Grade, req.Feedback, gradedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	sub, err := s.repo.FindByID(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graded submission")
	}

	s.logger.Info("submission graded",
		zap.String("submission_id", submissionID),
		zap.Int("grade", *req.Grade),
		zap.String("graded_by", actor.UserID))

	if s.events != nil {
		s.events.PublishSubmissions(ctx)
	}

	return sub, nil
}

// List returns submissions visible to the actor: teachers see the full
// collection, students only their own rows.
func (s *SubmissionService) List(ctx context.Context, filter models.SubmissionFilter, actor *models.JWTClaims) ([]models.Submission, error) {
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.UserID
	}
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	if list == nil {
		list = []models.Submission{}
	}
	return list, nil
}

// SignedDownloadURL issues a time-limited token for a submission file.
// Teachers can fetch any submission, students only their own.
func (s *SubmissionService) SignedDownloadURL(ctx context.Context, submissionID string, actor *models.JWTClaims) (string, time.Time, error) {
	sub, err := s.repo.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	if actor.Role == models.RoleStudent && sub.StudentID != actor.UserID {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	if sub.FilePath == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "submission has no stored file")
	}

	token, expiresAt, err := s.signer.Generate(sub.ID, sub.FilePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// OpenDownload validates a signed token and opens the referenced file.
func (s *SubmissionService) OpenDownload(token string) (*os.File, string, error) {
	submissionID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "submission file missing")
	}

	s.logger.Debug("submission download", zap.String("submission_id", submissionID))
	return file, filepath.Base(relPath), nil
}
