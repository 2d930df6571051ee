package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/models"
	appErrors "github.com/classdesk/classdesk-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, a *models.Assignment) error
	List(ctx context.Context) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type snapshotPublisher interface {
	PublishAssignments(ctx context.Context)
	PublishSubmissions(ctx context.Context)
}

// AssignmentService provides assignment use cases.
type AssignmentService struct {
	repo      assignmentRepository
	events    snapshotPublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, events snapshotPublisher, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, events: events, validator: validate, logger: logger, now: time.Now}
}

// Create publishes a new assignment on behalf of the acting teacher. The
// server sets creator identity, creation time and status.
func (s *AssignmentService) Create(ctx context.Context, req models.CreateAssignmentRequest, actor *models.JWTClaims) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if req.MaxPoints <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "max_points must be positive")
	}

	a := &models.Assignment{
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate,
		MaxPoints:      req.MaxPoints,
		CreatedBy:      actor.UserID,
		CreatedByEmail: actor.Email,
		CreatedAt:      s.now().UTC(),
		Status:         models.AssignmentStatusActive,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.logger.Info("assignment created",
		zap.String("assignment_id", a.ID),
		zap.String("created_by", a.CreatedBy),
		zap.Int("max_points", a.MaxPoints))

	if s.events != nil {
		s.events.PublishAssignments(ctx)
	}

	return a, nil
}

// Get returns a single assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment id required")
	}
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return a, nil
}

// List returns the full assignment collection, created_at descending.
func (s *AssignmentService) List(ctx context.Context) ([]models.Assignment, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	if list == nil {
		list = []models.Assignment{}
	}
	return list, nil
}
