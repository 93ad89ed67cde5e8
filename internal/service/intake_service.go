package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hoasen-edu/preschool-api/internal/models"
	"github.com/hoasen-edu/preschool-api/pkg/config"
	appErrors "github.com/hoasen-edu/preschool-api/pkg/errors"
)

type intakeApplicationRepository interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.EnrollmentApplication, int, error)
	FindByCode(ctx context.Context, enrollCode string) (*models.EnrollmentApplication, error)
	Create(ctx context.Context, application *models.EnrollmentApplication) error
	CountPending(ctx context.Context) (int, error)
}

type studentCounter interface {
	Count(ctx context.Context) (int, error)
}

type enrollCodeAllocator interface {
	NextEnrollCode(ctx context.Context) (string, error)
}

type confirmationRequester interface {
	SendConfirmationRequest(app *models.EnrollmentApplication)
}

// IntakeRequest describes one submitted enrollment form. Dates arrive as
// ISO calendar days.
type IntakeRequest struct {
	StudentName      string `json:"student_name" validate:"required"`
	StudentAge       int    `json:"student_age" validate:"required,min=0"`
	StudentBirthDate string `json:"student_birth_date" validate:"required,datetime=2006-01-02"`
	StudentGender    string `json:"student_gender" validate:"required,oneof=male female"`

	GuardianName      string `json:"guardian_name" validate:"required"`
	GuardianBirthDate string `json:"guardian_birth_date" validate:"required,datetime=2006-01-02"`
	GuardianGender    string `json:"guardian_gender" validate:"required,oneof=male female"`
	GuardianDocument  string `json:"guardian_document" validate:"required"`
	GuardianPhone     string `json:"guardian_phone" validate:"required"`
	GuardianEmail     string `json:"guardian_email" validate:"required,email"`
	GuardianAddress   string `json:"guardian_address" validate:"required"`
	Relationship      string `json:"relationship" validate:"required"`
	Reason            string `json:"reason" validate:"required"`
	Notes             string `json:"notes"`
}

// IntakeService accepts enrollment applications: it validates the form,
// enforces the age window and the capacity ceiling, allocates the enroll
// code and queues the confirmation request email.
type IntakeService struct {
	apps      intakeApplicationRepository
	students  studentCounter
	codes     enrollCodeAllocator
	notifier  confirmationRequester
	cfg       config.EnrollConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIntakeService constructs an IntakeService.
func NewIntakeService(apps intakeApplicationRepository, students studentCounter, codes enrollCodeAllocator, notifier confirmationRequester, cfg config.EnrollConfig, validate *validator.Validate, logger *zap.Logger) *IntakeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{apps: apps, students: students, codes: codes, notifier: notifier, cfg: cfg, validator: validate, logger: logger}
}

// Submit registers a new application in WAITING_CONFIRM.
func (s *IntakeService) Submit(ctx context.Context, req IntakeRequest) (*models.EnrollmentApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.StudentAge < s.cfg.MinAge || req.StudentAge > s.cfg.MaxAge {
		return nil, appErrors.Clone(appErrors.ErrAgeOutOfRange, "")
	}

	enrolled, err := s.students.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check capacity")
	}
	pending, err := s.apps.CountPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check capacity")
	}
	if enrolled+pending >= s.cfg.RoomCount*s.cfg.RoomLimit {
		return nil, appErrors.Clone(appErrors.ErrCapacityReached, "")
	}

	enrollCode, err := s.codes.NextEnrollCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate enroll code")
	}

	studentBirth, _ := time.Parse("2006-01-02", req.StudentBirthDate)
	guardianBirth, _ := time.Parse("2006-01-02", req.GuardianBirthDate)

	application := &models.EnrollmentApplication{
		EnrollCode:        enrollCode,
		State:             models.StateWaitingConfirm,
		StudentName:       req.StudentName,
		StudentAge:        req.StudentAge,
		StudentBirthDate:  studentBirth,
		StudentGender:     req.StudentGender,
		GuardianName:      req.GuardianName,
		GuardianBirthDate: guardianBirth,
		GuardianGender:    req.GuardianGender,
		GuardianDocument:  req.GuardianDocument,
		GuardianPhone:     req.GuardianPhone,
		GuardianEmail:     req.GuardianEmail,
		GuardianAddress:   req.GuardianAddress,
		Relationship:      req.Relationship,
		Reason:            req.Reason,
		Notes:             req.Notes,
	}
	if err := s.apps.Create(ctx, application); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.notifier.SendConfirmationRequest(application)
	s.logger.Sugar().Infow("application created", "enroll_code", application.EnrollCode)
	return application, nil
}

// List returns applications with pagination metadata.
func (s *IntakeService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.EnrollmentApplication, *models.Pagination, error) {
	applications, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return applications, pagination, nil
}

// Get fetches one application by enroll code.
func (s *IntakeService) Get(ctx context.Context, enrollCode string) (*models.EnrollmentApplication, error) {
	application, err := s.apps.FindByCode(ctx, enrollCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return application, nil
}
