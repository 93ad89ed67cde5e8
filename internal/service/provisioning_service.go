package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hoasen-edu/preschool-api/internal/mail"
	"github.com/hoasen-edu/preschool-api/internal/models"
)

type provisionStudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
}

type provisionGuardianRepository interface {
	FindByDocument(ctx context.Context, document string) (*models.GuardianDetail, error)
	CreateWithAccount(ctx context.Context, guardian *models.Guardian, account *models.GuardianAccount) error
	LinkStudent(ctx context.Context, guardianID, studentID string) error
}

type photoStore interface {
	Save(filename string, data []byte) (string, error)
}

type provisionCodeAllocator interface {
	NextStudentCode(ctx context.Context) (string, error)
	Username(fullName string) string
}

type successNotifier interface {
	SendSuccessNewAccount(app *models.EnrollmentApplication, student *models.Student, username, password string)
	SendSuccessExistingAccount(app *models.EnrollmentApplication, student *models.Student, username string)
}

// ProvisioningService turns a confirmed application into domain records: a
// student with its uploaded photo, and a guardian account that is either
// reused (matched by ID document number) or freshly created.
type ProvisioningService struct {
	students        provisionStudentRepository
	guardians       provisionGuardianRepository
	photos          photoStore
	codes           provisionCodeAllocator
	notifier        successNotifier
	defaultPassword string
	logger          *zap.Logger
}

// NewProvisioningService constructs a ProvisioningService.
func NewProvisioningService(students provisionStudentRepository, guardians provisionGuardianRepository, photos photoStore, codes provisionCodeAllocator, notifier successNotifier, defaultPassword string, logger *zap.Logger) *ProvisioningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProvisioningService{
		students:        students,
		guardians:       guardians,
		photos:          photos,
		codes:           codes,
		notifier:        notifier,
		defaultPassword: defaultPassword,
		logger:          logger,
	}
}

// Provision runs once per application reaching the success path. Any error
// is a hard failure of this message's processing; the caller decides the
// application's fallback state.
func (s *ProvisioningService) Provision(ctx context.Context, app *models.EnrollmentApplication, photo mail.Attachment) (*models.Student, error) {
	studentCode, err := s.codes.NextStudentCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate student code: %w", err)
	}

	filename := studentCode + photoExtension(photo.Filename)
	photoURL, err := s.photos.Save(filename, photo.Data)
	if err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	student := &models.Student{
		StudentCode: studentCode,
		FullName:    app.StudentName,
		Age:         app.StudentAge,
		BirthDate:   app.StudentBirthDate,
		Gender:      app.StudentGender,
		PhotoURL:    photoURL,
		EnrollCode:  app.EnrollCode,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}

	existing, err := s.guardians.FindByDocument(ctx, app.GuardianDocument)
	switch {
	case err == nil:
		if err := s.guardians.LinkStudent(ctx, existing.ID, student.ID); err != nil {
			return nil, fmt.Errorf("link student: %w", err)
		}
		s.notifier.SendSuccessExistingAccount(app, student, existing.Username)
		s.logger.Sugar().Infow("student linked to existing guardian", "student_code", studentCode, "username", existing.Username)

	case err == sql.ErrNoRows:
		username := s.codes.Username(app.GuardianName)
		hash, herr := bcrypt.GenerateFromPassword([]byte(s.defaultPassword), bcrypt.DefaultCost)
		if herr != nil {
			return nil, fmt.Errorf("hash default password: %w", herr)
		}
		account := &models.GuardianAccount{Username: username, PasswordHash: string(hash)}
		guardian := &models.Guardian{
			FullName:  app.GuardianName,
			BirthDate: app.GuardianBirthDate,
			Gender:    app.GuardianGender,
			Document:  app.GuardianDocument,
			Phone:     app.GuardianPhone,
			Email:     app.GuardianEmail,
			Address:   app.GuardianAddress,
		}
		if err := s.guardians.CreateWithAccount(ctx, guardian, account); err != nil {
			return nil, fmt.Errorf("create guardian account: %w", err)
		}
		if err := s.guardians.LinkStudent(ctx, guardian.ID, student.ID); err != nil {
			return nil, fmt.Errorf("link student: %w", err)
		}
		s.notifier.SendSuccessNewAccount(app, student, username, s.defaultPassword)
		s.logger.Sugar().Infow("student linked to new guardian account", "student_code", studentCode, "username", username)

	default:
		return nil, fmt.Errorf("lookup guardian: %w", err)
	}

	return student, nil
}

func photoExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif":
		return ext
	default:
		return ".jpg"
	}
}
