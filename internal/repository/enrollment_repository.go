package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hoasen-edu/preschool-api/internal/models"
)

const applicationColumns = `id, enroll_code, state, student_name, student_age, student_birth_date, student_gender,
    guardian_name, guardian_birth_date, guardian_gender, guardian_document, guardian_phone, guardian_email, guardian_address,
    relationship, reason, notes, sign_received, signed_at, signed_by, signed_from, created_at, updated_at`

// EnrollmentRepository manages persistence for enrollment applications.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns applications matching the provided filters.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.EnrollmentApplication, int, error) {
	base := "FROM enrollment_applications"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)+1))
		args = append(args, filter.State)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(student_name) LIKE $%d OR LOWER(guardian_name) LIKE $%d OR LOWER(enroll_code) LIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"enroll_code": "enroll_code",
		"state":       "state",
		"created_at":  "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", applicationColumns, base, column, order, size, offset)

	var applications []models.EnrollmentApplication
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// ListEligible returns applications currently matchable by a scan, i.e. in
// WAITING_CONFIRM or ERROR, oldest first.
func (r *EnrollmentRepository) ListEligible(ctx context.Context) ([]models.EnrollmentApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_applications WHERE state IN ($1, $2) ORDER BY created_at ASC`, applicationColumns)
	var applications []models.EnrollmentApplication
	if err := r.db.SelectContext(ctx, &applications, query, models.StateWaitingConfirm, models.StateError); err != nil {
		return nil, fmt.Errorf("list eligible applications: %w", err)
	}
	return applications, nil
}

// FindByCode fetches an application by its enroll code.
func (r *EnrollmentRepository) FindByCode(ctx context.Context, enrollCode string) (*models.EnrollmentApplication, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollment_applications WHERE enroll_code = $1 LIMIT 1", applicationColumns)
	var application models.EnrollmentApplication
	if err := r.db.GetContext(ctx, &application, query, enrollCode); err != nil {
		return nil, err
	}
	return &application, nil
}

// Create inserts a new application in WAITING_CONFIRM.
func (r *EnrollmentRepository) Create(ctx context.Context, application *models.EnrollmentApplication) error {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	if application.State == "" {
		application.State = models.StateWaitingConfirm
	}
	now := time.Now().UTC()
	if application.CreatedAt.IsZero() {
		application.CreatedAt = now
	}
	application.UpdatedAt = now
	const query = `INSERT INTO enrollment_applications (id, enroll_code, state, student_name, student_age, student_birth_date, student_gender,
        guardian_name, guardian_birth_date, guardian_gender, guardian_document, guardian_phone, guardian_email, guardian_address,
        relationship, reason, notes, sign_received, created_at, updated_at)
        VALUES (:id, :enroll_code, :state, :student_name, :student_age, :student_birth_date, :student_gender,
        :guardian_name, :guardian_birth_date, :guardian_gender, :guardian_document, :guardian_phone, :guardian_email, :guardian_address,
        :relationship, :reason, :notes, :sign_received, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, application); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// Claim atomically moves an application into WAITING_PROCESSING, but only if
// it is currently WAITING_CONFIRM or ERROR. It reports whether this caller
// won the claim, so concurrent scans cannot process the same application.
func (r *EnrollmentRepository) Claim(ctx context.Context, enrollCode string) (bool, error) {
	const query = `UPDATE enrollment_applications SET state = $2, updated_at = $3
        WHERE enroll_code = $1 AND state IN ($4, $5)`
	result, err := r.db.ExecContext(ctx, query, enrollCode, models.StateWaitingProcessing, time.Now().UTC(),
		models.StateWaitingConfirm, models.StateError)
	if err != nil {
		return false, fmt.Errorf("claim application: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim application: %w", err)
	}
	return affected == 1, nil
}

// Resolve moves a claimed application to a terminal-or-retryable state and
// records the sign info gathered from the confirmation reply.
func (r *EnrollmentRepository) Resolve(ctx context.Context, enrollCode string, state models.ApplicationState, sign models.SignInfo) error {
	const query = `UPDATE enrollment_applications
        SET state = $2, sign_received = $3, signed_at = $4, signed_by = $5, signed_from = $6, updated_at = $7
        WHERE enroll_code = $1`
	var signedAt *time.Time
	var signedBy, signedFrom *string
	if sign.Received {
		at := sign.At
		signedAt = &at
		signedBy = &sign.By
		signedFrom = &sign.From
	}
	if _, err := r.db.ExecContext(ctx, query, enrollCode, state, sign.Received, signedAt, signedBy, signedFrom, time.Now().UTC()); err != nil {
		return fmt.Errorf("resolve application: %w", err)
	}
	return nil
}

// CountPending counts applications that still hold a seat against capacity.
func (r *EnrollmentRepository) CountPending(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollment_applications WHERE state IN ($1, $2)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, models.StateWaitingConfirm, models.StateWaitingProcessing); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count pending applications: %w", err)
	}
	return total, nil
}
