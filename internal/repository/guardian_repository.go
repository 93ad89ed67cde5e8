package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hoasen-edu/preschool-api/internal/models"
)

// GuardianRepository manages guardians, their accounts and student links.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs a GuardianRepository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// FindByDocument returns the guardian holding the given ID document number,
// joined with its account username. sql.ErrNoRows when absent.
func (r *GuardianRepository) FindByDocument(ctx context.Context, document string) (*models.GuardianDetail, error) {
	const query = `SELECT g.id, g.account_id, g.full_name, g.birth_date, g.gender, g.document, g.phone, g.email, g.address,
        g.created_at, g.updated_at, a.username
        FROM guardians g
        JOIN guardian_accounts a ON a.id = g.account_id
        WHERE g.document = $1 LIMIT 1`
	var detail models.GuardianDetail
	if err := r.db.GetContext(ctx, &detail, query, document); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateWithAccount inserts a new account and its guardian in one transaction.
func (r *GuardianRepository) CreateWithAccount(ctx context.Context, guardian *models.Guardian, account *models.GuardianAccount) error {
	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	if guardian.ID == "" {
		guardian.ID = uuid.NewString()
	}
	guardian.AccountID = account.ID
	guardian.CreatedAt = now
	guardian.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin guardian tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const accountQuery = `INSERT INTO guardian_accounts (id, username, password_hash, created_at, updated_at)
        VALUES (:id, :username, :password_hash, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, accountQuery, account); err != nil {
		return fmt.Errorf("create guardian account: %w", err)
	}

	const guardianQuery = `INSERT INTO guardians (id, account_id, full_name, birth_date, gender, document, phone, email, address, created_at, updated_at)
        VALUES (:id, :account_id, :full_name, :birth_date, :gender, :document, :phone, :email, :address, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, guardianQuery, guardian); err != nil {
		return fmt.Errorf("create guardian: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit guardian tx: %w", err)
	}
	return nil
}

// LinkStudent appends a student reference to a guardian's list.
func (r *GuardianRepository) LinkStudent(ctx context.Context, guardianID, studentID string) error {
	const query = `INSERT INTO guardian_students (guardian_id, student_id, linked_at) VALUES ($1, $2, $3)
        ON CONFLICT (guardian_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, guardianID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link student to guardian: %w", err)
	}
	return nil
}

// ListStudents returns the students linked to a guardian.
func (r *GuardianRepository) ListStudents(ctx context.Context, guardianID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.student_code, s.full_name, s.age, s.birth_date, s.gender, s.photo_url, s.enroll_code, s.created_at, s.updated_at
        FROM students s
        JOIN guardian_students gs ON gs.student_id = s.id
        WHERE gs.guardian_id = $1
        ORDER BY gs.linked_at ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, guardianID); err != nil {
		return nil, fmt.Errorf("list guardian students: %w", err)
	}
	return students, nil
}
