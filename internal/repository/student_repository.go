package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hoasen-edu/preschool-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, student_code, full_name, age, birth_date, gender, photo_url, enroll_code, created_at, updated_at)
        VALUES (:id, :student_code, :full_name, :age, :birth_date, :gender, :photo_url, :enroll_code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByCode fetches a student by its student code.
func (r *StudentRepository) FindByCode(ctx context.Context, studentCode string) (*models.Student, error) {
	const query = `SELECT id, student_code, full_name, age, birth_date, gender, photo_url, enroll_code, created_at, updated_at
        FROM students WHERE student_code = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, studentCode); err != nil {
		return nil, err
	}
	return &student, nil
}

// Count returns the number of enrolled students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM students`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}
