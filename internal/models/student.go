package models

import "time"

// Student is created once per application reaching FINISHED.
type Student struct {
	ID          string    `db:"id" json:"id"`
	StudentCode string    `db:"student_code" json:"student_code"`
	FullName    string    `db:"full_name" json:"full_name"`
	Age         int       `db:"age" json:"age"`
	BirthDate   time.Time `db:"birth_date" json:"birth_date"`
	Gender      string    `db:"gender" json:"gender"`
	PhotoURL    string    `db:"photo_url" json:"photo_url"`
	EnrollCode  string    `db:"enroll_code" json:"enroll_code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
