package models

import "time"

// ApplicationState represents the lifecycle of an enrollment application.
type ApplicationState string

// Lifecycle states. State only ever advances WAITING_CONFIRM →
// WAITING_PROCESSING → {FINISHED | ERROR}; ERROR is re-enterable into
// WAITING_PROCESSING by a later confirmation reply.
const (
	StateWaitingConfirm    ApplicationState = "WAITING_CONFIRM"
	StateWaitingProcessing ApplicationState = "WAITING_PROCESSING"
	StateFinished          ApplicationState = "FINISHED"
	StateError             ApplicationState = "ERROR"
)

// EnrollmentApplication is one guardian's request to enroll one student.
// The enroll code is assigned exactly once at creation and never reused.
type EnrollmentApplication struct {
	ID         string           `db:"id" json:"id"`
	EnrollCode string           `db:"enroll_code" json:"enroll_code"`
	State      ApplicationState `db:"state" json:"state"`

	StudentName      string    `db:"student_name" json:"student_name"`
	StudentAge       int       `db:"student_age" json:"student_age"`
	StudentBirthDate time.Time `db:"student_birth_date" json:"student_birth_date"`
	StudentGender    string    `db:"student_gender" json:"student_gender"`

	GuardianName      string    `db:"guardian_name" json:"guardian_name"`
	GuardianBirthDate time.Time `db:"guardian_birth_date" json:"guardian_birth_date"`
	GuardianGender    string    `db:"guardian_gender" json:"guardian_gender"`
	GuardianDocument  string    `db:"guardian_document" json:"guardian_document"`
	GuardianPhone     string    `db:"guardian_phone" json:"guardian_phone"`
	GuardianEmail     string    `db:"guardian_email" json:"guardian_email"`
	GuardianAddress   string    `db:"guardian_address" json:"guardian_address"`
	Relationship      string    `db:"relationship" json:"relationship"`
	Reason            string    `db:"reason" json:"reason"`
	Notes             string    `db:"notes" json:"notes,omitempty"`

	SignReceived bool       `db:"sign_received" json:"sign_received"`
	SignedAt     *time.Time `db:"signed_at" json:"signed_at,omitempty"`
	SignedBy     *string    `db:"signed_by" json:"signed_by,omitempty"`
	SignedFrom   *string    `db:"signed_from" json:"signed_from,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SignInfo captures who confirmed an application and how.
type SignInfo struct {
	Received bool
	At       time.Time
	By       string
	From     string
}

// ApplicationFilter provides filters for listing applications.
type ApplicationFilter struct {
	State     ApplicationState
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
