package models

import "time"

// GuardianAccount is the login owned by a guardian. Accounts are matched by
// the guardian's ID document number; a new account gets a generated username
// and the default password until the guardian changes it.
type GuardianAccount struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Guardian holds the person behind an account and the students linked to it.
type Guardian struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"account_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	BirthDate time.Time `db:"birth_date" json:"birth_date"`
	Gender    string    `db:"gender" json:"gender"`
	Document  string    `db:"document" json:"document"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GuardianDetail enriches Guardian with its account username.
type GuardianDetail struct {
	Guardian
	Username string `db:"username" json:"username"`
}
