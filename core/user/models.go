package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/unihub/campus/core"
)

// Roles
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

var AllRoles = []Role{RoleStudent, RoleFaculty, RoleParent, RoleAdmin}

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// User is the persisted profile record declaring a user's role and attributes.
// It is the server-side source of truth for authorization decisions; the
// AdminClaimSet flag only book-keeps whether the provider claim was attached
// and must never be trusted in place of the claim itself.
type User struct {
	ID            string      `json:"id" db:"id" validate:"required"`
	Email         string      `json:"email" db:"email" validate:"required,email"`
	Name          string      `json:"name" db:"name" validate:"required"`
	Role          Role        `json:"role" db:"role" validate:"required,role"`
	Department    null.String `json:"department,omitempty" db:"department"`
	Batch         null.String `json:"batch,omitempty" db:"batch"`
	StudentID     null.String `json:"student_id,omitempty" db:"student_id"`
	PhotoURL      null.String `json:"photo_url,omitempty" db:"photo_url"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	AdminClaimSet bool        `json:"admin_claim_set" db:"admin_claim_set"`
	PasswordHash  []byte      `json:"-" db:"password_hash"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsFaculty() bool { return u.Role == RoleFaculty }
func (u *User) IsParent() bool  { return u.Role == RoleParent }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// ValidateRecord checks a profile record arriving from the document store
// against the strict schema. Records failing it are rejected at the ingestion
// boundary instead of propagating unset fields downstream.
func ValidateRecord(validate *validator.Validate, usr User) error {
	return validate.Struct(usr)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            Role   `json:"role" validate:"required,role"`
	Department      string `json:"department"`
	Batch           string `json:"batch"`
	StudentID       string `json:"student_id"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.Batch = core.CleanString(nu.Batch)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name       string  `json:"name"`
	Department *string `json:"department"`
	Batch      *string `json:"batch"`
	PhotoURL   *string `json:"photo_url"`
	IsActive   *bool   `json:"is_active"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.Name = core.CleanString(uu.Name)
	return validate.Struct(uu)
}

type GetFilter struct {
	ID    string
	Email string
}
