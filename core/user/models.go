package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dossier/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"

	// Parent
	RoleParent = "parent:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	ParentRoles  = []string{RoleParent}
	AllRoles     = getAllRoles()

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 6)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	all = append(all, ParentRoles...)
	return all
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	Roles     []string  `json:"roles"`
	Wards     []string  `json:"wards,omitempty"` // IDs of the students a parent is linked to
	CreatedAt time.Time `json:"created_at"`      // UTC
	UpdatedAt time.Time `json:"updated_at"`      // UTC
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

func (u *User) IsParent() bool {
	return u.RoleStartsWith(RoleParent)
}

// IsGuardianOf reports whether u is a parent linked to the student studentID.
func (u *User) IsGuardianOf(studentID string) bool {
	if !u.IsParent() {
		return false
	}
	for _, id := range u.Wards {
		if id == studentID {
			return true
		}
	}
	return false
}

// CanReview reports whether u may approve, reject or request resubmission of documents.
func (u *User) CanReview() bool {
	return u.IsActive && (u.IsTeacher() || u.IsAdmin())
}

// CanView reports whether u may read the documents owned by ownerID.
func (u *User) CanView(ownerID string) bool {
	if !u.IsActive {
		return false
	}
	switch {
	case u.IsAdmin(), u.IsTeacher():
		return true
	case u.IsStudent() && u.ID == ownerID:
		return true
	default:
		return u.IsGuardianOf(ownerID)
	}
}

// CanSubmitFor reports whether u may attach files to the documents of ownerID.
func (u *User) CanSubmitFor(ownerID string) bool {
	return u.IsActive && u.IsStudent() && u.ID == ownerID
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name     string   `json:"name" validate:"required"`
	Username string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email    string   `json:"email" validate:"required,email"`
	Roles    []string `json:"roles" validate:"required,allroles"`
	Wards    []string `json:"wards" validate:"omitempty,dive,required"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	for i, w := range nu.Wards {
		nu.Wards[i] = core.CleanString(w)
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, nu.Username, nu.Email)
}
