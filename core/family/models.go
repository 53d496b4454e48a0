package family

import (
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/listing"
)

// Parent statuses
const (
	ParentActive   = "active"
	ParentInactive = "inactive"
)

// Child statuses
const (
	ChildActive    = "active"
	ChildInactive  = "inactive"
	ChildGraduated = "graduated"
	ChildWithdrawn = "withdrawn"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

var (
	ParentStatuses = []string{ParentActive, ParentInactive}
	ChildStatuses  = []string{ChildActive, ChildInactive, ChildGraduated, ChildWithdrawn}
	Genders        = []string{GenderMale, GenderFemale}
)

type ParentProfile struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"` // empty until the parent joins the portal
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Address   string         `json:"address"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"` // UTC
	UpdatedAt time.Time      `json:"updated_at"` // UTC
	Children  []ChildProfile `json:"children,omitempty"`
}

type ChildProfile struct {
	ID              string         `json:"id"`
	ParentProfileID string         `json:"parent_profile_id"`
	Name            string         `json:"name"`
	DateOfBirth     core.Date      `json:"date_of_birth"`
	Gender          string         `json:"gender"`
	Status          string         `json:"status"`
	PhotoPath       string         `json:"photo_path"`
	CreatedAt       time.Time      `json:"created_at"` // UTC
	UpdatedAt       time.Time      `json:"updated_at"` // UTC
	Parent          *ParentProfile `json:"parent,omitempty"`
}

// AgeOn returns the age in full years of the child on day d.
func (c ChildProfile) AgeOn(d core.Date) int {
	if c.DateOfBirth.IsZero() || d.Before(c.DateOfBirth.Time) {
		return 0
	}
	age := d.Year() - c.DateOfBirth.Year()
	if d.YearDay() < c.DateOfBirth.YearDay() {
		age--
	}
	return age
}

type ParentInput struct {
	Name    string `json:"name" validate:"required,notblank,max=100"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,max=30"`
	Address string `json:"address" validate:"omitempty,max=255"`
	Status  string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (in *ParentInput) Clean() {
	in.Name = core.CleanString(in.Name)
	in.Email = core.CleanString(in.Email, true /* lower */)
	in.Phone = core.CleanString(in.Phone)
	in.Address = core.CleanString(in.Address)
	if in.Status == "" {
		in.Status = ParentActive
	}
}

type ChildInput struct {
	ParentProfileID string    `json:"parent_profile_id" validate:"required,uuid"`
	Name            string    `json:"name" validate:"required,notblank,max=100"`
	DateOfBirth     core.Date `json:"date_of_birth" validate:"required"`
	Gender          string    `json:"gender" validate:"required,oneof=male female"`
	Status          string    `json:"status" validate:"omitempty,oneof=active inactive graduated withdrawn"`
}

func (in *ChildInput) Clean() {
	in.Name = core.CleanString(in.Name)
	in.Gender = core.CleanString(in.Gender, true /* lower */)
	if in.Status == "" {
		in.Status = ChildActive
	}
}

// JoinInput creates the portal account of an invited parent.
type JoinInput struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Username        string `json:"username" validate:"required,min=6,alphanum_"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

var ParentDefinition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "status", Column: "status", Parse: listing.Enum(ParentStatuses...)},
	},
	SearchFields: []string{"name", "email", "phone"},
	Sortable: map[string]string{
		"name":       "name",
		"email":      "email",
		"created_at": "created_at",
	},
	DefaultSort: "name",
	Include:     []string{"children"},
}

var ChildDefinition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "parent_profile_id", Column: "parent_profile_id", Parse: listing.UUID},
		{Name: "status", Column: "status", Op: core.OpIn, Parse: listing.Enum(ChildStatuses...)},
		{Name: "gender", Column: "gender", Parse: listing.Enum(Genders...)},
	},
	SearchFields: []string{"name"},
	Sortable: map[string]string{
		"name":          "name",
		"date_of_birth": "date_of_birth",
		"status":        "status",
		"created_at":    "created_at",
	},
	DefaultSort: "name",
	Include:     []string{"parent"},
}
