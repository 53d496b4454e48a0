// Package settings holds the school-wide settings document.
package settings

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/user"
)

const SubjectType = "settings"

// ErrNotFound is returned by a Store that holds no settings yet.
var ErrNotFound = core.NewNotFoundError("settings")

type Settings struct {
	SchoolName           string `json:"school_name" validate:"required,notblank,max=100"`
	ContactEmail         string `json:"contact_email" validate:"omitempty,email"`
	Currency             string `json:"currency" validate:"required,len=3,alpha"`
	Timezone             string `json:"timezone" validate:"required,timezone"`
	DefaultPerPage       int    `json:"default_per_page" validate:"oneof=10 15 25 50 100"`
	InvoiceDueDays       int    `json:"invoice_due_days" validate:"min=1,max=365"`
	AllowParentChildEdit bool   `json:"allow_parent_child_edit"`
}

func Defaults() Settings {
	return Settings{
		SchoolName:     "Shule",
		Currency:       "USD",
		Timezone:       "UTC",
		DefaultPerPage: 15,
		InvoiceDueDays: 30,
	}
}

// Location returns the school time zone, UTC when unknown.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Store persists the settings document.
type Store interface {
	// Load returns ErrNotFound when nothing was saved yet.
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	Reset(ctx context.Context) error
}

// Service serves the settings from memory once loaded.
type Service struct {
	store    Store
	rec      *audit.Recorder
	validate *validator.Validate

	mu     sync.RWMutex
	loaded bool
	cached Settings
}

func NewService(store Store, rec *audit.Recorder, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(rec, "rec"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{store: store, rec: rec, validate: validate}
}

// Get returns the current settings, the defaults when none were saved.
func (svc *Service) Get(ctx context.Context) (Settings, error) {
	svc.mu.RLock()
	if svc.loaded {
		defer svc.mu.RUnlock()
		return svc.cached, nil
	}
	svc.mu.RUnlock()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.loaded {
		return svc.cached, nil
	}
	s, err := svc.store.Load(ctx)
	if err != nil {
		if !core.IsNotFound(err) {
			return Defaults(), errors.Wrap(err, "loading settings")
		}
		s = Defaults()
	}
	svc.cached, svc.loaded = s, true
	return s, nil
}

// GetOrDefaults returns the settings, or the defaults when they cannot be loaded.
// Callers that must report a load failure use Get.
func (svc *Service) GetOrDefaults(ctx context.Context) Settings {
	s, _ := svc.Get(ctx)
	return s
}

func (svc *Service) Save(ctx context.Context, actor user.User, s Settings) (Settings, error) {
	s.SchoolName = core.CleanString(s.SchoolName)
	s.ContactEmail = core.CleanString(s.ContactEmail, true /* lower */)
	if err := svc.validate.Struct(s); err != nil {
		return Settings{}, err
	}

	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.store.Save(ctx, s); err != nil {
			return audit.Entry{}, errors.Wrap(err, "saving settings")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: "updated the school settings",
			SubjectType: SubjectType,
			Properties:  map[string]interface{}{"school_name": s.SchoolName, "currency": s.Currency},
		}, nil
	})
	if err != nil {
		return Settings{}, err
	}
	svc.set(s)
	return s, nil
}

// Reset restores the defaults.
func (svc *Service) Reset(ctx context.Context, actor user.User) (Settings, error) {
	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.store.Reset(ctx); err != nil {
			return audit.Entry{}, errors.Wrap(err, "resetting settings")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: "reset the school settings",
			SubjectType: SubjectType,
		}, nil
	})
	if err != nil {
		return Settings{}, err
	}
	s := Defaults()
	svc.set(s)
	return s, nil
}

func (svc *Service) set(s Settings) {
	svc.mu.Lock()
	svc.cached, svc.loaded = s, true
	svc.mu.Unlock()
}
