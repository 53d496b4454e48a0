package family

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/user"
)

const (
	ParentSubjectType = "parent_profile"
	ChildSubjectType  = "child_profile"

	invitationTimeout = 7 * 24 * time.Hour
)

var (
	ErrParentNotFound = core.NewNotFoundError("parent")
	ErrChildNotFound  = core.NewNotFoundError("child")
	ErrNoProfile      = errors.New("no parent profile is linked to this account")
	ErrAlreadyJoined  = errors.New("this parent already has a portal account")
	ErrNoEmail        = errors.New("this parent has no email address")
)

type (
	Repository interface {
		CreateParent(ctx context.Context, p ParentProfile) (ParentProfile, error)
		UpdateParent(ctx context.Context, p ParentProfile) (ParentProfile, error)
		DeleteParent(ctx context.Context, id string) error
		// GetParent loads the profile with its children.
		GetParent(ctx context.Context, id string) (ParentProfile, error)
		GetParentByUser(ctx context.Context, userID string) (ParentProfile, error)
		QueryParents(ctx context.Context, q core.Query) ([]ParentProfile, int, error)
		CountChildren(ctx context.Context, parentID string) (int, error)

		CreateChild(ctx context.Context, c ChildProfile) (ChildProfile, error)
		UpdateChild(ctx context.Context, c ChildProfile) (ChildProfile, error)
		DeleteChild(ctx context.Context, id string) error
		// GetChild loads the child with its parent.
		GetChild(ctx context.Context, id string) (ChildProfile, error)
		QueryChildren(ctx context.Context, q core.Query) ([]ChildProfile, int, error)
		// CountChildDependents counts the invoices, enrollments and attendance records of the child.
		CountChildDependents(ctx context.Context, id string) (map[string]int, error)
	}

	// PhotoStore stores child photos, fitted to a square JPEG.
	PhotoStore interface {
		StorePhoto(ctx context.Context, name string, r io.Reader) (path string, err error)
		OpenPhoto(ctx context.Context, path string) (io.ReadCloser, error)
		DeletePhoto(ctx context.Context, path string) error
	}

	Deps struct {
		Repo            Repository
		UserRepo        user.Repository
		Recorder        *audit.Recorder
		Validate        *validator.Validate
		Settings        *settings.Service
		Photos          PhotoStore
		Mail            core.EmailService
		SecretKey       string
		FrontendBaseURL string
	}

	Service struct {
		repo     Repository
		usrRepo  user.Repository
		rec      *audit.Recorder
		validate *validator.Validate
		settings *settings.Service
		photos   PhotoStore
		mailSvc  core.EmailService
		tokens   tokenGenerator
		now      func() time.Time
	}
)

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "repo"),
		vala.IsNotNil(deps.UserRepo, "usrRepo"),
		vala.IsNotNil(deps.Recorder, "rec"),
		vala.IsNotNil(deps.Validate, "validate"),
		vala.IsNotNil(deps.Settings, "settings"),
		vala.IsNotNil(deps.Photos, "photos"),
		vala.IsNotNil(deps.Mail, "mailSvc"),
		vala.StringNotEmpty(deps.SecretKey, "secretKey"),
	).CheckAndPanic()

	return &Service{
		repo:     deps.Repo,
		usrRepo:  deps.UserRepo,
		rec:      deps.Recorder,
		validate: deps.Validate,
		settings: deps.Settings,
		photos:   deps.Photos,
		mailSvc:  deps.Mail,
		tokens:   tokenGenerator{secretKey: deps.SecretKey, timeout: invitationTimeout, now: time.Now},
		now:      time.Now,
	}
}

// Ownership

// ProfileOf returns the parent profile linked to a parent account.
func (svc *Service) ProfileOf(ctx context.Context, actor user.User) (ParentProfile, error) {
	if !actor.IsParent() {
		return ParentProfile{}, ErrNoProfile
	}
	p, err := svc.repo.GetParentByUser(ctx, actor.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return ParentProfile{}, ErrNoProfile
		}
		return ParentProfile{}, errors.Wrap(err, "finding parent profile")
	}
	return p, nil
}

// ScopeChildren restricts q to the children the actor may see:
// all for staff, their own for parents.
func (svc *Service) ScopeChildren(ctx context.Context, actor user.User, q core.Query, column string) (core.Query, error) {
	if actor.IsAdmin() || actor.IsTeacher() {
		return q, nil
	}
	p, err := svc.ProfileOf(ctx, actor)
	if err != nil {
		if err == ErrNoProfile {
			return q, core.ErrPermissionDenied
		}
		return q, err
	}
	return q.Eq(column, p.ID), nil
}

// OwnedChildIDs returns the IDs of the children of a parent account.
func (svc *Service) OwnedChildIDs(ctx context.Context, actor user.User) ([]string, error) {
	p, err := svc.ProfileOf(ctx, actor)
	if err != nil {
		if err == ErrNoProfile {
			return nil, core.ErrPermissionDenied
		}
		return nil, err
	}
	children, _, err := svc.repo.QueryChildren(ctx, core.Query{}.Eq("parent_profile_id", p.ID))
	if err != nil {
		return nil, errors.Wrap(err, "querying own children")
	}
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// CanSeeChild fails closed with core.ErrPermissionDenied.
func (svc *Service) CanSeeChild(ctx context.Context, actor user.User, c ChildProfile) error {
	if actor.IsAdmin() || actor.IsTeacher() {
		return nil
	}
	return svc.ownsChild(ctx, actor, c.ParentProfileID)
}

func (svc *Service) canEditChild(ctx context.Context, actor user.User, parentProfileID string) error {
	if actor.IsAdmin() {
		return nil
	}
	if !svc.settings.GetOrDefaults(ctx).AllowParentChildEdit {
		return core.ErrPermissionDenied
	}
	return svc.ownsChild(ctx, actor, parentProfileID)
}

func (svc *Service) ownsChild(ctx context.Context, actor user.User, parentProfileID string) error {
	p, err := svc.ProfileOf(ctx, actor)
	if err != nil {
		if err == ErrNoProfile {
			return core.ErrPermissionDenied
		}
		return err
	}
	if p.ID != parentProfileID {
		return core.ErrPermissionDenied
	}
	return nil
}

// Parents

func (svc *Service) CreateParent(ctx context.Context, actor user.User, in ParentInput) (ParentProfile, error) {
	in.Clean()
	if err := svc.validate.Struct(in); err != nil {
		return ParentProfile{}, err
	}

	now := svc.now().UTC()
	p := ParentProfile{
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Address:   in.Address,
		Status:    in.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if p, err = svc.repo.CreateParent(ctx, p); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating parent")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("created parent %s", p.Name),
			SubjectType: ParentSubjectType,
			SubjectID:   p.ID,
		}, nil
	})
	if err != nil {
		return ParentProfile{}, err
	}
	return p, nil
}

func (svc *Service) UpdateParent(ctx context.Context, actor user.User, id string, in ParentInput) (ParentProfile, error) {
	p, err := svc.repo.GetParent(ctx, id)
	if err != nil {
		return ParentProfile{}, err
	}
	in.Clean()
	if err = svc.validate.Struct(in); err != nil {
		return ParentProfile{}, err
	}

	p.Name = in.Name
	p.Email = in.Email
	p.Phone = in.Phone
	p.Address = in.Address
	p.Status = in.Status
	p.UpdatedAt = svc.now().UTC()
	children := p.Children
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if p, err = svc.repo.UpdateParent(ctx, p); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating parent")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("updated parent %s", p.Name),
			SubjectType: ParentSubjectType,
			SubjectID:   p.ID,
		}, nil
	})
	if err != nil {
		return ParentProfile{}, err
	}
	p.Children = children
	return p, nil
}

// DeleteParent deletes a parent without children.
func (svc *Service) DeleteParent(ctx context.Context, actor user.User, id string) error {
	p, err := svc.repo.GetParent(ctx, id)
	if err != nil {
		return err
	}
	n, err := svc.repo.CountChildren(ctx, p.ID)
	if err != nil {
		return errors.Wrap(err, "counting children")
	}
	if err = core.CheckDependents("parent", map[string]int{"child": n}); err != nil {
		return err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.repo.DeleteParent(ctx, p.ID); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting parent")
		}
		return audit.Entry{
			Action:      audit.ActionDelete,
			Description: fmt.Sprintf("deleted parent %s", p.Name),
			SubjectType: ParentSubjectType,
			SubjectID:   p.ID,
		}, nil
	})
	return err
}

// GetParent returns a parent with their children; parents may only see their own profile.
func (svc *Service) GetParent(ctx context.Context, actor user.User, id string) (ParentProfile, error) {
	p, err := svc.repo.GetParent(ctx, id)
	if err != nil {
		return ParentProfile{}, err
	}
	if !(actor.IsAdmin() || actor.IsTeacher()) && (p.UserID == "" || p.UserID != actor.ID) {
		return ParentProfile{}, core.ErrPermissionDenied
	}
	return p, nil
}

func (svc *Service) QueryParents(ctx context.Context, q core.Query) ([]ParentProfile, int, error) {
	parents, total, err := svc.repo.QueryParents(ctx, q)
	return parents, total, errors.Wrap(err, "querying parents")
}

// Children

func (svc *Service) CreateChild(ctx context.Context, actor user.User, in ChildInput) (ChildProfile, error) {
	in.Clean()
	if err := svc.validate.Struct(in); err != nil {
		return ChildProfile{}, err
	}
	if err := svc.canEditChild(ctx, actor, in.ParentProfileID); err != nil {
		return ChildProfile{}, err
	}
	parent, err := svc.repo.GetParent(ctx, in.ParentProfileID)
	if err != nil {
		if core.IsNotFound(err) {
			return ChildProfile{}, core.NewValidationError(err, core.FieldError{Field: "parent_profile_id", Error: err.Error()})
		}
		return ChildProfile{}, err
	}

	now := svc.now().UTC()
	c := ChildProfile{
		ParentProfileID: parent.ID,
		Name:            in.Name,
		DateOfBirth:     in.DateOfBirth,
		Gender:          in.Gender,
		Status:          in.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if c, err = svc.repo.CreateChild(ctx, c); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating child")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("created child %s", c.Name),
			SubjectType: ChildSubjectType,
			SubjectID:   c.ID,
			Properties:  map[string]interface{}{"parent_profile_id": c.ParentProfileID},
		}, nil
	})
	if err != nil {
		return ChildProfile{}, err
	}
	parent.Children = nil
	c.Parent = &parent
	return c, nil
}

// UpdateChild updates a child; parents cannot move a child to another parent.
func (svc *Service) UpdateChild(ctx context.Context, actor user.User, id string, in ChildInput) (ChildProfile, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return ChildProfile{}, err
	}
	if err = svc.canEditChild(ctx, actor, c.ParentProfileID); err != nil {
		return ChildProfile{}, err
	}
	if !actor.IsAdmin() || in.ParentProfileID == "" {
		in.ParentProfileID = c.ParentProfileID
	}
	in.Clean()
	if err = svc.validate.Struct(in); err != nil {
		return ChildProfile{}, err
	}
	if in.ParentProfileID != c.ParentProfileID {
		if _, err = svc.repo.GetParent(ctx, in.ParentProfileID); err != nil {
			if core.IsNotFound(err) {
				return ChildProfile{}, core.NewValidationError(err, core.FieldError{Field: "parent_profile_id", Error: err.Error()})
			}
			return ChildProfile{}, err
		}
	}

	c.ParentProfileID = in.ParentProfileID
	c.Name = in.Name
	c.DateOfBirth = in.DateOfBirth
	c.Gender = in.Gender
	c.Status = in.Status
	c.UpdatedAt = svc.now().UTC()
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if c, err = svc.repo.UpdateChild(ctx, c); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating child")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("updated child %s", c.Name),
			SubjectType: ChildSubjectType,
			SubjectID:   c.ID,
		}, nil
	})
	if err != nil {
		return ChildProfile{}, err
	}
	return svc.repo.GetChild(ctx, c.ID)
}

// DeleteChild deletes a child nothing references anymore (admins only).
func (svc *Service) DeleteChild(ctx context.Context, actor user.User, id string) error {
	if !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return err
	}
	deps, err := svc.repo.CountChildDependents(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "counting child dependents")
	}
	if err = core.CheckDependents("child", deps); err != nil {
		return err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.repo.DeleteChild(ctx, c.ID); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting child")
		}
		return audit.Entry{
			Action:      audit.ActionDelete,
			Description: fmt.Sprintf("deleted child %s", c.Name),
			SubjectType: ChildSubjectType,
			SubjectID:   c.ID,
		}, nil
	})
	if err != nil {
		return err
	}
	if c.PhotoPath != "" {
		_ = svc.photos.DeletePhoto(ctx, c.PhotoPath)
	}
	return nil
}

func (svc *Service) GetChild(ctx context.Context, actor user.User, id string) (ChildProfile, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return ChildProfile{}, err
	}
	if err = svc.CanSeeChild(ctx, actor, c); err != nil {
		return ChildProfile{}, err
	}
	return c, nil
}

// QueryChildren lists the children the actor may see.
func (svc *Service) QueryChildren(ctx context.Context, actor user.User, q core.Query) ([]ChildProfile, int, error) {
	q, err := svc.ScopeChildren(ctx, actor, q, "parent_profile_id")
	if err != nil {
		return nil, 0, err
	}
	children, total, err := svc.repo.QueryChildren(ctx, q)
	return children, total, errors.Wrap(err, "querying children")
}

// CountChildren counts the children matching q.Where (dashboards).
func (svc *Service) CountChildren(ctx context.Context, q core.Query) (int, error) {
	q.Limit, q.Include = 1, nil
	_, total, err := svc.repo.QueryChildren(ctx, q)
	return total, errors.Wrap(err, "counting children")
}

// UploadPhoto stores the photo of a child and records its path.
func (svc *Service) UploadPhoto(ctx context.Context, actor user.User, id string, r io.Reader) (ChildProfile, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return ChildProfile{}, err
	}
	if err = svc.canEditChild(ctx, actor, c.ParentProfileID); err != nil {
		return ChildProfile{}, err
	}

	path, err := svc.photos.StorePhoto(ctx, c.ID, r)
	if err != nil {
		return ChildProfile{}, err
	}
	oldPath := c.PhotoPath
	c.PhotoPath = path
	c.UpdatedAt = svc.now().UTC()

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if c, err = svc.repo.UpdateChild(ctx, c); err != nil {
			return audit.Entry{}, errors.Wrap(err, "saving child photo")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("uploaded a photo of %s", c.Name),
			SubjectType: ChildSubjectType,
			SubjectID:   c.ID,
			Properties:  map[string]interface{}{"photo_path": path},
		}, nil
	})
	if err != nil {
		if path != oldPath {
			_ = svc.photos.DeletePhoto(ctx, path)
		}
		return ChildProfile{}, err
	}
	if oldPath != "" && oldPath != path {
		_ = svc.photos.DeletePhoto(ctx, oldPath)
	}
	return svc.repo.GetChild(ctx, c.ID)
}

// OpenPhoto opens the photo of a child the actor may see.
func (svc *Service) OpenPhoto(ctx context.Context, actor user.User, id string) (io.ReadCloser, error) {
	c, err := svc.GetChild(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.PhotoPath == "" {
		return nil, core.NewNotFoundError("photo")
	}
	if _, err = svc.rec.Record(ctx, actor.ID, audit.Entry{
		Action:      audit.ActionDownload,
		Description: fmt.Sprintf("downloaded the photo of %s", c.Name),
		SubjectType: ChildSubjectType,
		SubjectID:   c.ID,
	}); err != nil {
		return nil, err
	}
	return svc.photos.OpenPhoto(ctx, c.PhotoPath)
}

// Invitations

// Invite emails a parent a link to create their portal account.
func (svc *Service) Invite(ctx context.Context, actor user.User, parentID string) error {
	p, err := svc.repo.GetParent(ctx, parentID)
	if err != nil {
		return err
	}
	if p.UserID != "" {
		return core.NewValidationError(ErrAlreadyJoined)
	}
	if p.Email == "" {
		return core.NewValidationError(ErrNoEmail, core.FieldError{Field: "email", Error: ErrNoEmail.Error()})
	}
	token, err := svc.tokens.makeToken(p)
	if err != nil {
		return errors.Wrap(err, "making invitation token")
	}

	_, err = svc.rec.Record(ctx, actor.ID, audit.Entry{
		Action:      audit.ActionRequest,
		Description: fmt.Sprintf("invited %s to the parent portal", p.Name),
		SubjectType: ParentSubjectType,
		SubjectID:   p.ID,
	})
	if err != nil {
		return err
	}

	s := svc.settings.GetOrDefaults(ctx)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.Name, Address: p.Email}},
		Subject:      "Join the " + s.SchoolName + " parent portal",
		TemplateName: "parent_invitation",
		TemplateData: map[string]interface{}{
			"Name":       p.Name,
			"SchoolName": s.SchoolName,
			"UID":        EncodeUID(p),
			"Token":      token,
		},
	})
	return nil
}

// Join creates the portal account of an invited parent and links it to their profile.
func (svc *Service) Join(ctx context.Context, in JoinInput) (user.User, error) {
	in.Username = core.CleanString(in.Username, true /* lower */)
	if err := svc.validate.Struct(in); err != nil {
		return user.User{}, err
	}
	invalid := core.NewValidationError(errInvalidToken)

	id, err := decodeUID(in.UID)
	if err != nil {
		return user.User{}, invalid
	}
	p, err := svc.repo.GetParent(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, invalid
		}
		return user.User{}, err
	}
	if err = svc.tokens.verifyToken(p, in.Token); err != nil {
		return user.User{}, core.NewValidationError(err)
	}

	nu := user.NewUser{
		Name:            p.Name,
		Username:        in.Username,
		Email:           p.Email,
		Password:        in.Password,
		PasswordConfirm: in.PasswordConfirm,
		Roles:           []string{user.RoleParent},
	}
	if err = svc.validate.Struct(nu); err != nil {
		return user.User{}, err
	}
	if err = svc.usrRepo.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		if err == user.ErrUsernameExists || err == user.ErrEmailExists {
			return user.User{}, core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return user.User{}, errors.Wrap(err, "checking user uniqueness")
	}

	now := svc.now().UTC()
	usr := user.User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return user.User{}, errors.Wrap(err, "hashing password")
	}

	_, err = svc.rec.Mutate(ctx, "", func(ctx context.Context) (audit.Entry, error) {
		var err error
		if usr, err = svc.usrRepo.Create(ctx, usr); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating parent user")
		}
		p.UserID = usr.ID
		p.UpdatedAt = now
		if _, err = svc.repo.UpdateParent(ctx, p); err != nil {
			return audit.Entry{}, errors.Wrap(err, "linking parent user")
		}
		return audit.Entry{
			ActorID:     usr.ID,
			Action:      audit.ActionJoin,
			Description: fmt.Sprintf("%s joined the parent portal", p.Name),
			SubjectType: ParentSubjectType,
			SubjectID:   p.ID,
			Properties:  map[string]interface{}{"user_id": usr.ID},
		}, nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}
