package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/user"
	appfs "github.com/trezcool/shule/fs"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/files"
	"github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database/dummy"
)

const SecretKey = "test-secret"

// Env is a complete set of services over the in-memory database.
type Env struct {
	DB         *dummydb.DB
	Conf       *core.Config
	Logger     core.Logger
	Translator ut.Translator
	Validate   *validator.Validate
	Mail       *emailsvc.ServiceMock
	Photos     *filesvc.LocalStore

	UsrRepo    user.Repository
	FamilyRepo family.Repository

	AuditRec      *audit.Recorder
	SettingsSvc   *settings.Service
	UserSvc       *user.Service
	YearSvc       *academicyear.Service
	FamilySvc     *family.Service
	EnrollmentSvc *enrollment.Service
	ExamSvc       *exam.Service
	SessionSvc    *session.Service
	AttendanceSvc *attendance.Service
	InvoiceSvc    *invoice.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewConfig()
	conf.TestMode = true
	conf.SecretKey = SecretKey
	conf.AppName = "Shule"
	conf.FrontendBaseURL = "http://localhost:3000"
	conf.DefaultFromEmail = mail.Address{Name: "Shule", Address: "noreply@localhost"}

	lgr := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)

	tmpls, err := core.ParseEmailTemplates(appfs.FS, "assets/templates/email", conf.FrontendBaseURL, true)
	if err != nil {
		t.Fatalf("ParseEmailTemplates(): %v", err)
	}
	mailSvc := emailsvc.NewServiceMock(emailsvc.Options{
		AppName:          conf.AppName,
		DefaultFromEmail: conf.DefaultFromEmail,
		Templates:        tmpls,
		Logger:           lgr,
	})
	photos, err := filesvc.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore(): %v", err)
	}

	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	sessionRepo := dummydb.NewSessionRepository(db)

	rec := audit.NewRecorder(db, dummydb.NewAuditRepository(db))
	settingsSvc := settings.NewService(dummydb.NewSettingsStore(db), rec, validate)
	usrSvc := user.NewService(usrRepo, rec, validate)
	yearSvc := academicyear.NewService(dummydb.NewAcademicYearRepository(db), rec, validate)
	familyRepo := dummydb.NewFamilyRepository(db)
	familySvc := family.NewService(family.Deps{
		Repo:            familyRepo,
		UserRepo:        usrRepo,
		Recorder:        rec,
		Validate:        validate,
		Settings:        settingsSvc,
		Photos:          photos,
		Mail:            mailSvc,
		SecretKey:       conf.SecretKey,
		FrontendBaseURL: conf.FrontendBaseURL,
	})
	attendanceSvc := attendance.NewService(dummydb.NewAttendanceRepository(db), sessionRepo, familySvc, rec, validate)

	return &Env{
		DB:            db,
		Conf:          conf,
		Logger:        lgr,
		Translator:    translator,
		Validate:      validate,
		Mail:          mailSvc,
		Photos:        photos,
		UsrRepo:       usrRepo,
		FamilyRepo:    familyRepo,
		AuditRec:      rec,
		SettingsSvc:   settingsSvc,
		UserSvc:       usrSvc,
		YearSvc:       yearSvc,
		FamilySvc:     familySvc,
		EnrollmentSvc: enrollment.NewService(dummydb.NewEnrollmentRepository(db), yearSvc, familySvc, rec, validate),
		ExamSvc:       exam.NewService(dummydb.NewExamRepository(db), yearSvc, rec, validate),
		SessionSvc:    session.NewService(sessionRepo, attendanceSvc, yearSvc, usrSvc, rec, validate),
		AttendanceSvc: attendanceSvc,
		InvoiceSvc: invoice.NewService(invoice.Deps{
			Repo:     dummydb.NewInvoiceRepository(db),
			Family:   familySvc,
			Recorder: rec,
			Validate: validate,
			Settings: settingsSvc,
			Mail:     mailSvc,
		}),
	}
}

// Reset empties the database and the outbox.
func (env *Env) Reset() {
	env.DB.Reset()
	env.Mail.Reset()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.Create(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateAdmin(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Admin "+uname, uname, uname+"@test.cd", "", []string{user.RoleAdmin}, true)
}

func CreateTeacher(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Teacher "+uname, uname, uname+"@test.cd", "", []string{user.RoleTeacher}, true)
}

func CreateParentUser(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Parent "+uname, uname, uname+"@test.cd", "", []string{user.RoleParent}, true)
}

// CreateYear creates an academic year through the service, optionally as the current one.
func (env *Env) CreateYear(t *testing.T, actor user.User, name string, start, end core.Date, current bool) academicyear.AcademicYear {
	t.Helper()
	ctx := context.Background()
	ay, err := env.YearSvc.Create(ctx, actor, academicyear.Input{Name: name, StartDate: start, EndDate: end, IsCurrent: current})
	if err != nil {
		t.Fatalf("CreateYear(): %v", err)
	}
	return ay
}

// CreateFamily creates a parent profile, linked to parentUsr when given, with one child per name.
func (env *Env) CreateFamily(t *testing.T, actor user.User, parentUsr *user.User, name, email string, children ...string) (family.ParentProfile, []family.ChildProfile) {
	t.Helper()
	ctx := context.Background()
	p, err := env.FamilySvc.CreateParent(ctx, actor, family.ParentInput{Name: name, Email: email})
	if err != nil {
		t.Fatalf("CreateFamily(): %v", err)
	}
	if parentUsr != nil {
		p.UserID = parentUsr.ID
		if p, err = env.FamilyRepo.UpdateParent(ctx, p); err != nil {
			t.Fatalf("CreateFamily(): %v", err)
		}
	}
	kids := make([]family.ChildProfile, 0, len(children))
	for _, cname := range children {
		c, err := env.FamilySvc.CreateChild(ctx, actor, family.ChildInput{
			ParentProfileID: p.ID,
			Name:            cname,
			DateOfBirth:     core.NewDate(2015, time.March, 1),
			Gender:          "female",
		})
		if err != nil {
			t.Fatalf("CreateFamily(): %v", err)
		}
		kids = append(kids, c)
	}
	return p, kids
}
