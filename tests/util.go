// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
	"github.com/trezcool/dossier/core/user"
	emailsvc "github.com/trezcool/dossier/services/email"
	logsvc "github.com/trezcool/dossier/services/logger"
	inmemdb "github.com/trezcool/dossier/storage/database/inmem"
)

// NewConfig returns the app configuration in test mode.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = true
	conf.SecretKey = "test-secret-key"
	return conf
}

// NewLogger returns a logger that neither reports to Rollbar nor prints.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with every app validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	document.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(t *testing.T, repo user.Repository, name, email string, roles []string, wards ...string) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		ID:        strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		Name:      name,
		Username:  strings.Split(email, "@")[0],
		Email:     email,
		IsActive:  true,
		Roles:     roles,
		Wards:     wards,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// TranscriptOptions has a single required "transcript" slot and the configured profiles.
func TranscriptOptions(conf *core.Config, policy ...document.ResubmitPolicy) document.Options {
	opts := document.Options{
		Slots:    []document.Slot{{ID: "transcript", Name: "Transcript", Required: true, Profile: "general"}},
		Profiles: document.ProfilesFromConfig(conf.Documents.Profiles),
		Policy:   document.ResubmitClearFile,
	}
	if len(policy) > 0 {
		opts.Policy = policy[0]
	}
	return opts
}

// FakeUploader is an in-memory document.Uploader.
type FakeUploader struct {
	mu    sync.Mutex
	calls int

	Err      error // returned after the body was read, like a transport failing mid-way
	Progress []int // reported to the session, in order
	Lost     int64 // bytes the transport drops without failing
	// OnUpload runs after the progress reports; a non-nil error fails the upload.
	OnUpload func(ctx context.Context, session *document.UploadSession) error
}

var _ document.Uploader = (*FakeUploader)(nil)

func (u *FakeUploader) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func (u *FakeUploader) Upload(ctx context.Context, session *document.UploadSession, f document.File) (document.UploadResult, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()

	for _, pct := range u.Progress {
		session.Report(pct)
	}
	if u.OnUpload != nil {
		if err := u.OnUpload(ctx, session); err != nil {
			return document.UploadResult{}, err
		}
	}

	var size int64
	if f.Body != nil {
		n, err := io.Copy(ioutil.Discard, f.Body)
		if err != nil {
			return document.UploadResult{}, err
		}
		size = n
	}
	if u.Err != nil {
		return document.UploadResult{}, u.Err
	}
	if err := ctx.Err(); err != nil {
		return document.UploadResult{}, err
	}
	if size -= u.Lost; size < 0 {
		size = 0
	}
	return document.UploadResult{
		URL:  fmt.Sprintf("https://files.test/%s/%s", session.RecordID, f.Name),
		Name: f.Name,
		Size: size,
	}, nil
}

// NewFile returns a file of size bytes.
func NewFile(name, contentType string, size int64) document.File {
	return document.File{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Body:        bytes.NewReader(make([]byte, size)),
	}
}

// DocumentFixture wires a document.Service over in-memory repositories.
type DocumentFixture struct {
	Conf     *core.Config
	DB       *inmemdb.DB
	DocRepo  document.Repository
	UsrRepo  user.Repository
	UsrSvc   *user.Service
	Uploader *FakeUploader
	Svc      *document.Service
}

func NewDocumentFixture(t *testing.T, opts ...document.Options) *DocumentFixture {
	t.Helper()

	conf := NewConfig()
	db := inmemdb.Open()
	f := &DocumentFixture{
		Conf:     conf,
		DB:       db,
		DocRepo:  inmemdb.NewDocumentRepository(db),
		UsrRepo:  inmemdb.NewUserRepository(db),
		Uploader: &FakeUploader{},
	}
	f.UsrSvc = user.NewService(f.UsrRepo)

	o := TranscriptOptions(conf)
	if len(opts) > 0 {
		o = opts[0]
	}
	logger := NewLogger(conf)
	core.ParseEmailTemplates(logger)

	validate, _ := NewValidator()
	svc, err := document.NewService(f.DocRepo, f.UsrSvc, f.Uploader, emailsvc.NewConsoleServiceMock(conf), logger, o, validate)
	if err != nil {
		t.Fatalf("NewService() failed: %v", err)
	}
	f.Svc = svc
	return f
}

// Provision creates the student's pending records.
func (f *DocumentFixture) Provision(t *testing.T, student user.User) []document.Record {
	t.Helper()
	records, err := f.Svc.Provision(context.Background(), student.ID)
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	return records
}
