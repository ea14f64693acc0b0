package echoapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/dossier/apps/api/echo"
	"github.com/trezcool/dossier/core/document"
	"github.com/trezcool/dossier/core/user"
	"github.com/trezcool/dossier/tests"
)

type actors struct {
	student, classmate, teacher, admin, parent, stranger user.User
}

func createActors(t *testing.T, fx *testutil.DocumentFixture) actors {
	student := testutil.CreateUser(t, fx.UsrRepo, "Hero", "hero@test.cd", []string{user.RoleStudent})
	return actors{
		student:   student,
		classmate: testutil.CreateUser(t, fx.UsrRepo, "Zoe", "zoe@test.cd", []string{user.RoleStudent}),
		teacher:   testutil.CreateUser(t, fx.UsrRepo, "Teacher", "teacher@test.cd", []string{user.RoleTeacher}),
		admin:     testutil.CreateUser(t, fx.UsrRepo, "Admin", "admin@test.cd", []string{user.RoleAdmin}),
		parent:    testutil.CreateUser(t, fx.UsrRepo, "Mama", "mama@test.cd", []string{user.RoleParent}, student.ID),
		stranger:  testutil.CreateUser(t, fx.UsrRepo, "Stranger", "stranger@test.cd", []string{user.RoleParent}),
	}
}

var pdf = []byte("%PDF-1.4 transcript")

func Test_home(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "masomo_documents_uploaded_bytes_total")
}

func Test_documentApi_querySlots(t *testing.T) {
	app, fx := setup(t)
	a := createActors(t, fx)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/documents/slots", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Any user", path: "/v1/documents/slots", token: getToken(t, fx, a.parent), wantCode: http.StatusOK,
			wantData: marchallObj(t, fx.Svc.Slots()),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_documentApi_queryOwner(t *testing.T) {
	app, fx := setup(t)
	a := createActors(t, fx)
	records := fx.Provision(t, a.student)

	path := "/v1/students/" + a.student.ID + "/documents"
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	want := marchallObj(t, echoapi.OwnerDocumentsResponse{
		Records: records,
		Summary: document.Summary{OwnerID: a.student.ID, RequiredCount: 1},
	})

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "owner", path: path, token: getToken(t, fx, a.student), wantCode: http.StatusOK, wantData: want},
		{name: "teacher", path: path, token: getToken(t, fx, a.teacher), wantCode: http.StatusOK, wantData: want},
		{name: "admin", path: path, token: getToken(t, fx, a.admin), wantCode: http.StatusOK, wantData: want},
		{name: "linked parent", path: path, token: getToken(t, fx, a.parent), wantCode: http.StatusOK, wantData: want},
		{name: "other student", path: path, token: getToken(t, fx, a.classmate), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "unlinked parent", path: path, token: getToken(t, fx, a.stranger), wantCode: http.StatusForbidden, wantData: forbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_documentApi_provision(t *testing.T) {
	app, fx := setup(t)
	a := createActors(t, fx)

	tests := []httpTest{
		{
			name: "Admin required", path: "/v1/students/" + a.student.ID + "/documents/provision",
			token: getToken(t, fx, a.teacher), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown student", path: "/v1/students/nobody/documents/provision",
			token: getToken(t, fx, a.admin), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "not a student", path: "/v1/students/" + a.teacher.ID + "/documents/provision",
			token: getToken(t, fx, a.admin), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"owner": "documents can only be provisioned for students"}),
		},
		{
			name: "student", path: "/v1/students/" + a.student.ID + "/documents/provision",
			token: getToken(t, fx, a.admin), wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	records, err := fx.DocRepo.GetRecords(context.Background(), a.student.ID)
	require.NoError(t, err)
	if assert.Len(t, records, 1) {
		assert.Equal(t, document.StatusPending, records[0].Status)
	}
}

func Test_documentApi_submit(t *testing.T) {
	app, fx := setup(t)
	a := createActors(t, fx)
	fx.Provision(t, a.student)

	path := "/v1/students/" + a.student.ID + "/documents/transcript"
	studentToken := getToken(t, fx, a.student)

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, "", "transcript.pdf", pdf)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("only the owner submits", func(t *testing.T) {
		for _, usr := range []user.User{a.teacher, a.parent, a.classmate} {
			req, rec := newUploadRequest(t, path, getToken(t, fx, usr), "transcript.pdf", pdf)
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code, usr.Name)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, studentToken, "", nil)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": "a file is required"}),
		}, rec)
	})

	t.Run("unsupported type", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, studentToken, "transcript.exe", pdf)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": "unsupported file type; accepted types: pdf, jpeg, jpg, png"}),
		}, rec)
	})

	t.Run("unknown slot", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/students/"+a.student.ID+"/documents/passport", studentToken, "passport.pdf", pdf)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("upload failure", func(t *testing.T) {
		fx.Uploader.Err = errors.New("storage unavailable")
		defer func() { fx.Uploader.Err = nil }()

		req, rec := newUploadRequest(t, path, studentToken, "transcript.pdf", pdf)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadGateway,
			wantData: marchallObj(t, echoapi.UploadErrorResponse{Error: "upload failed; please try again", File: "transcript.pdf"}),
		}, rec)
	})

	var submitted document.Record
	t.Run("success", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, studentToken, "transcript.pdf", pdf)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		decode(t, rec, &submitted)
		assert.Equal(t, document.StatusUploaded, submitted.Status)
		assert.Equal(t, "transcript.pdf", submitted.FileName.String)
		assert.Equal(t, int64(len(pdf)), submitted.FileSize.Int64)
		assert.True(t, submitted.UploadedDate.Valid)
	})

	t.Run("locked while under review", func(t *testing.T) {
		calls := fx.Uploader.Calls()
		req, rec := newUploadRequest(t, path, studentToken, "transcript-v2.pdf", pdf)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, echoapi.ConflictResponse{
				Error:    "document is already under review; wait for the reviewer's decision",
				RecordID: submitted.ID,
				Status:   document.StatusUploaded,
			}),
		}, rec)
		assert.Equal(t, calls, fx.Uploader.Calls(), "no upload for a locked document")
	})
}

func Test_documentApi_review(t *testing.T) {
	app, fx := setup(t)
	a := createActors(t, fx)
	fx.Provision(t, a.student)

	submit := func(t *testing.T) document.Record {
		req, rec := newUploadRequest(t, "/v1/students/"+a.student.ID+"/documents/transcript", getToken(t, fx, a.student), "transcript.pdf", pdf)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got document.Record
		decode(t, rec, &got)
		return got
	}
	teacherToken := getToken(t, fx, a.teacher)
	rec0 := submit(t)

	t.Run("review queue", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/documents/review-queue?slot=transcript&ordering=-uploaded_date", teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got echoapi.ReviewQueueResponse
		decode(t, rec, &got)
		assert.Equal(t, 1, got.PendingReviewCount)
		if assert.Len(t, got.Records, 1) {
			assert.Equal(t, rec0.ID, got.Records[0].ID)
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/documents/review-queue", getToken(t, fx, a.student))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("reviewers only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+rec0.ID+"/approve", getToken(t, fx, a.student))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+rec0.ID+"/reject", teacherToken, []byte(`{"reason": "   "}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		got, err := fx.DocRepo.GetRecord(context.Background(), rec0.ID)
		require.NoError(t, err)
		assert.Equal(t, document.StatusUploaded, got.Status)
	})

	t.Run("reject", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+rec0.ID+"/reject", teacherToken, []byte(`{"reason": "blurry scan"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got document.Record
		decode(t, rec, &got)
		assert.Equal(t, document.StatusRejected, got.Status)
		assert.Equal(t, "blurry scan", got.RejectionReason.String)
	})

	t.Run("approve a rejected document", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+rec0.ID+"/approve", teacherToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, echoapi.ConflictResponse{
				Error:  "cannot approve a document that is rejected",
				Status: document.StatusRejected,
				Action: document.ActionApprove,
			}),
		}, rec)
	})

	t.Run("resubmit then approve", func(t *testing.T) {
		rec1 := submit(t)
		assert.Equal(t, rec0.ID, rec1.ID)
		assert.False(t, rec1.RejectionReason.Valid)

		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+rec0.ID+"/approve", getToken(t, fx, a.admin))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/students/"+a.student.ID+"/documents", getToken(t, fx, a.student))
		app.ServeHTTP(rec, req)
		var got map[string]interface{}
		decode(t, rec, &got)
		assert.EqualValues(t, 100, got["completion_percentage"])
		assert.EqualValues(t, 0, got["pending_review_count"])
	})

	t.Run("request resubmission", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPost, "/v1/documents/"+rec0.ID+"/request-resubmission", teacherToken,
			[]byte(`{"instructions": "please upload the 2026 transcript"}`),
		)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got document.Record
		decode(t, rec, &got)
		assert.Equal(t, document.StatusPending, got.Status)
		assert.Equal(t, "please upload the 2026 transcript", got.ResubmissionInstructions.String)
		assert.False(t, got.FileURL.Valid, "file cleared under the clear-file policy")
	})

	t.Run("history", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/documents/"+rec0.ID+"/history", getToken(t, fx, a.parent))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got []document.Transition
		decode(t, rec, &got)
		actions := make([]document.Action, len(got))
		for i, tr := range got {
			actions[i] = tr.Action
		}
		assert.Equal(t, []document.Action{
			document.ActionAttach,
			document.ActionReject,
			document.ActionAttach,
			document.ActionApprove,
			document.ActionRequestResubmission,
		}, actions)
	})

	t.Run("hidden from others", func(t *testing.T) {
		for _, path := range []string{"/v1/documents/" + rec0.ID, "/v1/documents/" + rec0.ID + "/history"} {
			req, rec := newAuthRequest(http.MethodGet, path, getToken(t, fx, a.classmate))
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/nope/approve", teacherToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "document not found"})}, rec)
	})
}

func Test_documentApi_guardianOverview(t *testing.T) {
	app, fx := setup(t)
	a := createActors(t, fx)
	records := fx.Provision(t, a.student)

	tests := []httpTest{
		{
			name: "Parent required", path: "/v1/guardians/me/documents", token: getToken(t, fx, a.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "no wards", path: "/v1/guardians/me/documents", token: getToken(t, fx, a.stranger),
			wantCode: http.StatusOK, wantData: []byte(`[]`),
		},
		{
			name: "ward summaries", path: "/v1/guardians/me/documents", token: getToken(t, fx, a.parent),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []document.WardOverview{{
				StudentID:   a.student.ID,
				StudentName: a.student.Name,
				Records:     records,
				Summary:     document.Summary{OwnerID: a.student.ID, RequiredCount: 1},
			}}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_deactivatedAccount(t *testing.T) {
	app, fx := setup(t)
	gone, err := fx.UsrRepo.CreateUser(context.Background(), user.User{
		ID:       "gone",
		Name:     "Gone",
		Email:    "gone@test.cd",
		IsActive: false,
		Roles:    []string{user.RoleTeacher},
	})
	require.NoError(t, err)

	req, rec := newAuthRequest(http.MethodGet, "/v1/documents/review-queue", getToken(t, fx, gone))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})}, rec)
}
