package sqlxrepos

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
)

var (
	recordCols = []string{
		"id", "slot_id", "owner_id", "status", "file_url", "file_name", "file_size", "uploaded_date",
		"rejection_reason", "resubmission_instructions", "created_at", "updated_at",
	}
	ts = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func pendingRow(rows *sqlmock.Rows, id, owner string) *sqlmock.Rows {
	return rows.AddRow(id, "transcript", owner, "pending", nil, nil, nil, nil, nil, nil, ts, ts)
}

func uploadedRow(rows *sqlmock.Rows, id, owner string) *sqlmock.Rows {
	return rows.AddRow(id, "transcript", owner, "uploaded",
		"https://files.test/"+id+"/a.pdf", "a.pdf", int64(42), ts, nil, nil, ts, ts)
}

func TestDocumentRepository_GetRecord(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)
	q := regexp.QuoteMeta(`FROM document_records WHERE id = $1`)

	mock.ExpectQuery(q).WithArgs("r1").WillReturnRows(uploadedRow(sqlmock.NewRows(recordCols), "r1", "s1"))
	rec, err := repo.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, document.StatusUploaded, rec.Status)
	assert.Equal(t, null.Int64From(42), rec.FileSize)
	assert.True(t, rec.HasFile())

	mock.ExpectQuery(q).WithArgs("r2").WillReturnRows(sqlmock.NewRows(recordCols))
	_, err = repo.GetRecord(ctx, "r2")
	assert.Equal(t, document.ErrNotFound, err)

	t.Run("malformed rows", func(t *testing.T) {
		mock.ExpectQuery(q).WithArgs("r3").WillReturnRows(
			sqlmock.NewRows(recordCols).AddRow("r3", "transcript", "s1", "archived", nil, nil, nil, nil, nil, nil, ts, ts),
		)
		_, err := repo.GetRecord(ctx, "r3")
		assert.True(t, core.IsValidationError(err))

		// approved without a file
		mock.ExpectQuery(q).WithArgs("r4").WillReturnRows(
			sqlmock.NewRows(recordCols).AddRow("r4", "transcript", "s1", "approved", nil, nil, nil, nil, nil, nil, ts, ts),
		)
		_, err = repo.GetRecord(ctx, "r4")
		assert.True(t, core.IsValidationError(err))
	})
}

func TestDocumentRepository_CreateOrUpdateRecord(t *testing.T) {
	origID, origNow := newID, document.NowFunc
	defer func() { newID, document.NowFunc = origID, origNow }()
	newID = func() string { return "r1" }
	document.NowFunc = func() time.Time { return ts }

	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (owner_id, slot_id) DO UPDATE`)).
		WithArgs("r1", "transcript", "s1", "pending", ts).
		WillReturnRows(pendingRow(sqlmock.NewRows(recordCols), "r1", "s1"))

	rec, err := repo.CreateOrUpdateRecord(context.Background(), "s1", "transcript")
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, document.StatusPending, rec.Status)
}

func TestDocumentRepository_SetStatus(t *testing.T) {
	ctx := context.Background()
	update := regexp.QuoteMeta(`UPDATE document_records SET`)
	selectStatus := regexp.QuoteMeta(`SELECT status FROM document_records WHERE id = $1`)

	change := document.Change{
		RecordID:     "r1",
		From:         document.StatusPending,
		To:           document.StatusUploaded,
		Action:       document.ActionAttach,
		ActorID:      "s1",
		At:           ts,
		FileURL:      null.StringFrom("https://files.test/r1/a.pdf"),
		FileName:     null.StringFrom("a.pdf"),
		FileSize:     null.Int64From(42),
		UploadedDate: null.TimeFrom(ts),
	}
	tr := change.Transition("tr1")

	t.Run("updated", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(update).
			WithArgs("r1", "pending", "uploaded", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), ts).
			WillReturnRows(uploadedRow(sqlmock.NewRows(recordCols), "r1", "s1"))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO document_transitions`)).
			WithArgs("tr1", "r1", "pending", "uploaded", "attach", "s1", sqlmock.AnyArg(), ts).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		rec, err := NewDocumentRepository(db).SetStatus(ctx, "r1", document.StatusPending, change, tr)
		require.NoError(t, err)
		assert.Equal(t, document.StatusUploaded, rec.Status)
	})

	t.Run("stale", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(recordCols))
		mock.ExpectQuery(selectStatus).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("approved"))
		mock.ExpectRollback()

		_, err := NewDocumentRepository(db).SetStatus(ctx, "r1", document.StatusPending, change, tr)
		var cErr *document.ConflictError
		require.ErrorAs(t, err, &cErr)
		assert.Equal(t, document.StatusApproved, cErr.Status)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(recordCols))
		mock.ExpectQuery(selectStatus).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		_, err := NewDocumentRepository(db).SetStatus(ctx, "r1", document.StatusPending, change, tr)
		assert.Equal(t, document.ErrNotFound, err)
	})

	t.Run("history insert fails", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(update).WillReturnRows(uploadedRow(sqlmock.NewRows(recordCols), "r1", "s1"))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO document_transitions`)).WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		_, err := NewDocumentRepository(db).SetStatus(ctx, "r1", document.StatusPending, change, tr)
		assert.Error(t, err)
	})
}

func TestDocumentRepository_QueryRecords(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(
		`FROM document_records WHERE owner_id = $1 AND status = ANY($2) ORDER BY updated_at DESC`,
	)).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnRows(uploadedRow(sqlmock.NewRows(recordCols), "r1", "s1"))

	records, err := repo.QueryRecords(context.Background(),
		document.QueryFilter{OwnerID: "s1", Statuses: []document.Status{document.StatusUploaded}},
		core.DBOrdering{Field: "updated_at"}, core.DBOrdering{Field: "password"},
	)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM document_records ORDER BY created_at ASC, id ASC`)).
		WillReturnRows(pendingRow(pendingRow(sqlmock.NewRows(recordCols), "r1", "s1"), "r2", "s2"))
	records, err = repo.QueryRecords(context.Background(), document.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDocumentRepository_GetHistory(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)
	exists := regexp.QuoteMeta(`SELECT EXISTS`)

	mock.ExpectQuery(exists).WithArgs("r9").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	_, err := repo.GetHistory(ctx, "r9")
	assert.Equal(t, document.ErrNotFound, err)

	mock.ExpectQuery(exists).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM document_transitions WHERE record_id = $1`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "record_id", "from_status", "to_status", "action", "actor_id", "note", "at"}).
			AddRow("tr1", "r1", "pending", "uploaded", "attach", "s1", nil, ts).
			AddRow("tr2", "r1", "uploaded", "rejected", "reject", "t1", "blurry", ts.Add(time.Hour)))

	history, err := repo.GetHistory(ctx, "r1")
	require.NoError(t, err)
	if assert.Len(t, history, 2) {
		assert.Equal(t, document.ActionReject, history[1].Action)
		assert.Equal(t, null.StringFrom("blurry"), history[1].Note)
		assert.False(t, history[0].Note.Valid)
	}
}
