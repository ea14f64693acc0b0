package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
)

const recordColumns = `id, slot_id, owner_id, status, file_url, file_name, file_size, uploaded_date,
	rejection_reason, resubmission_instructions, created_at, updated_at`

var (
	newID = newUUID // mockable

	recordOrderingColumns = map[string]string{
		"owner":         "owner_id",
		"slot":          "slot_id",
		"status":        "status",
		"uploaded_date": "uploaded_date",
		"created_at":    "created_at",
		"updated_at":    "updated_at",
	}
)

type recordRow struct {
	ID                       string      `db:"id"`
	SlotID                   string      `db:"slot_id"`
	OwnerID                  string      `db:"owner_id"`
	Status                   string      `db:"status"`
	FileURL                  null.String `db:"file_url"`
	FileName                 null.String `db:"file_name"`
	FileSize                 null.Int64  `db:"file_size"`
	UploadedDate             null.Time   `db:"uploaded_date"`
	RejectionReason          null.String `db:"rejection_reason"`
	ResubmissionInstructions null.String `db:"resubmission_instructions"`
	CreatedAt                time.Time   `db:"created_at"`
	UpdatedAt                time.Time   `db:"updated_at"`
}

// toRecord parses a stored row; malformed rows fail as validation errors.
func (row recordRow) toRecord() (document.Record, error) {
	status, err := document.ParseStatus(row.Status)
	if err != nil {
		return document.Record{}, core.NewValidationError(
			errors.Wrapf(err, "record %s", row.ID),
			core.FieldError{Field: "status", Error: err.Error()},
		)
	}
	rec := document.Record{
		ID:                       row.ID,
		SlotID:                   row.SlotID,
		OwnerID:                  row.OwnerID,
		Status:                   status,
		FileURL:                  row.FileURL,
		FileName:                 row.FileName,
		FileSize:                 row.FileSize,
		UploadedDate:             row.UploadedDate,
		RejectionReason:          row.RejectionReason,
		ResubmissionInstructions: row.ResubmissionInstructions,
		CreatedAt:                row.CreatedAt.UTC(),
		UpdatedAt:                row.UpdatedAt.UTC(),
	}
	if err = rec.Validate(); err != nil {
		return document.Record{}, errors.Wrapf(err, "record %s", row.ID)
	}
	return rec, nil
}

func toRecords(rows []recordRow) ([]document.Record, error) {
	records := make([]document.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

type transitionRow struct {
	ID         string      `db:"id"`
	RecordID   string      `db:"record_id"`
	FromStatus string      `db:"from_status"`
	ToStatus   string      `db:"to_status"`
	Action     string      `db:"action"`
	ActorID    string      `db:"actor_id"`
	Note       null.String `db:"note"`
	At         time.Time   `db:"at"`
}

func (row transitionRow) toTransition() (document.Transition, error) {
	from, err := document.ParseStatus(row.FromStatus)
	if err != nil {
		return document.Transition{}, errors.Wrapf(err, "transition %s", row.ID)
	}
	to, err := document.ParseStatus(row.ToStatus)
	if err != nil {
		return document.Transition{}, errors.Wrapf(err, "transition %s", row.ID)
	}
	return document.Transition{
		ID:       row.ID,
		RecordID: row.RecordID,
		From:     from,
		To:       to,
		Action:   document.Action(row.Action),
		ActorID:  row.ActorID,
		Note:     row.Note,
		At:       row.At.UTC(),
	}, nil
}

type documentRepository struct {
	db *sqlx.DB
}

var _ document.Repository = (*documentRepository)(nil)

func NewDocumentRepository(db *sqlx.DB) document.Repository {
	return &documentRepository{db: db}
}

func (repo *documentRepository) GetRecords(ctx context.Context, ownerID string) ([]document.Record, error) {
	var rows []recordRow
	q := `SELECT ` + recordColumns + ` FROM document_records WHERE owner_id = $1 ORDER BY created_at ASC, id ASC`
	if err := repo.db.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "selecting records")
	}
	return toRecords(rows)
}

func (repo *documentRepository) GetRecord(ctx context.Context, id string) (document.Record, error) {
	var row recordRow
	q := `SELECT ` + recordColumns + ` FROM document_records WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return document.Record{}, document.ErrNotFound
		}
		return document.Record{}, errors.Wrap(err, "selecting record")
	}
	return row.toRecord()
}

func (repo *documentRepository) CreateOrUpdateRecord(ctx context.Context, ownerID, slotID string) (document.Record, error) {
	var row recordRow
	now := document.NowFunc().UTC()
	q := `INSERT INTO document_records (id, slot_id, owner_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (owner_id, slot_id) DO UPDATE SET updated_at = document_records.updated_at
		RETURNING ` + recordColumns
	err := repo.db.GetContext(ctx, &row, q, newID(), slotID, ownerID, string(document.StatusPending), now)
	if err != nil {
		return document.Record{}, errors.Wrap(err, "upserting record")
	}
	return row.toRecord()
}

func (repo *documentRepository) SetStatus(
	ctx context.Context,
	id string,
	expected document.Status,
	change document.Change,
	tr document.Transition,
) (rec document.Record, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return document.Record{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row recordRow
	q := `UPDATE document_records SET
			status = $3, file_url = $4, file_name = $5, file_size = $6, uploaded_date = $7,
			rejection_reason = $8, resubmission_instructions = $9, updated_at = $10
		WHERE id = $1 AND status = $2
		RETURNING ` + recordColumns
	err = tx.GetContext(ctx, &row, q,
		id, string(expected), string(change.To),
		change.FileURL, change.FileName, change.FileSize, change.UploadedDate,
		change.RejectionReason, change.ResubmissionInstructions, change.At,
	)
	if err == sql.ErrNoRows {
		err = repo.staleOrMissing(ctx, tx, id, expected)
		return document.Record{}, err
	}
	if err != nil {
		return document.Record{}, errors.Wrap(err, "updating record status")
	}
	if rec, err = row.toRecord(); err != nil {
		return document.Record{}, err
	}

	q = `INSERT INTO document_transitions (id, record_id, from_status, to_status, action, actor_id, note, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.ExecContext(ctx, q,
		tr.ID, tr.RecordID, string(tr.From), string(tr.To), string(tr.Action), tr.ActorID, tr.Note, tr.At,
	)
	if err != nil {
		return document.Record{}, errors.Wrap(err, "inserting transition")
	}
	if err = tx.Commit(); err != nil {
		return document.Record{}, errors.Wrap(err, "committing status")
	}
	return rec, nil
}

// staleOrMissing explains why a conditional update matched no row.
func (repo *documentRepository) staleOrMissing(ctx context.Context, tx *sqlx.Tx, id string, expected document.Status) error {
	var actual string
	if err := tx.GetContext(ctx, &actual, `SELECT status FROM document_records WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return document.ErrNotFound
		}
		return errors.Wrap(err, "selecting record status")
	}
	status, err := document.ParseStatus(actual)
	if err != nil {
		return errors.Wrapf(err, "record %s", id)
	}
	return document.NewStaleError(id, expected, status)
}

func (repo *documentRepository) QueryRecords(ctx context.Context, filter document.QueryFilter, ordering ...core.DBOrdering) ([]document.Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = "+arg(filter.OwnerID))
	}
	if filter.SlotID != "" {
		conds = append(conds, "slot_id = "+arg(filter.SlotID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}

	q := `SELECT ` + recordColumns + ` FROM document_records`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += core.OrderByClause(ordering, recordOrderingColumns, "created_at ASC, id ASC")

	var rows []recordRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return toRecords(rows)
}

func (repo *documentRepository) GetHistory(ctx context.Context, recordID string) ([]document.Transition, error) {
	var found bool
	if err := repo.db.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM document_records WHERE id = $1)`, recordID); err != nil {
		return nil, errors.Wrap(err, "checking record")
	}
	if !found {
		return nil, document.ErrNotFound
	}

	var rows []transitionRow
	q := `SELECT id, record_id, from_status, to_status, action, actor_id, note, at
		FROM document_transitions WHERE record_id = $1 ORDER BY at ASC, id ASC`
	if err := repo.db.SelectContext(ctx, &rows, q, recordID); err != nil {
		return nil, errors.Wrap(err, "selecting transitions")
	}
	history := make([]document.Transition, 0, len(rows))
	for _, row := range rows {
		tr, err := row.toTransition()
		if err != nil {
			return nil, err
		}
		history = append(history, tr)
	}
	return history, nil
}
