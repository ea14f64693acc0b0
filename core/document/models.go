package document

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dossier/core"
)

// Slot is a named document requirement, eg. "Transcript".
type Slot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Profile     string `json:"profile"` // name of the UploadProfile files must match
}

// Record tracks one owner's submission for one Slot.
type Record struct {
	ID                       string      `json:"id"`
	SlotID                   string      `json:"slot_id"`
	OwnerID                  string      `json:"owner_id"`
	Status                   Status      `json:"status"`
	FileURL                  null.String `json:"file_url"`
	FileName                 null.String `json:"file_name"`
	FileSize                 null.Int64  `json:"file_size"`
	UploadedDate             null.Time   `json:"uploaded_date"` // most recent successful attach
	RejectionReason          null.String `json:"rejection_reason"`
	ResubmissionInstructions null.String `json:"resubmission_instructions"`
	CreatedAt                time.Time   `json:"created_at"` // UTC
	UpdatedAt                time.Time   `json:"updated_at"` // UTC
}

// HasFile reports whether a file is attached to the record.
func (r Record) HasFile() bool {
	return r.FileURL.Valid && r.FileURL.String != ""
}

// Validate checks the record invariants. Stores run it on every record they load.
func (r Record) Validate() error {
	var flds []core.FieldError
	add := func(field, msg string) {
		flds = append(flds, core.FieldError{Field: field, Error: msg})
	}

	if r.ID == "" {
		add("id", "missing record id")
	}
	if r.SlotID == "" {
		add("slot_id", "missing slot id")
	}
	if r.OwnerID == "" {
		add("owner_id", "missing owner id")
	}
	if !r.Status.Valid() {
		add("status", "unknown status "+string(r.Status))
	}

	switch r.Status {
	case StatusPending:
		// a kept file only exists after a resubmission request, which always follows an attach
		if r.HasFile() && !r.UploadedDate.Valid {
			add("file_url", "pending document has a file but no upload date")
		}
	case StatusUploaded, StatusApproved, StatusRejected:
		if !r.HasFile() {
			add("file_url", r.Status.String()+" document has no file")
		}
	case StatusExpired:
	}

	if r.Status == StatusRejected {
		if !r.RejectionReason.Valid || strings.TrimSpace(r.RejectionReason.String) == "" {
			add("rejection_reason", "rejected document has no rejection reason")
		}
	} else if r.RejectionReason.Valid {
		add("rejection_reason", "only rejected documents carry a rejection reason")
	}
	if r.ResubmissionInstructions.Valid && r.Status != StatusPending {
		add("resubmission_instructions", "only pending documents carry resubmission instructions")
	}

	if len(flds) > 0 {
		return core.NewValidationError(errMalformedRecord, flds...)
	}
	return nil
}

// Transition is one entry of a record's history.
type Transition struct {
	ID       string      `json:"id"`
	RecordID string      `json:"record_id"`
	From     Status      `json:"from"`
	To       Status      `json:"to"`
	Action   Action      `json:"action"`
	ActorID  string      `json:"actor_id"`
	Note     null.String `json:"note"` // rejection reason or resubmission instructions
	At       time.Time   `json:"at"`   // UTC
}

// File is a file selected for upload. Body is seekable so that a kept selection can be
// uploaded again after a failure.
type File struct {
	Name        string
	Size        int64 // declared size, checked against the stored size
	ContentType string
	Body        io.ReadSeeker `json:"-"`
}

// Rewind moves the body back to its start.
func (f File) Rewind() error {
	if f.Body == nil {
		return errNoFileBody
	}
	if _, err := f.Body.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewinding file")
	}
	return nil
}

// Ext returns the lower-cased extension of the file name, without the dot.
func (f File) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// UploadResult is what the Uploader returns for a stored file.
type UploadResult struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// QueryFilter narrows record queries; empty fields match everything.
type QueryFilter struct {
	OwnerID  string   `query:"owner"`
	SlotID   string   `query:"slot"`
	Statuses []Status `query:"status" validate:"omitempty,dive,docstatus"`
}

func (qf *QueryFilter) Clean() {
	qf.OwnerID = core.CleanString(qf.OwnerID)
	qf.SlotID = core.CleanString(qf.SlotID)
}

func (qf *QueryFilter) Validate(validate *validator.Validate) error {
	qf.Clean()
	return validate.Struct(qf)
}
