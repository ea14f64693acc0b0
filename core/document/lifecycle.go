package document

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dossier/core"
)

// ActorRole is the part an actor plays in the document workflow.
type ActorRole int

const (
	RoleSubmitter ActorRole = iota + 1
	RoleReviewer
	RoleSystem
)

func (r ActorRole) String() string {
	switch r {
	case RoleSubmitter:
		return "submitter"
	case RoleReviewer:
		return "reviewer"
	case RoleSystem:
		return "system"
	}
	return "unknown"
}

type Actor struct {
	ID   string
	Role ActorRole
}

// SystemActor triggers the maintenance transitions run from the admin CLI.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// Event asks the engine to perform Action on a record.
type Event struct {
	Action Action
	Actor  Actor

	Upload       UploadResult   // attach
	Reason       string         // reject
	Instructions string         // request_resubmission
	Policy       ResubmitPolicy // request_resubmission
}

// Change is the outcome of a valid Event: the new status and the full set of lifecycle fields.
type Change struct {
	RecordID string
	From     Status
	To       Status
	Action   Action
	ActorID  string
	Note     null.String
	At       time.Time

	// Noop is set when the record already is in the requested state (approve twice).
	Noop bool

	FileURL                  null.String
	FileName                 null.String
	FileSize                 null.Int64
	UploadedDate             null.Time
	RejectionReason          null.String
	ResubmissionInstructions null.String
}

// ApplyTo returns rec with the change applied.
func (c Change) ApplyTo(rec Record) Record {
	if c.Noop {
		return rec
	}
	rec.Status = c.To
	rec.FileURL = c.FileURL
	rec.FileName = c.FileName
	rec.FileSize = c.FileSize
	rec.UploadedDate = c.UploadedDate
	rec.RejectionReason = c.RejectionReason
	rec.ResubmissionInstructions = c.ResubmissionInstructions
	rec.UpdatedAt = c.At
	return rec
}

// Transition returns the history entry of the change.
func (c Change) Transition(id string) Transition {
	return Transition{
		ID:       id,
		RecordID: c.RecordID,
		From:     c.From,
		To:       c.To,
		Action:   c.Action,
		ActorID:  c.ActorID,
		Note:     c.Note,
		At:       c.At,
	}
}

// transitions maps every action to its allowed {from: to} statuses.
var transitions = map[Action]map[Status]Status{
	ActionAttach: {
		StatusPending:  StatusUploaded,
		StatusRejected: StatusUploaded,
		StatusExpired:  StatusUploaded,
		StatusApproved: StatusUploaded,
	},
	ActionApprove: {
		StatusUploaded: StatusApproved,
	},
	ActionReject: {
		StatusUploaded: StatusRejected,
	},
	ActionRequestResubmission: {
		StatusUploaded: StatusPending,
		StatusApproved: StatusPending,
	},
	ActionExpire: {
		StatusApproved: StatusExpired,
	},
}

var actionRoles = map[Action]ActorRole{
	ActionAttach:              RoleSubmitter,
	ActionApprove:             RoleReviewer,
	ActionReject:              RoleReviewer,
	ActionRequestResubmission: RoleReviewer,
	ActionExpire:              RoleSystem,
}

var errUnknownAction = errors.New("unknown document action")

// Allowed checks that action may be applied to rec in its current status.
func Allowed(rec Record, action Action) error {
	targets, ok := transitions[action]
	if !ok {
		return errors.Wrapf(errUnknownAction, "%q", action)
	}
	if action == ActionApprove && rec.Status == StatusApproved {
		return nil
	}
	if _, ok = targets[rec.Status]; ok {
		return nil
	}
	if action == ActionAttach {
		// the only status attach is not defined from
		return newLockedError(rec)
	}
	return &InvalidStateError{Action: action, Status: rec.Status}
}

// AllowedActions lists the actions role may apply to rec.
func AllowedActions(rec Record, role ActorRole) []Action {
	actions := make([]Action, 0, 2)
	for _, action := range Actions {
		if actionRoles[action] != role {
			continue
		}
		if _, ok := transitions[action][rec.Status]; ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// Apply validates ev against rec and returns the resulting Change. It never mutates anything:
// storing the change is up to the caller.
func Apply(rec Record, ev Event, now time.Time) (Change, error) {
	if role, ok := actionRoles[ev.Action]; !ok {
		return Change{}, errors.Wrapf(errUnknownAction, "%q", ev.Action)
	} else if role != ev.Actor.Role {
		return Change{}, errors.Wrapf(ErrPermissionDenied, "%s cannot %s documents", ev.Actor.Role, ev.Action)
	}
	if err := validatePayload(ev); err != nil {
		return Change{}, err
	}
	if err := Allowed(rec, ev.Action); err != nil {
		return Change{}, err
	}

	c := Change{
		RecordID:                 rec.ID,
		From:                     rec.Status,
		To:                       transitions[ev.Action][rec.Status],
		Action:                   ev.Action,
		ActorID:                  ev.Actor.ID,
		At:                       now.UTC(),
		FileURL:                  rec.FileURL,
		FileName:                 rec.FileName,
		FileSize:                 rec.FileSize,
		UploadedDate:             rec.UploadedDate,
		RejectionReason:          rec.RejectionReason,
		ResubmissionInstructions: rec.ResubmissionInstructions,
	}

	switch ev.Action {
	case ActionAttach:
		c.FileURL = null.StringFrom(ev.Upload.URL)
		c.FileName = null.StringFrom(ev.Upload.Name)
		c.FileSize = null.Int64From(ev.Upload.Size)
		c.UploadedDate = null.TimeFrom(c.At)
		c.RejectionReason = null.String{}
		c.ResubmissionInstructions = null.String{}
	case ActionApprove:
		if rec.Status == StatusApproved {
			c.To = StatusApproved
			c.Noop = true
		}
	case ActionReject:
		c.RejectionReason = null.StringFrom(strings.TrimSpace(ev.Reason))
		c.Note = c.RejectionReason
	case ActionRequestResubmission:
		c.RejectionReason = null.String{}
		c.ResubmissionInstructions = null.NewString(strings.TrimSpace(ev.Instructions), strings.TrimSpace(ev.Instructions) != "")
		c.Note = c.ResubmissionInstructions
		if ev.Policy != ResubmitKeepFile {
			c.FileURL = null.String{}
			c.FileName = null.String{}
			c.FileSize = null.Int64{}
			c.UploadedDate = null.Time{}
		}
	case ActionExpire:
	}
	return c, nil
}

func validatePayload(ev Event) error {
	switch ev.Action {
	case ActionAttach:
		var flds []core.FieldError
		if strings.TrimSpace(ev.Upload.URL) == "" {
			flds = append(flds, core.FieldError{Field: "file_url", Error: "uploaded file has no URL"})
		}
		if strings.TrimSpace(ev.Upload.Name) == "" {
			flds = append(flds, core.FieldError{Field: "file_name", Error: "uploaded file has no name"})
		}
		if ev.Upload.Size < 0 {
			flds = append(flds, core.FieldError{Field: "file_size", Error: "invalid file size"})
		}
		if len(flds) > 0 {
			return core.NewValidationError(errors.New("invalid upload result"), flds...)
		}
	case ActionReject:
		if strings.TrimSpace(ev.Reason) == "" {
			return core.NewFieldError("reason", "a rejection reason is required")
		}
	case ActionRequestResubmission:
		if ev.Policy != "" && ev.Policy != ResubmitClearFile && ev.Policy != ResubmitKeepFile {
			return errors.Wrapf(errUnknownPolicy, "%q", ev.Policy)
		}
	case ActionApprove, ActionExpire:
	}
	return nil
}
