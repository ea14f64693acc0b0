package document

import (
	"github.com/pkg/errors"
)

// Status is the lifecycle state of a Record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusUploaded Status = "uploaded"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Statuses lists every Status, in lifecycle order.
var Statuses = []Status{StatusPending, StatusUploaded, StatusApproved, StatusRejected, StatusExpired}

var errUnknownStatus = errors.New("unknown document status")

// ParseStatus converts a stored or user-supplied value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Wrapf(errUnknownStatus, "%q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUploaded, StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// RequiresFile reports whether a record in this status must have a file attached.
func (s Status) RequiresFile() bool {
	switch s {
	case StatusUploaded, StatusApproved, StatusRejected:
		return true
	case StatusPending, StatusExpired:
		return false
	}
	return false
}

// Describe returns the human phrase used in conflict messages, eg. "already under review".
func (s Status) Describe() string {
	switch s {
	case StatusPending:
		return "awaiting a file"
	case StatusUploaded:
		return "already under review"
	case StatusApproved:
		return "already approved"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	}
	return string(s)
}

func (s Status) String() string { return string(s) }

// Action is a lifecycle event.
type Action string

const (
	ActionAttach              Action = "attach"
	ActionApprove             Action = "approve"
	ActionReject              Action = "reject"
	ActionRequestResubmission Action = "request_resubmission"
	ActionExpire              Action = "expire"
)

// Actions lists every Action.
var Actions = []Action{ActionAttach, ActionApprove, ActionReject, ActionRequestResubmission, ActionExpire}

func (a Action) verb() string {
	switch a {
	case ActionAttach:
		return "attach a file to"
	case ActionApprove:
		return "approve"
	case ActionReject:
		return "reject"
	case ActionRequestResubmission:
		return "request a resubmission of"
	case ActionExpire:
		return "expire"
	}
	return string(a)
}

func (a Action) String() string { return string(a) }

// ResubmitPolicy decides what happens to the current file when a resubmission is requested.
type ResubmitPolicy string

const (
	// ResubmitClearFile drops the file fields, so pending records never carry a file.
	ResubmitClearFile ResubmitPolicy = "clear-file"
	// ResubmitKeepFile keeps the previous file downloadable until a new one is attached.
	ResubmitKeepFile ResubmitPolicy = "keep-file"
)

var errUnknownPolicy = errors.New("unknown resubmit policy")

func ParseResubmitPolicy(s string) (ResubmitPolicy, error) {
	switch p := ResubmitPolicy(s); p {
	case ResubmitClearFile, ResubmitKeepFile:
		return p, nil
	case "":
		return ResubmitClearFile, nil
	}
	return "", errors.Wrapf(errUnknownPolicy, "%q", s)
}
