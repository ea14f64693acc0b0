package document

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/user"
)

const (
	rejectedTemplate     = "document_rejected"
	resubmissionTemplate = "document_resubmission"
)

// DecisionMailData is the template data of decision notifications.
type DecisionMailData struct {
	RecipientName string
	StudentID     string
	StudentName   string
	SlotName      string
	Note          string
}

// notifyDecision emails the student and their parents when a document needs their attention.
// The decision is already stored, so failures are logged only.
func (svc *Service) notifyDecision(ctx context.Context, rec Record, c Change) {
	if svc.mailSvc == nil {
		return
	}

	var tmpl, subject string
	slotName := rec.SlotID
	if slot, ok := svc.slotIdx[rec.SlotID]; ok {
		slotName = slot.Name
	}
	switch c.Action {
	case ActionReject:
		tmpl, subject = rejectedTemplate, slotName+" was rejected"
	case ActionRequestResubmission:
		tmpl, subject = resubmissionTemplate, "New upload required: "+slotName
	default:
		return
	}

	student, err := svc.usrSvc.GetByID(ctx, rec.OwnerID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("notifying %s decision on record %s: %v", c.Action, rec.ID, err), err)
		return
	}
	recipients := []user.User{student}
	guardians, err := svc.usrSvc.GetGuardians(ctx, rec.OwnerID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("getting guardians of %s: %v", rec.OwnerID, err), err)
	}
	recipients = append(recipients, guardians...)

	messages := make([]*core.EmailMessage, 0, len(recipients))
	for _, r := range recipients {
		if !r.IsActive || r.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: r.Name, Address: r.Email}},
			Subject:      subject,
			TemplateName: tmpl,
			TemplateData: DecisionMailData{
				RecipientName: r.Name,
				StudentID:     student.ID,
				StudentName:   student.Name,
				SlotName:      slotName,
				Note:          c.Note.String,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}
