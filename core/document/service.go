package document

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/user"
)

var (
	NowFunc   = time.Now       // mockable
	newIDFunc = uuid.NewString // mockable
)

type (
	// Repository is the document record store. It is the single source of truth for
	// record status: nothing above it caches statuses.
	Repository interface {
		GetRecords(ctx context.Context, ownerID string) ([]Record, error)
		GetRecord(ctx context.Context, id string) (Record, error)
		// CreateOrUpdateRecord returns the record of (ownerID, slotID), creating it as pending
		// when missing. It never changes the lifecycle fields of an existing record.
		CreateOrUpdateRecord(ctx context.Context, ownerID, slotID string) (Record, error)
		// SetStatus stores change only if the record status still is expected, and appends tr
		// to the record history in the same write. A mismatch fails with a ConflictError.
		SetStatus(ctx context.Context, id string, expected Status, change Change, tr Transition) (Record, error)
		QueryRecords(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, error)
		GetHistory(ctx context.Context, recordID string) ([]Transition, error)
	}

	// Uploader streams a file to binary storage. It reports progress through the session
	// and returns the durable location of the file. Timeouts are its own business.
	Uploader interface {
		Upload(ctx context.Context, session *UploadSession, f File) (UploadResult, error)
	}

	Options struct {
		Slots    []Slot
		Profiles map[string]UploadProfile
		Policy   ResubmitPolicy `validate:"omitempty,resubmitpolicy"` // defaults to clear-file
	}

	Service struct {
		repo     Repository
		usrSvc   *user.Service
		uploader Uploader
		mailSvc  core.EmailService
		logger   core.Logger

		slots    []Slot
		slotIdx  map[string]Slot
		profiles map[string]UploadProfile
		policy   ResubmitPolicy
	}

	SubmitRequest struct {
		OwnerID string
		SlotID  string
		File    File
	}

	// WardOverview is what a parent sees of one of their children.
	WardOverview struct {
		StudentID   string   `json:"student_id"`
		StudentName string   `json:"student_name"`
		Records     []Record `json:"records"`
		Summary     Summary  `json:"summary"`
	}
)

// OptionsFromConfig builds the service options from the app configuration.
func OptionsFromConfig(conf core.DocumentsConfig) (Options, error) {
	policy, err := ParseResubmitPolicy(conf.ResubmitPolicy)
	if err != nil {
		return Options{}, errors.Wrap(err, "parsing documents.resubmitPolicy")
	}
	return Options{
		Slots:    SlotsFromConfig(conf.Slots),
		Profiles: ProfilesFromConfig(conf.Profiles),
		Policy:   policy,
	}, nil
}

func (opts Options) Validate(validate *validator.Validate) error {
	if err := validate.Struct(opts); err != nil {
		return err
	}
	seen := make(map[string]bool, len(opts.Slots))
	for _, slot := range opts.Slots {
		if slot.ID == "" {
			return errors.New("document slot without id")
		}
		if seen[slot.ID] {
			return errors.Errorf("duplicate document slot %q", slot.ID)
		}
		seen[slot.ID] = true
		if _, ok := opts.Profiles[slot.Profile]; !ok {
			return errors.Errorf("document slot %q: unknown upload profile %q", slot.ID, slot.Profile)
		}
	}
	return nil
}

func NewService(
	repo Repository,
	usrSvc *user.Service,
	uploader Uploader,
	mailSvc core.EmailService,
	logger core.Logger,
	opts Options,
	validate *validator.Validate,
) (*Service, error) {
	if err := opts.Validate(validate); err != nil {
		return nil, errors.Wrap(err, "validating document options")
	}
	svc := &Service{
		repo:     repo,
		usrSvc:   usrSvc,
		uploader: uploader,
		mailSvc:  mailSvc,
		logger:   logger,
		slots:    opts.Slots,
		slotIdx:  make(map[string]Slot, len(opts.Slots)),
		profiles: opts.Profiles,
		policy:   opts.Policy,
	}
	if svc.policy == "" {
		svc.policy = ResubmitClearFile
	}
	for _, slot := range opts.Slots {
		svc.slotIdx[slot.ID] = slot
	}
	return svc, nil
}

func (svc *Service) Policy() ResubmitPolicy { return svc.policy }

func (svc *Service) Slots() []Slot {
	slots := make([]Slot, len(svc.slots))
	copy(slots, svc.slots)
	return slots
}

func (svc *Service) Slot(id string) (Slot, error) {
	slot, ok := svc.slotIdx[id]
	if !ok {
		return Slot{}, errors.Wrapf(ErrSlotNotFound, "%q", id)
	}
	return slot, nil
}

// Profile returns the upload profile of the slot slotID.
func (svc *Service) Profile(slotID string) (UploadProfile, error) {
	slot, err := svc.Slot(slotID)
	if err != nil {
		return UploadProfile{}, err
	}
	return svc.profiles[slot.Profile], nil
}

// Provision creates the missing pending records of every slot for the student ownerID.
func (svc *Service) Provision(ctx context.Context, ownerID string) ([]Record, error) {
	owner, err := svc.usrSvc.GetByID(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "getting owner")
	}
	if !owner.IsStudent() {
		return nil, core.NewFieldError("owner", "documents can only be provisioned for students")
	}

	records := make([]Record, 0, len(svc.slots))
	for _, slot := range svc.slots {
		rec, err := svc.repo.CreateOrUpdateRecord(ctx, owner.ID, slot.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "provisioning slot %q", slot.ID)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Records returns the records of ownerID with their aggregates.
func (svc *Service) Records(ctx context.Context, actor user.User, ownerID string) ([]Record, Summary, error) {
	if !actor.CanView(ownerID) {
		return nil, Summary{}, errors.Wrap(ErrPermissionDenied, "listing documents")
	}
	records, err := svc.repo.GetRecords(ctx, ownerID)
	if err != nil {
		return nil, Summary{}, errors.Wrap(err, "getting records")
	}
	return records, Summarize(ownerID, svc.slots, records), nil
}

func (svc *Service) Record(ctx context.Context, actor user.User, id string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, errors.Wrap(err, "getting record")
	}
	if !actor.CanView(rec.OwnerID) {
		return Record{}, errors.Wrap(ErrPermissionDenied, "getting record")
	}
	return rec, nil
}

func (svc *Service) History(ctx context.Context, actor user.User, id string) ([]Transition, error) {
	if _, err := svc.Record(ctx, actor, id); err != nil {
		return nil, err
	}
	history, err := svc.repo.GetHistory(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "getting history")
	}
	return history, nil
}

// Query lists records across owners for reviewers.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, error) {
	if !actor.CanReview() {
		return nil, errors.Wrap(ErrPermissionDenied, "querying records")
	}
	records, err := svc.repo.QueryRecords(ctx, filter, ordering...)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return records, nil
}

// ReviewQueue lists the records waiting for a decision and their count.
func (svc *Service) ReviewQueue(ctx context.Context, actor user.User, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, int, error) {
	filter.Statuses = []Status{StatusUploaded}
	records, err := svc.Query(ctx, actor, filter, ordering...)
	if err != nil {
		return nil, 0, err
	}
	return records, PendingReviewCount(records), nil
}

// GuardianOverview returns the records and aggregates of every ward of the parent actor.
func (svc *Service) GuardianOverview(ctx context.Context, actor user.User) ([]WardOverview, error) {
	if !actor.IsActive || !actor.IsParent() {
		return nil, errors.Wrap(ErrPermissionDenied, "getting guardian overview")
	}

	overviews := make([]WardOverview, len(actor.Wards))
	g, gctx := errgroup.WithContext(ctx)
	for i, wardID := range actor.Wards {
		i, wardID := i, wardID
		g.Go(func() error {
			ward, err := svc.usrSvc.GetByID(gctx, wardID)
			if err != nil {
				return errors.Wrapf(err, "getting ward %s", wardID)
			}
			records, err := svc.repo.GetRecords(gctx, wardID)
			if err != nil {
				return errors.Wrapf(err, "getting records of ward %s", wardID)
			}
			overviews[i] = WardOverview{
				StudentID:   ward.ID,
				StudentName: ward.Name,
				Records:     records,
				Summary:     Summarize(ward.ID, svc.slots, records),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return overviews, nil
}

// Submit validates the file, uploads it and attaches it to the owner's record for the slot.
// Progress is relayed to observers in non-decreasing order.
func (svc *Service) Submit(ctx context.Context, actor user.User, req SubmitRequest, observers ...ProgressObserver) (Record, error) {
	if !actor.CanSubmitFor(req.OwnerID) {
		return Record{}, errors.Wrap(ErrPermissionDenied, "submitting document")
	}
	profile, err := svc.Profile(req.SlotID)
	if err != nil {
		return Record{}, err
	}
	if err = profile.Check(req.File); err != nil {
		observeTransition(ActionAttach, err)
		return Record{}, err
	}

	rec, err := svc.findRecord(ctx, req.OwnerID, req.SlotID)
	if err != nil {
		return Record{}, err
	}
	// local guard: documents under review are locked, do not even upload
	if err = Allowed(rec, ActionAttach); err != nil {
		observeTransition(ActionAttach, err)
		return Record{}, err
	}

	session := NewUploadSession(rec.ID, observers...)
	if err = ctx.Err(); err != nil {
		session.end(OutcomeCanceled)
		uploadFailuresTotal.WithLabelValues("canceled").Inc()
		return Record{}, &UploadError{File: req.File, Err: err}
	}
	// the selection may come back from a failed attempt with its body already read
	if err = req.File.Rewind(); err != nil {
		session.end(OutcomeFailed)
		uploadFailuresTotal.WithLabelValues("unreadable").Inc()
		return Record{}, &UploadError{File: req.File, Err: err}
	}
	session.Begin()

	res, err := svc.uploader.Upload(ctx, session, req.File)
	if err != nil {
		outcome, reason := OutcomeFailed, "transport"
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			outcome, reason = OutcomeCanceled, "canceled"
		}
		session.end(outcome)
		uploadFailuresTotal.WithLabelValues(reason).Inc()
		return Record{}, &UploadError{File: req.File, Err: err}
	}
	if err = ctx.Err(); err != nil {
		session.end(OutcomeCanceled)
		uploadFailuresTotal.WithLabelValues("canceled").Inc()
		svc.logger.Warn(fmt.Sprintf("submission of record %s canceled after upload; orphaned file %s", rec.ID, res.URL))
		return Record{}, &UploadError{File: req.File, Err: err}
	}
	if res.Size != req.File.Size {
		session.end(OutcomeFailed)
		uploadFailuresTotal.WithLabelValues("incomplete").Inc()
		svc.logger.Warn(fmt.Sprintf(
			"upload of record %s stored %d of %d bytes; orphaned file %s", rec.ID, res.Size, req.File.Size, res.URL,
		))
		err = errors.Wrapf(ErrIncompleteUpload, "stored %d of %d bytes", res.Size, req.File.Size)
		return Record{}, &UploadError{File: req.File, Err: err}
	}

	actr := Actor{ID: actor.ID, Role: RoleSubmitter}
	change, err := Apply(rec, Event{Action: ActionAttach, Actor: actr, Upload: res}, NowFunc())
	if err != nil {
		session.end(OutcomeFailed)
		observeTransition(ActionAttach, err)
		return Record{}, errors.Wrap(err, "attaching file")
	}

	updated, err := svc.repo.SetStatus(ctx, rec.ID, rec.Status, change, change.Transition(newIDFunc()))
	observeTransition(ActionAttach, err)
	if err != nil {
		session.end(OutcomeFailed)
		var cErr *ConflictError
		if errors.As(err, &cErr) {
			cErr.OrphanedURL = res.URL
			orphanedUploadsTotal.Inc()
			svc.logger.Warn(fmt.Sprintf("record %s changed during upload; orphaned file %s", rec.ID, res.URL), err)
		}
		return Record{}, errors.Wrap(err, "attaching file")
	}
	session.complete()
	uploadedBytesTotal.Add(float64(res.Size))
	return updated, nil
}

func (svc *Service) findRecord(ctx context.Context, ownerID, slotID string) (Record, error) {
	records, err := svc.repo.QueryRecords(ctx, QueryFilter{OwnerID: ownerID, SlotID: slotID})
	if err != nil {
		return Record{}, errors.Wrap(err, "finding record")
	}
	if len(records) == 0 {
		return Record{}, errors.Wrapf(ErrNotFound, "no %q document provisioned for %s", slotID, ownerID)
	}
	return records[0], nil
}

// Approve accepts an uploaded document. Approving an approved document is a no-op.
func (svc *Service) Approve(ctx context.Context, actor user.User, id string) (Record, error) {
	return svc.review(ctx, actor, id, Event{Action: ActionApprove})
}

// Reject refuses an uploaded document; reason is mandatory.
func (svc *Service) Reject(ctx context.Context, actor user.User, id, reason string) (Record, error) {
	return svc.review(ctx, actor, id, Event{Action: ActionReject, Reason: reason})
}

// RequestResubmission sends an uploaded or approved document back to pending.
func (svc *Service) RequestResubmission(ctx context.Context, actor user.User, id, instructions string) (Record, error) {
	return svc.review(ctx, actor, id, Event{Action: ActionRequestResubmission, Instructions: instructions})
}

// Expire marks an approved document as outdated.
func (svc *Service) Expire(ctx context.Context, id string) (Record, error) {
	return svc.transition(ctx, id, Event{Action: ActionExpire, Actor: SystemActor})
}

func (svc *Service) review(ctx context.Context, actor user.User, id string, ev Event) (Record, error) {
	if !actor.CanReview() {
		return Record{}, errors.Wrapf(ErrPermissionDenied, "%s document", ev.Action)
	}
	ev.Actor = Actor{ID: actor.ID, Role: RoleReviewer}
	return svc.transition(ctx, id, ev)
}

func (svc *Service) transition(ctx context.Context, id string, ev Event) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, errors.Wrap(err, "getting record")
	}
	if ev.Action == ActionRequestResubmission {
		ev.Policy = svc.policy
	}

	change, err := Apply(rec, ev, NowFunc())
	if err != nil {
		observeTransition(ev.Action, err)
		return Record{}, err
	}
	if change.Noop {
		observeTransition(ev.Action, nil)
		return rec, nil
	}

	updated, err := svc.repo.SetStatus(ctx, rec.ID, rec.Status, change, change.Transition(newIDFunc()))
	observeTransition(ev.Action, err)
	if err != nil {
		return Record{}, errors.Wrapf(err, "setting status %s", change.To)
	}
	svc.notifyDecision(ctx, updated, change)
	return updated, nil
}
