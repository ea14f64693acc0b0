package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
)

var errHistoryIDTaken = errors.New("transition id already used")

type documentRepository struct {
	db *documentTable
}

var _ document.Repository = (*documentRepository)(nil)

func NewDocumentRepository(db *DB) document.Repository {
	return &documentRepository{db: db.document}
}

func (repo *documentRepository) GetRecords(_ context.Context, ownerID string) ([]document.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.query(document.QueryFilter{OwnerID: ownerID}, nil)
}

func (repo *documentRepository) GetRecord(_ context.Context, id string) (document.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return document.Record{}, document.ErrNotFound
	}
	if err := rec.Validate(); err != nil {
		return document.Record{}, errors.Wrapf(err, "record %s", id)
	}
	return *rec, nil
}

func (repo *documentRepository) CreateOrUpdateRecord(_ context.Context, ownerID, slotID string) (document.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, rec := range repo.db.table {
		if rec.OwnerID == ownerID && rec.SlotID == slotID {
			return *rec, nil
		}
	}
	now := document.NowFunc().UTC()
	rec := &document.Record{
		ID:        newID(),
		SlotID:    slotID,
		OwnerID:   ownerID,
		Status:    document.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.db.table[rec.ID] = rec
	return *rec, nil
}

func (repo *documentRepository) SetStatus(
	_ context.Context,
	id string,
	expected document.Status,
	change document.Change,
	tr document.Transition,
) (document.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return document.Record{}, document.ErrNotFound
	}
	if rec.Status != expected {
		return document.Record{}, document.NewStaleError(id, expected, rec.Status)
	}
	for _, t := range repo.db.history[id] {
		if t.ID == tr.ID {
			return document.Record{}, errHistoryIDTaken
		}
	}

	updated := change.ApplyTo(*rec)
	if err := updated.Validate(); err != nil {
		return document.Record{}, errors.Wrap(err, "validating updated record")
	}
	*rec = updated
	repo.db.history[id] = append(repo.db.history[id], tr)
	return updated, nil
}

func (repo *documentRepository) QueryRecords(_ context.Context, filter document.QueryFilter, ordering ...core.DBOrdering) ([]document.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.query(filter, ordering)
}

func (repo *documentRepository) GetHistory(_ context.Context, recordID string) ([]document.Transition, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if _, ok := repo.db.table[recordID]; !ok {
		return nil, document.ErrNotFound
	}
	history := make([]document.Transition, len(repo.db.history[recordID]))
	copy(history, repo.db.history[recordID])
	return history, nil
}

// query must be called with the table lock held.
func (repo *documentRepository) query(filter document.QueryFilter, ordering []core.DBOrdering) ([]document.Record, error) {
	records := make([]document.Record, 0)
	for _, rec := range repo.db.table {
		if !matches(*rec, filter) {
			continue
		}
		if err := rec.Validate(); err != nil {
			return nil, errors.Wrapf(err, "record %s", rec.ID)
		}
		records = append(records, *rec)
	}
	sortRecords(records, ordering)
	return records, nil
}

func matches(rec document.Record, filter document.QueryFilter) bool {
	if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
		return false
	}
	if filter.SlotID != "" && rec.SlotID != filter.SlotID {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, st := range filter.Statuses {
		if rec.Status == st {
			return true
		}
	}
	return false
}

// sortRecords orders by the given fields, then by creation date like the SQL repository.
func sortRecords(records []document.Record, ordering []core.DBOrdering) {
	less := func(a, b document.Record, field string) (bool, bool) { // (less, equal)
		switch field {
		case "owner":
			return a.OwnerID < b.OwnerID, a.OwnerID == b.OwnerID
		case "slot":
			return a.SlotID < b.SlotID, a.SlotID == b.SlotID
		case "status":
			return a.Status < b.Status, a.Status == b.Status
		case "uploaded_date":
			return a.UploadedDate.Time.Before(b.UploadedDate.Time), a.UploadedDate.Time.Equal(b.UploadedDate.Time)
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
	}
	ords := append(append([]core.DBOrdering(nil), ordering...),
		core.DBOrdering{Field: "created_at", Ascending: true},
		core.DBOrdering{Field: "id", Ascending: true},
	)
	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range ords {
			if ord.Field == "id" {
				return records[i].ID < records[j].ID
			}
			lt, eq := less(records[i], records[j], ord.Field)
			if eq {
				continue
			}
			if ord.Ascending {
				return lt
			}
			return !lt
		}
		return false
	})
}
