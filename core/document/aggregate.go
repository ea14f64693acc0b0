package document

import "math"

// Summary holds the aggregates of an owner's records. It is computed on read, never stored.
type Summary struct {
	OwnerID              string `json:"owner_id"`
	RequiredCount        int    `json:"required_count"`
	ApprovedCount        int    `json:"approved_count"` // approved required slots
	CompletionPercentage int    `json:"completion_percentage"`
	PendingReviewCount   int    `json:"pending_review_count"`
}

// CompletionPercentage is the rounded share of required slots whose record is approved.
// It is 0 when no slot is required.
func CompletionPercentage(slots []Slot, records []Record) int {
	required, approved := countRequired(slots, records)
	if required == 0 {
		return 0
	}
	return int(math.Round(100 * float64(approved) / float64(required)))
}

// PendingReviewCount counts the records waiting for a reviewer's decision.
func PendingReviewCount(records []Record) int {
	var n int
	for _, rec := range records {
		if rec.Status == StatusUploaded {
			n++
		}
	}
	return n
}

// Summarize computes the aggregates of ownerID's records.
func Summarize(ownerID string, slots []Slot, records []Record) Summary {
	required, approved := countRequired(slots, records)
	return Summary{
		OwnerID:              ownerID,
		RequiredCount:        required,
		ApprovedCount:        approved,
		CompletionPercentage: CompletionPercentage(slots, records),
		PendingReviewCount:   PendingReviewCount(records),
	}
}

func countRequired(slots []Slot, records []Record) (required, approved int) {
	byStatus := make(map[string]Status, len(records))
	for _, rec := range records {
		byStatus[rec.SlotID] = rec.Status
	}
	for _, slot := range slots {
		if !slot.Required {
			continue
		}
		required++
		if byStatus[slot.ID] == StatusApproved {
			approved++
		}
	}
	return required, approved
}
