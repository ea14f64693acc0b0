package document

import (
	"sync"

	"github.com/google/uuid"
)

// Outcome is the state of an UploadSession.
type Outcome int

const (
	OutcomeInFlight Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInFlight:
		return "in_flight"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	}
	return "unknown"
}

// ProgressObserver receives the progress of an upload, in percent.
type ProgressObserver func(percent int)

// UploadSession tracks one in-flight submission. It lives for a single Submit call
// and is handed to the Uploader explicitly.
//
// Reported progress never decreases and the session ends at most once.
type UploadSession struct {
	ID       string
	RecordID string

	mu        sync.Mutex
	began     bool
	progress  int
	outcome   Outcome
	observers []ProgressObserver
}

func NewUploadSession(recordID string, observers ...ProgressObserver) *UploadSession {
	return &UploadSession{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		observers: observers,
	}
}

// Begin signals the start of the transfer; observers receive 0.
func (s *UploadSession) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.began || s.outcome != OutcomeInFlight {
		return
	}
	s.began = true
	s.notify(0)
}

// Report relays the transfer progress. Values are clamped to 0..100 and only
// increases are forwarded to observers.
func (s *UploadSession) Report(percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != OutcomeInFlight {
		return
	}
	if !s.began {
		s.began = true
		s.notify(0)
	}
	if percent <= s.progress {
		return
	}
	s.progress = percent
	s.notify(percent)
}

func (s *UploadSession) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *UploadSession) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Done reports whether the session has ended.
func (s *UploadSession) Done() bool {
	return s.Outcome() != OutcomeInFlight
}

func (s *UploadSession) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != OutcomeInFlight {
		return false
	}
	if s.progress < 100 {
		s.progress = 100
		s.notify(100)
	}
	s.outcome = OutcomeCompleted
	return true
}

// end terminates the session without completion; partial progress is dropped.
func (s *UploadSession) end(outcome Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != OutcomeInFlight {
		return false
	}
	s.outcome = outcome
	s.progress = 0
	return true
}

// notify must be called with s.mu held.
func (s *UploadSession) notify(percent int) {
	for _, obs := range s.observers {
		obs(percent)
	}
}
