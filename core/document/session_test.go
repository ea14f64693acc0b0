package document

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu   sync.Mutex
	seen []int
}

func (r *recorder) observe(pct int) {
	r.mu.Lock()
	r.seen = append(r.seen, pct)
	r.mu.Unlock()
}

func TestUploadSession(t *testing.T) {
	t.Run("progress never decreases", func(t *testing.T) {
		r := new(recorder)
		s := NewUploadSession("rec", r.observe)
		s.Begin()
		for _, pct := range []int{10, 5, 10, 60, -3, 150} {
			s.Report(pct)
		}
		assert.Equal(t, []int{0, 10, 60, 100}, r.seen)
		assert.Equal(t, 100, s.Progress())

		assert.True(t, s.complete())
		assert.Equal(t, []int{0, 10, 60, 100}, r.seen, "100 is sent once")
		assert.Equal(t, OutcomeCompleted, s.Outcome())
		assert.True(t, s.Done())
	})

	t.Run("complete reports 100", func(t *testing.T) {
		r := new(recorder)
		s := NewUploadSession("rec", r.observe)
		s.Report(40)
		assert.True(t, s.complete())
		assert.Equal(t, []int{0, 40, 100}, r.seen, "an implicit begin comes first")
	})

	t.Run("ends once", func(t *testing.T) {
		r := new(recorder)
		s := NewUploadSession("rec", r.observe)
		s.Begin()
		s.Begin()
		s.Report(70)
		assert.True(t, s.end(OutcomeFailed))
		assert.Equal(t, 0, s.Progress())

		s.Report(90)
		assert.False(t, s.complete())
		assert.False(t, s.end(OutcomeCanceled))
		assert.Equal(t, OutcomeFailed, s.Outcome())
		assert.Equal(t, []int{0, 70}, r.seen)
	})

	t.Run("concurrent reports", func(t *testing.T) {
		r := new(recorder)
		s := NewUploadSession("rec", r.observe)
		var wg sync.WaitGroup
		for i := 1; i <= 100; i++ {
			wg.Add(1)
			go func(pct int) {
				defer wg.Done()
				s.Report(pct)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 100, s.Progress())
		assert.IsIncreasing(t, r.seen)
	})

	assert.NotEqual(t, NewUploadSession("rec").ID, NewUploadSession("rec").ID)
}
