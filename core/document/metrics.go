package document

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/dossier/core"
)

const (
	outcomeOK       = "ok"
	outcomeConflict = "conflict"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "masomo",
		Subsystem: "documents",
		Name:      "transitions_total",
		Help:      "Document lifecycle transitions by action and outcome.",
	}, []string{"action", "outcome"})

	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "masomo",
		Subsystem: "documents",
		Name:      "uploaded_bytes_total",
		Help:      "Bytes of files attached to documents.",
	})

	uploadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "masomo",
		Subsystem: "documents",
		Name:      "upload_failures_total",
		Help:      "Failed document uploads by reason.",
	}, []string{"reason"})

	orphanedUploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "masomo",
		Subsystem: "documents",
		Name:      "orphaned_uploads_total",
		Help:      "Uploaded files that could not be attached because the document changed meanwhile.",
	})
)

func observeTransition(action Action, err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case IsConflict(err):
		outcome = outcomeConflict
	case core.IsValidationError(err):
		outcome = outcomeInvalid
	default:
		outcome = outcomeError
	}
	transitionsTotal.WithLabelValues(string(action), outcome).Inc()
}
