package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the registration module.
// All methods are safe on a nil receiver so tests can omit metrics.
type Metrics struct {
	RegistrationDivergence prometheus.Counter
	DuplicateRegistrations prometheus.Counter
	ProfilesCreated        prometheus.Counter
	RegistrationsCreated   prometheus.Counter
	MergeFailures          *prometheus.CounterVec
	UploadsRejected        *prometheus.CounterVec
	SubmissionsDegraded    prometheus.Counter
	StatusTransitions      *prometheus.CounterVec
	IdentityPollTimeouts   prometheus.Counter
	EnsureDuration         prometheus.Histogram
	FinalizeDuration       prometheus.Histogram
}

// New registers the registration metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationDivergence: factory.NewCounter(prometheus.CounterOpts{
			Name: "ncc_registration_divergence_total",
			Help: "Profiles created whose registration could not be created in the same request",
		}),
		DuplicateRegistrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "ncc_registration_duplicates_total",
			Help: "Reconciliations that found more than one registration for a user",
		}),
		ProfilesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ncc_profiles_created_total",
			Help: "User profiles created by reconciliation",
		}),
		RegistrationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ncc_registrations_created_total",
			Help: "Registrations created by reconciliation or final submission",
		}),
		MergeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ncc_file_reference_merge_failures_total",
			Help: "File reference writes that failed, by record",
		}, []string{"record"}),
		UploadsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ncc_uploads_rejected_total",
			Help: "Uploads rejected before reaching the blob store, by reason",
		}, []string{"reason"}),
		SubmissionsDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ncc_submissions_degraded_total",
			Help: "Final submissions that returned without persisting",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ncc_status_transitions_total",
			Help: "Staff status transitions by axis and target value",
		}, []string{"axis", "to"}),
		IdentityPollTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ncc_identity_poll_timeouts_total",
			Help: "New accounts whose session did not become visible within the poll budget",
		}),
		EnsureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ncc_ensure_registered_duration_seconds",
			Help:    "Duration of EnsureRegistered (every authenticated page load)",
			Buckets: latencyBuckets,
		}),
		FinalizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ncc_finalize_submission_duration_seconds",
			Help:    "Duration of FinalizeSubmission",
			Buckets: latencyBuckets,
		}),
	}
}

func (m *Metrics) IncrementDivergence() {
	if m != nil {
		m.RegistrationDivergence.Inc()
	}
}

func (m *Metrics) IncrementDuplicates() {
	if m != nil {
		m.DuplicateRegistrations.Inc()
	}
}

func (m *Metrics) IncrementProfileCreated() {
	if m != nil {
		m.ProfilesCreated.Inc()
	}
}

func (m *Metrics) IncrementRegistrationCreated() {
	if m != nil {
		m.RegistrationsCreated.Inc()
	}
}

func (m *Metrics) IncrementMergeFailure(record string) {
	if m != nil {
		m.MergeFailures.WithLabelValues(record).Inc()
	}
}

func (m *Metrics) IncrementUploadRejected(reason string) {
	if m != nil {
		m.UploadsRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementSubmissionDegraded() {
	if m != nil {
		m.SubmissionsDegraded.Inc()
	}
}

func (m *Metrics) IncrementTransition(axis, to string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(axis, to).Inc()
	}
}

func (m *Metrics) IncrementIdentityPollTimeout() {
	if m != nil {
		m.IdentityPollTimeouts.Inc()
	}
}

// ObserveEnsure records the duration of an EnsureRegistered call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEnsure(start time.Time) {
	if m != nil {
		m.EnsureDuration.Observe(time.Since(start).Seconds())
	}
}

// ObserveFinalize records the duration of a FinalizeSubmission call.
func (m *Metrics) ObserveFinalize(start time.Time) {
	if m != nil {
		m.FinalizeDuration.Observe(time.Since(start).Seconds())
	}
}
