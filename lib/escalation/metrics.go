package escalation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cohortUsers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verimail_cohort_users_total",
		Help: "User ids selected into an escalation cohort.",
	}, []string{"cohort"})

	batchesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verimail_batches_enqueued_total",
		Help: "Batches handed to the queue broker.",
	}, []string{"queue"})

	tickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verimail_tick_errors_total",
		Help: "Cohorts skipped in a tick because of an error.",
	}, []string{"cohort"})
)

// CohortResult summarises one cohort of a tick.
type CohortResult struct {
	Selected int   `json:"selected"`
	Batches  int   `json:"batches"`
	Err      error `json:"-"`
}

type TickResult map[string]CohortResult

func (r TickResult) Selected() int {
	n := 0
	for _, c := range r {
		n += c.Selected
	}
	return n
}

func (r TickResult) record(cohort, queue string, c CohortResult) {
	r[cohort] = c
	cohortUsers.WithLabelValues(cohort).Add(float64(c.Selected))
	batchesEnqueued.WithLabelValues(queue).Add(float64(c.Batches))
	if c.Err != nil {
		tickErrors.WithLabelValues(cohort).Inc()
	}
}
