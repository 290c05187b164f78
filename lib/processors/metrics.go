package processors

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK         = "ok"
	resultSkipped    = "skipped"
	resultMailFailed = "mail_failed"
	resultFailed     = "failed"
)

var processed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "verimail_processed_total",
	Help: "Queued user ids handled by the batch processors.",
}, []string{"action", "result"})

func observe(action, result string) {
	processed.WithLabelValues(action, result).Inc()
}
