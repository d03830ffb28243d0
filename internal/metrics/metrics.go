package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinsTotal counts persisted check-ins by classified status.
	CheckinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_checkins_total",
		Help: "Persisted attendance check-ins by status.",
	}, []string{"status"})

	// RejectionsTotal counts check-in attempts rejected before persistence.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_checkin_rejections_total",
		Help: "Rejected check-in attempts by error kind.",
	}, []string{"kind"})

	// CheckoutsTotal counts successful check-outs.
	CheckoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_checkouts_total",
		Help: "Successful attendance check-outs.",
	})

	// SessionsSweptTotal counts sessions removed by the background sweeper.
	SessionsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_sessions_swept_total",
		Help: "Expired sessions removed by the sweeper.",
	})
)
