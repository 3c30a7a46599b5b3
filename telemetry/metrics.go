package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	audienceInputsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutti_audience_inputs_total",
		Help: "Count of accepted audience inputs.",
	})
	inputRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutti_input_rejections_total",
		Help: "Count of rejected audience inputs by reason.",
	}, []string{"reason"})
	consensusUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutti_consensus_updates_total",
		Help: "Count of per-parameter consensus updates.",
	})
	overridesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutti_performer_overrides_total",
		Help: "Count of accepted performer overrides.",
	})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tutti_tick_duration_milliseconds",
		Help:    "Time spent computing one consensus tick.",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
	})
	skippedTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutti_skipped_ticks_total",
		Help: "Count of ticks skipped after an overrun.",
	})
	activeParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tutti_active_participants",
		Help: "Distinct clients with inputs inside the temporal window.",
	})
	parameterValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tutti_parameter_value",
		Help: "Last reported value per parameter.",
	}, []string{"parameter"})
	busDroppedTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tutti_bus_dropped_events",
		Help: "Events dropped from slow subscriber queues.",
	})
)
