package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SCPICommandsTotal counts commands sent to instruments by kind
	// (write or query) and outcome.
	SCPICommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_scpi_commands_total",
		Help: "Total SCPI commands sent by instrument, kind and result",
	}, []string{"instrument", "kind", "result"})

	// SCPICommandDuration tracks the round-trip time of instrument queries.
	SCPICommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "benchd_scpi_command_duration_seconds",
		Help:    "Round-trip time of SCPI commands",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"instrument", "kind"})

	// SCPIErrorsTotal counts transport-level failures per instrument.
	SCPIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_scpi_errors_total",
		Help: "Total SCPI transport errors by instrument",
	}, []string{"instrument"})

	// InstrumentConnectsTotal counts connection attempts by driver and outcome.
	InstrumentConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_instrument_connects_total",
		Help: "Total instrument connection attempts by driver and result",
	}, []string{"driver", "result"})

	// ParameterReadsTotal counts parameter get operations.
	ParameterReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_parameter_reads_total",
		Help: "Total parameter reads by instrument",
	}, []string{"instrument"})

	// ParameterWritesTotal counts parameter set operations.
	ParameterWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_parameter_writes_total",
		Help: "Total parameter writes by instrument",
	}, []string{"instrument"})
)

// ObserveSCPICommand records one command round trip.
func ObserveSCPICommand(instrument, kind string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
		SCPIErrorsTotal.WithLabelValues(instrument).Inc()
	}
	SCPICommandsTotal.WithLabelValues(instrument, kind, result).Inc()
	SCPICommandDuration.WithLabelValues(instrument, kind).Observe(duration.Seconds())
}

// IncInstrumentConnect records a connection attempt outcome.
func IncInstrumentConnect(driver string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	InstrumentConnectsTotal.WithLabelValues(driver, result).Inc()
}

// IncParameterRead records a parameter get.
func IncParameterRead(instrument string) {
	ParameterReadsTotal.WithLabelValues(instrument).Inc()
}

// IncParameterWrite records a parameter set.
func IncParameterWrite(instrument string) {
	ParameterWritesTotal.WithLabelValues(instrument).Inc()
}
