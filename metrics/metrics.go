package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gherkit/gherkit/types"
)

const (
	MetricsNamespace = "gherkit"
)

var (
	Debug                bool = true
	validStatuses             = []types.ScenarioStatus{types.ScenarioStatusPassed, types.ScenarioStatusFailed, types.ScenarioStatusSkipped}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of executed scenarios",
	}, []string{
		"run_id",
		"feature",
		"status",
	})

	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "dispatches_total",
		Help:      "Count of work items dispatched to workers",
	}, []string{
		"run_id",
	})

	workerRecyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "worker_recycles_total",
		Help:      "Count of worker processes recycled",
	}, []string{
		"run_id",
		"reason",
	})

	lostItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "lost_items_total",
		Help:      "Count of work items lost to worker crashes",
	}, []string{
		"run_id",
	})

	activeWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "active_workers",
		Help:      "Number of live worker processes",
	}, []string{
		"run_id",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of orchestrated runs",
	}, []string{
		"run_id",
		"result",
	})

	runScenarioTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_total",
		Help:      "Total number of scenarios in a run",
	}, []string{
		"run_id",
	})

	runScenarioPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_passed",
		Help:      "Number of passed scenarios in a run",
	}, []string{
		"run_id",
	})

	runScenarioFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_failed",
		Help:      "Number of failed scenarios in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Duration of orchestrated runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordScenario(runID string, feature string, status types.ScenarioStatus) {
	if !isValidStatus(status) {
		log.Error("RecordScenario - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "scenarios_total",
			"run_id", runID,
			"feature", feature,
			"status", status)
	}
	scenariosTotal.WithLabelValues(runID, feature, string(status)).Inc()
}

func RecordDispatch(runID string) {
	dispatchesTotal.WithLabelValues(runID).Inc()
}

func RecordWorkerRecycle(runID string, reason string) {
	if Debug {
		log.Debug("metric inc",
			"m", "worker_recycles_total",
			"run_id", runID,
			"reason", reason)
	}
	workerRecyclesTotal.WithLabelValues(runID, reason).Inc()
}

func RecordLostItem(runID string) {
	lostItemsTotal.WithLabelValues(runID).Inc()
}

func SetActiveWorkers(runID string, n int) {
	activeWorkers.WithLabelValues(runID).Set(float64(n))
}

func RecordRun(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runScenarioTotal.WithLabelValues(runID).Add(float64(total))
	runScenarioPassed.WithLabelValues(runID).Add(float64(passed))
	runScenarioFailed.WithLabelValues(runID).Add(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidStatus(status types.ScenarioStatus) bool {
	return slices.Contains(validStatuses, status)
}
