package quiz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	answers       *prometheus.CounterVec
	staleAnswers  prometheus.Counter
	heartsBlocked prometheus.Counter
	heartsTaken   prometheus.Counter
	completed     *prometheus.CounterVec
}

// NewMetrics registers the engine's counters with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		answers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lessonquiz",
				Name:      "answers_total",
				Help:      "Graded answers by result",
			},
			[]string{"result"},
		),
		staleAnswers: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lessonquiz",
				Name:      "stale_answers_total",
				Help:      "Answers rejected because the attempt changed concurrently",
			},
		),
		heartsBlocked: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lessonquiz",
				Name:      "hearts_blocked_total",
				Help:      "Answers and entries blocked because the learner had no hearts",
			},
		),
		heartsTaken: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lessonquiz",
				Name:      "hearts_taken_total",
				Help:      "Hearts taken for wrong answers",
			},
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lessonquiz",
				Name:      "attempts_completed_total",
				Help:      "Completed attempts by final status",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) observeAnswer(correct bool) {
	result := "incorrect"
	if correct {
		result = "correct"
	}
	m.answers.WithLabelValues(result).Inc()
}
