package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "story_service"

var (
	// Registry holds the service's collectors plus Go and process metrics.
	Registry = prometheus.NewRegistry()

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route", "status"},
	)

	StoriesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stories_created_total",
		Help:      "Stories successfully created.",
	})

	StoriesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stories_deleted_total",
		Help:      "Stories deleted by their author.",
	})

	Reactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reaction_toggles_total",
		Help:      "Reaction toggles by outcome.",
	}, []string{"action"})

	Comments = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "comments_added_total",
		Help:      "Comments appended to stories.",
	})

	NearbyResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "nearby_results",
		Help:      "Stories returned per proximity query.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
	})

	once sync.Once
)

func Init() {
	once.Do(func() {
		Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			httpDuration, StoriesCreated, StoriesDeleted, Reactions, Comments, NearbyResults,
		)
	})
}

// ReactionToggled counts one toggle outcome.
func ReactionToggled(added bool) {
	action := "removed"
	if added {
		action = "added"
	}
	Reactions.WithLabelValues(action).Inc()
}

// Middleware observes request latency per route template.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = apperr.HTTPStatus(err)
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		route := c.Route().Path
		httpDuration.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves Registry for Prometheus scraping.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
