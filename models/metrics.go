package models

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sceneLabel   = "scene"
	errTypeLabel = "error_type"
)

var (
	sceneEntities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_entities",
		Help: "The number of entities in a scene.",
	}, []string{sceneLabel})

	sceneViewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_viewers",
		Help: "The number of viewers in a scene.",
	}, []string{sceneLabel})

	sceneFrameLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scene_frame_latency",
		Help:    "The time it takes to move entities and compute visibility for a frame, in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{sceneLabel})

	sceneErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_errors",
		Help: "The errors that occurred while updating a scene.",
	}, []string{sceneLabel, errTypeLabel})
)

func instrumentEntityCount(scene string, count int) {
	sceneEntities.
		With(prometheus.Labels{sceneLabel: scene}).
		Set(float64(count))
}

func instrumentViewerCount(scene string, count int) {
	sceneViewers.
		With(prometheus.Labels{sceneLabel: scene}).
		Set(float64(count))
}

func instrumentFrame(scene string, d time.Duration) {
	sceneFrameLatency.
		With(prometheus.Labels{sceneLabel: scene}).
		Observe(d.Seconds())
}

func instrumentError(scene string, err error) {
	sceneErrors.
		With(prometheus.Labels{
			sceneLabel:   scene,
			errTypeLabel: errors.Type(err),
		}).
		Inc()
}
