package octree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	treeLabel = "tree"
)

var (
	octreeEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "octree_entries",
		Help: "The number of entries indexed in an octree.",
	}, []string{treeLabel})

	octreeNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "octree_nodes",
		Help: "The number of nodes of an octree.",
	}, []string{treeLabel})

	octreeRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_rebuilds",
		Help: "The number of times an octree has been rebuilt.",
	}, []string{treeLabel})

	octreeRayNodeVisits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_ray_node_visits",
		Help: "The number of nodes visited by ray tests.",
	}, []string{treeLabel})

	octreeVisibilityPassLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "octree_visibility_pass_latency",
		Help:    "The time it takes to mark the nodes visible for a viewer, in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{treeLabel})
)

func (t *Tree) instrumentSize() {
	labels := prometheus.Labels{treeLabel: t.name}
	octreeEntries.With(labels).Set(float64(len(t.entries)))
	octreeNodes.With(labels).Set(float64(t.nodeCount))
}

func instrumentRebuild(name string) {
	octreeRebuilds.
		With(prometheus.Labels{treeLabel: name}).
		Inc()
}

func instrumentRayNodeVisits(name string, visits uint64) {
	octreeRayNodeVisits.
		With(prometheus.Labels{treeLabel: name}).
		Add(float64(visits))
}

func instrumentVisibilityPass(name string, d time.Duration) {
	octreeVisibilityPassLatency.
		With(prometheus.Labels{treeLabel: name}).
		Observe(d.Seconds())
}
