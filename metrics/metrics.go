// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter names incremented by the gateway.
const (
	LineProcess     = "line.process"
	ConnectionNew   = "connection.new"
	ConnectionForce = "connection.forceclose"
	ConnectionReuse = "connection.reuse"
	ConnectionClose = "connection.close"
	MessageIn       = "mqtt.message.in"
)

// Names lists every counter the gateway increments, in a stable order.
var Names = []string{
	LineProcess,
	ConnectionNew,
	ConnectionForce,
	ConnectionReuse,
	ConnectionClose,
	MessageIn,
}

// Sink receives counter increments.
type Sink interface {
	Inc(name string)
}

// Inc increments name on sink. A nil sink discards the increment.
func Inc(sink Sink, name string) {
	if sink == nil {
		return
	}
	sink.Inc(name)
}

// Counters is a Sink backed by a Prometheus counter vector with one
// label, "name", holding the counter name.
type Counters struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	metric   string
}

// NewCounters creates counters in a private registry. Every name in
// Names is initialized to zero so it is exported before its first
// increment.
func NewCounters(namespace string) *Counters {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Gateway events by counter name.",
	}, []string{"name"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(events)
	for _, name := range Names {
		events.WithLabelValues(name)
	}

	return &Counters{
		registry: registry,
		events:   events,
		metric:   prometheus.BuildFQName(namespace, "", "events_total"),
	}
}

// Inc implements Sink.
func (c *Counters) Inc(name string) {
	c.events.WithLabelValues(name).Inc()
}

// Registry returns the registry the counters are registered in, for
// callers that want to add collectors of their own.
func (c *Counters) Registry() *prometheus.Registry {
	return c.registry
}

// Snapshot returns the current value of every counter.
func (c *Counters) Snapshot() (map[string]uint64, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering counters: %w", err)
	}
	snapshot := make(map[string]uint64)
	for _, family := range families {
		if family.GetName() != c.metric {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "name" {
					snapshot[label.GetValue()] = uint64(metric.GetCounter().GetValue())
				}
			}
		}
	}
	return snapshot, nil
}

// SortedNames returns the keys of snapshot in lexical order.
func SortedNames(snapshot map[string]uint64) []string {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler serves the counters in the Prometheus exposition format.
func (c *Counters) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
