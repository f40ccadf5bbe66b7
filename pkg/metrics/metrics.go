// Package metrics is a small Prometheus-text metrics registry. It covers
// the counters and gauges this service exposes on /metrics without pulling
// in the full client library.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

type kind int

const (
	kindCounter kind = iota
	kindGauge
)

type series struct {
	name   string
	labels string // rendered {k="v",...} or ""
	value  float64
}

type family struct {
	help string
	kind kind
}

// Registry holds named metric series.
type Registry struct {
	mu       sync.Mutex
	families map[string]family
	order    []string
	series   map[string]*series // keyed by name+labels
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		families: make(map[string]family),
		series:   make(map[string]*series),
	}
}

func (r *Registry) get(name, help string, k kind, labels ...string) *series {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.families[name]; !ok {
		r.families[name] = family{help: help, kind: k}
		r.order = append(r.order, name)
	}
	rendered := renderLabels(labels)
	key := name + rendered
	s, ok := r.series[key]
	if !ok {
		s = &series{name: name, labels: rendered}
		r.series[key] = s
	}
	return s
}

// Inc adds 1 to a counter, creating it on first use. Labels are
// alternating key/value pairs.
func (r *Registry) Inc(name, help string, labels ...string) {
	r.Add(name, help, 1, labels...)
}

// Add adds delta to a counter.
func (r *Registry) Add(name, help string, delta float64, labels ...string) {
	s := r.get(name, help, kindCounter, labels...)
	r.mu.Lock()
	s.value += delta
	r.mu.Unlock()
}

// Set stores the current value of a gauge.
func (r *Registry) Set(name, help string, value float64, labels ...string) {
	s := r.get(name, help, kindGauge, labels...)
	r.mu.Lock()
	s.value = value
	r.mu.Unlock()
}

// Render produces the Prometheus text exposition format.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	byFamily := make(map[string][]*series)
	for _, s := range r.series {
		byFamily[s.name] = append(byFamily[s.name], s)
	}

	var b strings.Builder
	for _, name := range r.order {
		fam := r.families[name]
		if fam.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, fam.help)
		}
		typ := "counter"
		if fam.kind == kindGauge {
			typ = "gauge"
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, typ)

		rows := byFamily[name]
		sort.Slice(rows, func(i, j int) bool { return rows[i].labels < rows[j].labels })
		for _, s := range rows {
			fmt.Fprintf(&b, "%s%s %g\n", s.name, s.labels, s.value)
		}
	}
	return b.String()
}

// Handler serves the registry in the text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, r.Render())
	})
}

func renderLabels(kvs []string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return ""
	}
	pairs := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kvs[i], kvs[i+1]))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}
