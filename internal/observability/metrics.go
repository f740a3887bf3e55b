package observability

import (
	"sync"
	"time"
)

// Metrics keeps lightweight in-process counters for the HTTP boundary:
// request and cumulative latency totals per route, and error totals per
// domain error code. Ticket-population numbers live in internal/metrics;
// these counters cover only the transport.
type Metrics struct {
	mu       sync.Mutex
	requests map[routeKey]int64
	latency  map[routeKey]time.Duration
	errors   map[errorKey]int64
}

type routeKey struct {
	Method string
	Path   string
	Status int
}

type errorKey struct {
	Method string
	Path   string
	Code   string
}

// NewMetrics initializes empty counters.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: make(map[routeKey]int64),
		latency:  make(map[routeKey]time.Duration),
		errors:   make(map[errorKey]int64),
	}
}

// RecordRequest counts one handled request and accumulates its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := routeKey{Method: method, Path: path, Status: status}
	m.mu.Lock()
	m.requests[key]++
	m.latency[key] += duration
	m.mu.Unlock()
}

// RecordError counts one request rejected with a domain error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := errorKey{Method: method, Path: path, Code: code}
	m.mu.Lock()
	m.errors[key]++
	m.mu.Unlock()
}

// RequestTotal returns the request count recorded for one route and status.
func (m *Metrics) RequestTotal(method, path string, status int) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[routeKey{Method: method, Path: path, Status: status}]
}

// ErrorTotal returns the error count recorded for one route and code.
func (m *Metrics) ErrorTotal(method, path, code string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[errorKey{Method: method, Path: path, Code: code}]
}
