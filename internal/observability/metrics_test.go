package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCountsPerRouteAndCode(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/messages", "POST", 201, 3*time.Millisecond)
	m.RecordRequest("/messages", "POST", 201, 2*time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordError("/tickets/abc/respond", "POST", "CONFLICT")

	assert.EqualValues(t, 2, m.RequestTotal("POST", "/messages", 201))
	assert.EqualValues(t, 1, m.RequestTotal("GET", "/tickets", 200))
	assert.EqualValues(t, 0, m.RequestTotal("GET", "/tickets", 404))
	assert.EqualValues(t, 1, m.ErrorTotal("POST", "/tickets/abc/respond", "CONFLICT"))
}

func TestMetricsNilReceiverIsInert(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/messages", "POST", 201, time.Millisecond)
	m.RecordError("/messages", "POST", "VALIDATION_FAILED")
	assert.EqualValues(t, 0, m.RequestTotal("POST", "/messages", 201))
}
