package handlers

import (
	"bufio"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tweet-triage/internal/alerts"
	"github.com/spec-kit/tweet-triage/internal/domain"
)

func TestStreamKeepaliveDetectsClosedClient(t *testing.T) {
	log := alerts.NewLog()
	log.Append(domain.Alert{
		ID:          "alert-1",
		RuleID:      "pending_backlog",
		Severity:    domain.AlertSeverityWarning,
		Message:     "pending backlog at 12 tickets (threshold 10)",
		TriggeredAt: time.Now(),
	})

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		streamAlerts(bufio.NewWriter(pw), log, 0, 5*time.Millisecond)
		pw.Close()
		close(done)
	}()

	reader := bufio.NewReader(pr)

	// Catch-up delivers the logged alert first.
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "event: alert"), "got %q", line)

	// While no alerts fire, keepalive comments keep flowing.
	sawKeepalive := false
	for i := 0; i < 20 && !sawKeepalive; i++ {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		sawKeepalive = strings.HasPrefix(line, ": keepalive")
	}
	require.True(t, sawKeepalive)

	// Once the client is gone the next keepalive write fails and the
	// writer goroutine exits instead of waiting for another alert.
	require.NoError(t, pr.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream writer still running after client close")
	}
}

func TestStreamForwardsLiveAlerts(t *testing.T) {
	log := alerts.NewLog()

	pr, pw := io.Pipe()
	go func() {
		streamAlerts(bufio.NewWriter(pw), log, 0, 5*time.Millisecond)
		pw.Close()
	}()
	defer pr.Close()

	reader := bufio.NewReader(pr)

	// The first keepalive proves the live loop is subscribed; only then is
	// a fresh alert guaranteed to reach this stream.
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": keepalive") {
			break
		}
	}

	log.Append(domain.Alert{
		ID:          "alert-live",
		RuleID:      "volume_spike",
		Severity:    domain.AlertSeverityCritical,
		Message:     "ticket volume 40 vs 10 in prior 1h0m0s (threshold +50%)",
		TriggeredAt: time.Now(),
	})

	sawAlert := false
	for i := 0; i < 50 && !sawAlert; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		sawAlert = strings.HasPrefix(line, "event: alert")
	}
	require.True(t, sawAlert)
	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, data, "volume_spike")
}
