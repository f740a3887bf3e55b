package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/api/http/handlers"
	"github.com/spec-kit/tweet-triage/internal/auth"
	"github.com/spec-kit/tweet-triage/internal/classifier"
	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/engine"
	"github.com/spec-kit/tweet-triage/internal/observability"
	"github.com/spec-kit/tweet-triage/internal/service"
)

type noopAdapter struct{}

func (noopAdapter) Classify(ctx context.Context, snapshot classifier.Snapshot) (domain.Classification, error) {
	return domain.Classification{
		Sentiment: domain.SentimentNeutral,
		Category:  domain.CategorySupportRequest,
		Priority:  domain.TicketPriorityMedium,
	}, nil
}

type testServer struct {
	app    *fiber.App
	engine *engine.Engine
	agents *service.AgentService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 5,
			BcryptCost:            4,
			BootstrapAgentHandle:  "boss",
			BootstrapAgentSecret:  "boss-password",
		},
		Alerts: config.AlertsConfig{
			WindowMinutes:         60,
			CooldownMinutes:       30,
			PendingBacklog:        10,
			MeanResponseMinutes:   120,
			NegativeSharePercent:  50,
			NegativeShareMinCount: 5,
			VolumeSpikePercent:    50,
			VolumeSpikeMinCount:   10,
		},
	}

	eng := engine.New(cfg, engine.Options{Adapter: noopAdapter{}})
	agents, err := service.NewAgentService(cfg.Auth)
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("triage", "test", nil, nil),
		Messages:       handlers.NewMessagesHandler(eng.Gateway),
		Tickets:        handlers.NewTicketsHandler(eng.Store, eng.Classifier),
		Agents:         handlers.NewAgentsHandler(agents),
		Metrics:        handlers.NewMetricsHandler(eng.Metrics),
		Alerts:         handlers.NewAlertsHandler(eng.AlertLog),
		AuthMiddleware: auth.NewAuthMiddleware(agents.TokenManager(), agents),
	})

	return &testServer{app: app, engine: eng, agents: agents}
}

func (s *testServer) request(t *testing.T, method, path, token string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	envelope := map[string]json.RawMessage{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &envelope)
	}
	return resp.StatusCode, envelope
}

func (s *testServer) login(t *testing.T, handle, password string) string {
	t.Helper()
	status, body := s.request(t, http.MethodPost, "/auth/agents/login", "", map[string]string{
		"handle": handle, "password": password,
	})
	require.Equal(t, http.StatusOK, status)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func (s *testServer) ingest(t *testing.T, sourceID string) string {
	t.Helper()
	status, body := s.request(t, http.MethodPost, "/messages", "", map[string]string{
		"source_message_id": sourceID,
		"author":            "@customer",
		"content":           "my order never arrived",
	})
	require.Equal(t, http.StatusCreated, status)
	var data struct {
		TicketID string `json:"ticket_id"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &data))
	return data.TicketID
}

func errorCode(t *testing.T, body map[string]json.RawMessage) string {
	t.Helper()
	var e struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body["error"], &e))
	return e.Code
}

func TestIngestEndpointIdempotent(t *testing.T) {
	s := newTestServer(t)

	first := s.ingest(t, "tw-http-1")

	status, body := s.request(t, http.MethodPost, "/messages", "", map[string]string{
		"source_message_id": "tw-http-1",
		"author":            "@customer",
		"content":           "my order never arrived",
	})
	assert.Equal(t, http.StatusOK, status)
	var data struct {
		TicketID string `json:"ticket_id"`
		Created  bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &data))
	assert.Equal(t, first, data.TicketID)
	assert.False(t, data.Created)
}

func TestIngestEndpointValidation(t *testing.T) {
	s := newTestServer(t)

	status, body := s.request(t, http.MethodPost, "/messages", "", map[string]string{
		"author": "@customer", "content": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
}

func TestGetTicket(t *testing.T) {
	s := newTestServer(t)
	id := s.ingest(t, "tw-http-2")

	status, body := s.request(t, http.MethodGet, "/tickets/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	var data struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Content string `json:"content"`
		Version uint64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &data))
	assert.Equal(t, id, data.ID)
	assert.Equal(t, "PENDING", data.Status)
	assert.Equal(t, "my order never arrived", data.Content)
	assert.EqualValues(t, 1, data.Version)

	status, body = s.request(t, http.MethodGet, "/tickets/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))
}

func TestAgentActionsRequireAuth(t *testing.T) {
	s := newTestServer(t)
	id := s.ingest(t, "tw-http-3")

	status, _ := s.request(t, http.MethodPost, "/tickets/"+id+"/claim", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.request(t, http.MethodPost, "/tickets/"+id+"/claim", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestClaimRespondOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "boss", "boss-password")
	id := s.ingest(t, "tw-http-4")

	status, body := s.request(t, http.MethodPost, "/tickets/"+id+"/claim", token, nil)
	require.Equal(t, http.StatusOK, status)
	var claimed struct {
		Status  string `json:"status"`
		Version uint64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &claimed))
	assert.Equal(t, "IN_PROGRESS", claimed.Status)

	// A stale expected_version is rejected with 409.
	status, body = s.request(t, http.MethodPost, "/tickets/"+id+"/respond", token, map[string]any{
		"expected_version": claimed.Version - 1,
		"response_text":    "should lose",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(t, body))

	status, body = s.request(t, http.MethodPost, "/tickets/"+id+"/respond", token, map[string]any{
		"expected_version": claimed.Version,
		"response_text":    "refund issued",
	})
	require.Equal(t, http.StatusOK, status)
	var answered struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &answered))
	assert.Equal(t, "ANSWERED", answered.Status)

	// Escalating an answered ticket is a state-machine violation.
	status, body = s.request(t, http.MethodPost, "/tickets/"+id+"/escalate", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, body))
}

func TestRegisterRequiresSupervisor(t *testing.T) {
	s := newTestServer(t)
	bossToken := s.login(t, "boss", "boss-password")

	status, body := s.request(t, http.MethodPost, "/auth/agents/register", bossToken, map[string]string{
		"handle":       "casey",
		"display_name": "Casey",
		"password":     "casey-password",
		"role":         "AGENT",
	})
	require.Equal(t, http.StatusCreated, status)
	var agent struct {
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &agent))
	assert.Equal(t, "AGENT", agent.Role)

	agentToken := s.login(t, "casey", "casey-password")
	status, _ = s.request(t, http.MethodPost, "/auth/agents/register", agentToken, map[string]string{
		"handle": "eve", "password": "x",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestMetricsAndAlertsEndpoints(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.ingest(t, fmt.Sprintf("tw-http-m%d", i))
	}

	status, body := s.request(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	var summary struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &summary))
	assert.EqualValues(t, 3, summary.Total)
	assert.EqualValues(t, 3, summary.ByStatus["PENDING"])

	status, body = s.request(t, http.MethodGet, "/alerts", "", nil)
	require.Equal(t, http.StatusOK, status)
	var alerts struct {
		Alerts     []json.RawMessage `json:"alerts"`
		NextCursor uint64            `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &alerts))
	assert.Empty(t, alerts.Alerts)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.request(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	// Postgres and Redis are optional; absent dependencies never fail
	// readiness.
	status, _ = s.request(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
}
