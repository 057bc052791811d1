package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tabkeeper-be/internal/bootstrap"
	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/dto"
	"tabkeeper-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "ops-secret"

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Port:        "0",
			Environment: "test",
			LogFilePath: filepath.Join(t.TempDir(), "worker.log"),
		},
		Queue: config.QueueConfig{
			Backend:        "memory",
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			HandlerTimeout: 5 * time.Second,
			DedupeTTL:      time.Hour,

			ContentAnalysisWorkers: 1,
			ArchivalWorkers:        1,
			SuggestionWorkers:      1,
			BulkImportWorkers:      1,
		},
		Scheduler: config.SchedulerConfig{
			Timezone:            "UTC",
			SuggestionSweepSpec: "0 */6 * * *",
			RejectedCleanupSpec: "0 2 * * *",
			StaleArchivalSpec:   "0 3 * * 0",
			AccessStatsSpec:     "0 * * * *",
			DuplicateSweepSpec:  "0 */12 * * *",
			RevokedTokenSpec:    "0 0 * * *",
		},
		Services: config.ServicesConfig{
			MLServiceURL:    "http://127.0.0.1:1",
			MLTimeout:       time.Second,
			ArchiverURL:     "http://127.0.0.1:1",
			ArchiverTimeout: time.Second,
		},
		Ops: config.OpsConfig{JWTSecret: testSecret},
	}
}

type testServer struct {
	app     *fiber.App
	ownerId uuid.UUID
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig(t)

	container, err := bootstrap.NewContainer(context.Background(), nil, cfg)
	require.NoError(t, err)
	require.NoError(t, container.Dispatcher.Run(context.Background()))
	t.Cleanup(func() {
		_ = container.Dispatcher.Close()
		_ = container.Close()
	})

	ownerId := uuid.New()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": ownerId.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return &testServer{
		app:     New(cfg, container).GetApp(),
		ownerId: ownerId,
		token:   token,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, authed bool) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var res serverutils.BaseResponse[T]
	require.NoError(t, json.Unmarshal(data, &res))
	return res.Data
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, status)
}

func TestOpsRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/ops/queue/stats", nil, false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := s.do(t, http.MethodGet, "/ops/queue/stats", nil, true)
	require.Equal(t, http.StatusOK, status)
	stats := decode[dto.QueueStatsResponse](t, body)
	assert.Len(t, stats.Lanes, 4)
	assert.Equal(t, int64(0), stats.DeadLetterTotal)
}

func TestSchedulerRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/ops/scheduler/tasks", nil, true)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]dto.SchedulerTaskResponse](t, body), 6)

	status, _ = s.do(t, http.MethodPost, "/ops/scheduler/tasks/compact-everything/run", nil, true)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, "/ops/scheduler/tasks/access-stats/run", nil, true)
	assert.Equal(t, http.StatusOK, status)
}

func TestImportThenSuggestThenAccept(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/api/imports", dto.ImportRequest{
		Type: "tab",
		Items: []dto.ImportItem{
			{Url: "https://go.dev/doc", Title: "Docs"},
			{Url: "https://go.dev/doc", Title: "Docs again"},
			{Url: "https://pkg.go.dev", Title: "Packages"},
		},
	}, true)
	require.Equal(t, http.StatusAccepted, status)

	// Wait for the import to land before asking for suggestions.
	require.Eventually(t, func() bool {
		_, body := s.do(t, http.MethodGet, "/ops/queue/stats", nil, true)
		for _, lane := range decode[dto.QueueStatsResponse](t, body).Lanes {
			if lane.Lane == "bulk-import" {
				return lane.Succeeded == 1
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	status, _ = s.do(t, http.MethodPost, "/ops/suggestions/generate", dto.GenerateSuggestionsRequest{OwnerId: &s.ownerId}, true)
	require.Equal(t, http.StatusAccepted, status)

	var suggestions []dto.SuggestionResponse
	require.Eventually(t, func() bool {
		_, body := s.do(t, http.MethodGet, "/api/suggestions?status=pending", nil, true)
		suggestions = decode[[]dto.SuggestionResponse](t, body)
		return len(suggestions) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "duplicate", suggestions[0].Type)
	assert.Equal(t, "2 tabs with the same URL: https://go.dev/doc", suggestions[0].Reason)

	path := "/api/suggestions/" + suggestions[0].Id.String()
	status, _ = s.do(t, http.MethodPost, path+"/accept", nil, true)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, path+"/reject", nil, true)
	assert.Equal(t, http.StatusConflict, status)
}

func TestImportValidation(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/api/imports", dto.ImportRequest{Type: "folder"}, true)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListSuggestionsRejectsUnknownStatus(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/api/suggestions?status=archived", nil, true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodGet, "/api/suggestions?status=rejected", nil, true)
	assert.Equal(t, http.StatusOK, status)
}
